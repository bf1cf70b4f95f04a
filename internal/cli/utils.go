// Package cli formats command output for assethub.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/assethub/internal/models"
	"github.com/hyperjump/assethub/internal/video"
	"github.com/hyperjump/assethub/pkg/utils"
)

// OutputFormat selects human or machine output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text", "json" or empty.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (text or json)", s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms\n\n", response.Total, response.QueryTime)
	for i, r := range response.Results {
		fmt.Fprintf(w, "%2d. %-40s %-5s score %.4f", i+1, utils.Truncate(r.Name, 40), r.Type, r.Score)
		if r.Type == models.AssetVideo {
			fmt.Fprintf(w, "  frame %d", r.FrameIndex)
		}
		fmt.Fprintf(w, "\n    %s\n", r.AssetID)
	}
	return nil
}

// WriteAsset prints one catalog record.
func WriteAsset(w io.Writer, asset *models.MediaAsset, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, asset)
	}
	fmt.Fprintf(w, "%s  %s  %s  %s  %s\n", asset.ID, asset.Type, asset.VectorStatus, HumanBytes(asset.FileSize), asset.Name)
	return nil
}

// WriteProbe prints video stream metadata.
func WriteProbe(w io.Writer, path string, info video.Info, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, struct {
			Path string `json:"path"`
			video.Info
		}{path, info})
	}
	fmt.Fprintf(w, "%s\n  fps:        %.3f\n  frames:     %d\n  resolution: %dx%d\n  duration:   %.2fs\n",
		path, info.FPS, info.FrameCount, info.Width, info.Height, float64(info.DurationMs)/1000)
	return nil
}

// HumanBytes formats n with a binary unit suffix.
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
