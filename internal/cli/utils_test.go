package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/assethub/internal/models"
	"github.com/hyperjump/assethub/internal/video"
)

func sampleResponse() *models.SearchResponse {
	return &models.SearchResponse{
		Query:     "red car",
		QueryTime: 42,
		Total:     2,
		Results: []*models.SearchResult{
			{AssetID: "a1", Name: "car.png", Type: models.AssetImage, Score: 0.91},
			{AssetID: "v1", Name: "chase.mp4", Type: models.AssetVideo, Score: 0.87, FrameIndex: 3},
		},
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.SearchResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.Query != "red car" || len(decoded.Results) != 2 || decoded.Results[1].FrameIndex != 3 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Found 2 results in 42ms", "car.png", "0.9100", "frame 3", "v1"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "frame ") != 1 {
		t.Errorf("only videos show a frame:\n%s", out)
	}
}

func TestWriteSearchResults_Empty(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteSearchResults(&buf, &models.SearchResponse{}, OutputText)
	if !strings.Contains(buf.String(), "Found 0 results") {
		t.Errorf("got %q", buf.String())
	}
}

func TestWriteAsset(t *testing.T) {
	var buf bytes.Buffer
	a := &models.MediaAsset{ID: "id1", Name: "x.png", Type: models.AssetImage, VectorStatus: models.StatusPending, FileSize: 2048}
	_ = WriteAsset(&buf, a, OutputText)
	if got := buf.String(); !strings.Contains(got, "id1  image  pending  2.0 KiB  x.png") {
		t.Errorf("got %q", got)
	}
}

func TestWriteProbe(t *testing.T) {
	var buf bytes.Buffer
	info := video.Info{FPS: 30, FrameCount: 330, Width: 1920, Height: 1080, DurationMs: 11000}
	_ = WriteProbe(&buf, "clip.mp4", info, OutputText)
	for _, want := range []string{"30.000", "330", "1920x1080", "11.00s"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("missing %q in %q", want, buf.String())
		}
	}
	buf.Reset()
	_ = WriteProbe(&buf, "clip.mp4", info, OutputJSON)
	var m map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil || m["frame_count"].(float64) != 330 || m["path"] != "clip.mp4" {
		t.Errorf("json probe = %v, %v", m, err)
	}
}

func TestParseOutputFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": OutputText, "TEXT": OutputText, "json": OutputJSON} {
		if got, err := ParseOutputFormat(in); err != nil || got != want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseOutputFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestHumanBytes(t *testing.T) {
	tests := map[int64]string{0: "0 B", 1023: "1023 B", 1024: "1.0 KiB", 5 << 20: "5.0 MiB"}
	for n, want := range tests {
		if got := HumanBytes(n); got != want {
			t.Errorf("HumanBytes(%d) = %q, want %q", n, got, want)
		}
	}
}
