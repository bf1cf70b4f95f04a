package ingest

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/hyperjump/assethub/internal/models"
)

type mediaKind struct {
	typ models.AssetType
	ext string
}

// allowed is the upload allow-list keyed by mime type.
var allowed = map[string]mediaKind{
	"image/jpeg":      {models.AssetImage, "jpg"},
	"image/png":       {models.AssetImage, "png"},
	"image/gif":       {models.AssetImage, "gif"},
	"image/webp":      {models.AssetImage, "webp"},
	"video/mp4":       {models.AssetVideo, "mp4"},
	"video/quicktime": {models.AssetVideo, "mov"},
	"video/x-msvideo": {models.AssetVideo, "avi"},
	"video/webm":      {models.AssetVideo, "webm"},
	"audio/mpeg":      {models.AssetAudio, "mp3"},
	"audio/wav":       {models.AssetAudio, "wav"},
	"audio/ogg":       {models.AssetAudio, "ogg"},
	"audio/flac":      {models.AssetAudio, "flac"},
}

var extMimes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

// aliases maps common non-canonical spellings to the allow-list entry.
var aliases = map[string]string{
	"image/jpg":    "image/jpeg",
	"image/pjpeg":  "image/jpeg",
	"audio/mp3":    "audio/mpeg",
	"audio/x-wav":  "audio/wav",
	"audio/wave":   "audio/wav",
	"audio/x-flac": "audio/flac",
	"video/avi":    "video/x-msvideo",
}

// NormalizeMime lower-cases mt, strips parameters and resolves aliases.
func NormalizeMime(mt string) string {
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}
	mt = strings.ToLower(strings.TrimSpace(mt))
	if canonical, ok := aliases[mt]; ok {
		return canonical
	}
	return mt
}

// Classify returns the asset type and blob extension for an allowed mime type.
func Classify(mt string) (models.AssetType, string, bool) {
	kind, ok := allowed[NormalizeMime(mt)]
	return kind.typ, kind.ext, ok
}

// DetectMime guesses the mime type of a file from its extension, falling back to
// content sniffing.
func DetectMime(path string, data []byte) string {
	if mt, ok := extMimes[strings.ToLower(filepath.Ext(path))]; ok {
		return mt
	}
	return NormalizeMime(http.DetectContentType(data))
}

// SupportedExtensions returns the file extensions the gate accepts, with leading dots.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extMimes))
	for ext := range extMimes {
		exts = append(exts, ext)
	}
	return exts
}
