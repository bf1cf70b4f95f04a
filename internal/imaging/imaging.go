// Package imaging decodes uploads, derives thumbnails, and re-encodes frames as JPEG.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/hyperjump/assethub/internal/apperrors"
)

// DefaultJPEGQuality is used for thumbnails and keyframes.
const DefaultJPEGQuality = 85

// Decode parses JPEG, PNG, GIF, or WebP bytes. Undecodable input is a permanent error.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", apperrors.Permanent(fmt.Errorf("failed to decode image: %w", err))
	}
	return img, format, nil
}

// FitWithin returns the largest size with src's aspect ratio that fits inside maxW×maxH.
// Images already inside the box keep their size.
func FitWithin(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW <= maxW && srcH <= maxH {
		return srcW, srcH
	}
	w, h := maxW, srcH*maxW/srcW
	if h > maxH {
		w, h = srcW*maxH/srcH, maxH
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// Resize scales src to exactly w×h with Catmull-Rom resampling. Transparent areas
// are composited onto white since JPEG has no alpha channel.
func Resize(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// EncodeJPEG encodes img at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Thumbnail decodes data, shrinks it to fit maxSide×maxSide preserving aspect ratio,
// and re-encodes it as JPEG. It also reports the source dimensions.
func Thumbnail(data []byte, maxSide int) (thumb []byte, width, height int, err error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, 0, 0, err
	}
	b := img.Bounds()
	w, h := FitWithin(b.Dx(), b.Dy(), maxSide, maxSide)
	thumb, err = EncodeJPEG(Resize(img, w, h), DefaultJPEGQuality)
	if err != nil {
		return nil, 0, 0, err
	}
	return thumb, b.Dx(), b.Dy(), nil
}
