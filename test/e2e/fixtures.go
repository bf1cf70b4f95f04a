// Package e2e drives a running HTTP API with a live worker pool; this file builds the image corpus.
package e2e

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// Fixture is one corpus image.
type Fixture struct {
	Name string
	Data []byte
}

// palette gives each fixture a distinct dominant color.
var palette = []color.RGBA{
	{R: 230, G: 30, B: 30, A: 255},
	{R: 30, G: 200, B: 60, A: 255},
	{R: 40, G: 60, B: 220, A: 255},
	{R: 240, G: 220, B: 40, A: 255},
	{R: 20, G: 20, B: 20, A: 255},
	{R: 250, G: 250, B: 250, A: 255},
}

// BuildCorpus returns one PNG per palette entry. Each image carries a diagonal stripe
// so that no two encodings collide even if colors were repeated.
func BuildCorpus() ([]Fixture, error) {
	out := make([]Fixture, 0, len(palette))
	for i, c := range palette {
		img := image.NewRGBA(image.Rect(0, 0, 48, 48))
		for y := 0; y < 48; y++ {
			for x := 0; x < 48; x++ {
				if (x+y)%(i+5) == 0 {
					img.Set(x, y, color.RGBA{R: 128, G: 128, B: 128, A: 255})
					continue
				}
				img.Set(x, y, c)
			}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
		out = append(out, Fixture{Name: fmt.Sprintf("swatch-%d.png", i), Data: buf.Bytes()})
	}
	return out, nil
}
