package embedding

import (
	"image"

	"github.com/hyperjump/assethub/internal/imaging"
)

// CLIP normalization constants (RGB).
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// PreprocessImage decodes data and produces a 3×size×size CHW tensor: the shorter side is
// scaled to size, the center is cropped, and channels are normalized with CLIP statistics.
func PreprocessImage(data []byte, size int) ([]float32, error) {
	img, _, err := imaging.Decode(data)
	if err != nil {
		return nil, err
	}
	return pixelValues(img, size), nil
}

func pixelValues(img image.Image, size int) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var rw, rh int
	if w < h {
		rw, rh = size, h*size/w
	} else {
		rw, rh = w*size/h, size
	}
	if rw < size {
		rw = size
	}
	if rh < size {
		rh = size
	}
	resized := imaging.Resize(img, rw, rh)
	x0, y0 := (rw-size)/2, (rh-size)/2

	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := resized.PixOffset(x0+x, y0+y)
			px := resized.Pix[off : off+3]
			i := y*size + x
			for c := 0; c < 3; c++ {
				out[c*plane+i] = (float32(px[c])/255 - clipMean[c]) / clipStd[c]
			}
		}
	}
	return out
}
