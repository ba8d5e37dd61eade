package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"github.com/nfnt/resize"

	"github.com/vishal-chaure/RetinaAI-V2/internal/model"
)

const pngDataURLPrefix = "data:image/png;base64,"

// Renderer composites a saliency map over the classified image.
type Renderer struct {
	size  int
	alpha float64
}

func NewRenderer(size int, alpha float64) *Renderer {
	return &Renderer{size: size, alpha: alpha}
}

// Render upsamples the saliency map and the display image to the output
// size, blends the jet-colored map over the image and returns the result as
// a PNG data URL.
func (r *Renderer) Render(display image.Image, sal model.Saliency) (string, error) {
	if sal.Width <= 0 || sal.Height <= 0 || len(sal.Values) != sal.Width*sal.Height {
		return "", fmt.Errorf("invalid saliency map: %dx%d with %d values", sal.Width, sal.Height, len(sal.Values))
	}

	gray := image.NewGray(image.Rect(0, 0, sal.Width, sal.Height))
	for i, v := range sal.Values {
		gray.Pix[i] = SaliencyByte(v)
	}

	side := uint(r.size)
	heat := resize.Resize(side, side, gray, resize.Bilinear)
	base := resize.Resize(side, side, display, resize.Bicubic)

	out := image.NewRGBA(image.Rect(0, 0, r.size, r.size))
	draw.Draw(out, out.Bounds(), base, base.Bounds().Min, draw.Src)

	hb := heat.Bounds()
	for y := 0; y < r.size; y++ {
		for x := 0; x < r.size; x++ {
			g := color.GrayModel.Convert(heat.At(hb.Min.X+x, hb.Min.Y+y)).(color.Gray)
			c := Jet(g.Y)

			off := out.PixOffset(x, y)
			out.Pix[off] = blend(out.Pix[off], c.R, r.alpha)
			out.Pix[off+1] = blend(out.Pix[off+1], c.G, r.alpha)
			out.Pix[off+2] = blend(out.Pix[off+2], c.B, r.alpha)
			out.Pix[off+3] = 255
		}
	}

	return EncodePNGDataURL(out)
}

// SaliencyByte scales a saliency value to 0-255 by truncation after
// clamping to [0,1]; NaN maps to 0.
func SaliencyByte(v float32) uint8 {
	f := float64(v)
	switch {
	case math.IsNaN(f) || f <= 0:
		return 0
	case f >= 1:
		return 255
	}
	return uint8(255 * f)
}

func blend(under, over uint8, alpha float64) uint8 {
	v := (1-alpha)*float64(under) + alpha*float64(over)
	return uint8(math.Round(v))
}

// EncodePNGDataURL encodes img as PNG in memory and prefixes the base64
// payload with the PNG data URL scheme.
func EncodePNGDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return pngDataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
