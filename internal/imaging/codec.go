// Package imaging turns incoming data URLs into model tensors and renders
// Grad-CAM overlays back into PNG data URLs.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/vishal-chaure/RetinaAI-V2/internal/model"
)

const (
	InputSize = model.InputSize
	Channels  = model.Channels
)

// ImageNet channel means in BGR order, subtracted by ResNet50's caffe-style
// preprocessing.
var meanBGR = [Channels]float32{103.939, 116.779, 123.68}

// DefaultMaxPixels bounds the decoded canvas when no limit is configured.
const DefaultMaxPixels = 50_000_000

var (
	ErrMissingSeparator = errors.New("invalid data URL: missing ',' separator")
	ErrEmptyImage       = errors.New("image has no pixels")
	ErrImageTooLarge    = errors.New("image dimensions exceed the pixel limit")
)

// DecodeDataURL strips everything up to and including the first comma,
// base64-decodes the rest and decodes the bytes as an image of any
// registered format. The header is checked against maxPixels (DefaultMaxPixels
// when not positive) before any pixel data is decoded.
func DecodeDataURL(dataURL string, maxPixels int) (image.Image, string, error) {
	idx := strings.IndexByte(dataURL, ',')
	if idx < 0 {
		return nil, "", ErrMissingSeparator
	}

	raw, err := decodeBase64(strings.TrimSpace(dataURL[idx+1:]))
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}

	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("decode image: %w", ErrEmptyImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, "", fmt.Errorf("decode image: %w: %dx%d > %d", ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, "", fmt.Errorf("decode image: %w", ErrEmptyImage)
	}
	return img, format, nil
}

func decodeBase64(payload string) ([]byte, error) {
	if !strings.HasSuffix(payload, "=") && len(payload)%4 != 0 {
		return base64.RawStdEncoding.DecodeString(payload)
	}
	return base64.StdEncoding.DecodeString(payload)
}

// Preprocess resizes img to InputSize x InputSize and converts it to the
// classifier's input: a [1, InputSize, InputSize, 3] float32 tensor in BGR
// order with the ImageNet means subtracted and no scaling. The resized RGB
// image is returned for display.
func Preprocess(img image.Image) (*image.RGBA, []float32) {
	resized := resize.Resize(InputSize, InputSize, img, resize.Bicubic)

	display := image.NewRGBA(image.Rect(0, 0, InputSize, InputSize))
	draw.Draw(display, display.Bounds(), resized, resized.Bounds().Min, draw.Src)

	tensor := make([]float32, InputSize*InputSize*Channels)
	for y := 0; y < InputSize; y++ {
		for x := 0; x < InputSize; x++ {
			off := display.PixOffset(x, y)
			r := float32(display.Pix[off])
			g := float32(display.Pix[off+1])
			b := float32(display.Pix[off+2])

			i := (y*InputSize + x) * Channels
			tensor[i] = b - meanBGR[0]
			tensor[i+1] = g - meanBGR[1]
			tensor[i+2] = r - meanBGR[2]
		}
	}

	return display, tensor
}
