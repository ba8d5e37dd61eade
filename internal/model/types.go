package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const (
	// InputSize is the side of the square image the classifier was trained on.
	InputSize = 224
	// Channels of the model input, stored NHWC.
	Channels = 3
)

// Metadata names the artifact's graph endpoints and its classes.
type Metadata struct {
	InputName      string   `json:"input_name"`
	OutputName     string   `json:"output_name"`
	GradientSuffix string   `json:"gradient_suffix"`
	Classes        []string `json:"classes"`
}

func DefaultMetadata() Metadata {
	return Metadata{
		InputName:      "input",
		OutputName:     "probs",
		GradientSuffix: "_grad",
		Classes:        []string{"No DR", "Mild NPDR", "Moderate NPDR", "Severe NPDR", "PDR"},
	}
}

// LoadMetadata reads path over the defaults. A missing file yields the
// defaults unchanged.
func LoadMetadata(path string) (Metadata, error) {
	meta := DefaultMetadata()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return meta, nil
	}
	if err != nil {
		return meta, fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if len(meta.Classes) == 0 {
		return meta, errors.New("metadata lists no classes")
	}
	return meta, nil
}

// GradientName is the output holding d(class score)/d(activations) for layer.
func (m Metadata) GradientName(layer string) string {
	return layer + m.GradientSuffix
}

type PredictionRequest struct {
	Image *string `json:"image"`
}

type PredictionResponse struct {
	PredictionClass int       `json:"prediction_class"`
	ClassName       string    `json:"class_name"`
	Confidence      float64   `json:"confidence"`
	Probabilities   []float32 `json:"probabilities"`
	Explanation     string    `json:"explanation"`
	GradCAMImage    string    `json:"gradcam_image"`
	Timestamp       string    `json:"timestamp"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Saliency is a row-major Grad-CAM map normalized to [0,1] at the target
// layer's spatial resolution.
type Saliency struct {
	Width  int
	Height int
	Values []float32
}

// Result is one forward pass plus the saliency map of its predicted class.
type Result struct {
	Class         int
	Confidence    float32
	Probabilities []float32
	Saliency      Saliency
}
