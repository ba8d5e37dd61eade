package model

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// argmax returns the index of the largest value; ties go to the lowest index.
func argmax(values []float32) int {
	maxIdx := 0
	maxVal := values[0]
	for i, val := range values {
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}
	return maxIdx
}

// checkProbabilities rejects outputs that cannot be read as a confidence.
func checkProbabilities(probs []float32) error {
	if len(probs) == 0 {
		return fmt.Errorf("model returned no probabilities")
	}
	for i, p := range probs {
		if math.IsNaN(float64(p)) || p < 0 || p > 1 {
			return fmt.Errorf("model output %d is %v, not a probability", i, p)
		}
	}
	return nil
}

// gradCAM weights each activation channel by the spatial mean of its
// gradient, sums over channels, applies ReLU and min-max normalizes.
// Both inputs are [h, w, c] row-major.
func gradCAM(acts, grads []float32, h, w, c int) []float32 {
	area := h * w

	weights := make([]float64, c)
	for i := 0; i < area; i++ {
		for k := 0; k < c; k++ {
			weights[k] += float64(grads[i*c+k])
		}
	}
	for k := range weights {
		weights[k] /= float64(area)
	}

	cam := make([]float64, area)
	for i := 0; i < area; i++ {
		var sum float64
		for k := 0; k < c; k++ {
			sum += weights[k] * float64(acts[i*c+k])
		}
		cam[i] = math.Max(sum, 0)
	}

	return normalize(cam)
}

func normalize(values []float64) []float32 {
	out := make([]float32, len(values))
	if len(values) == 0 {
		return out
	}

	lo, hi := slices.Min(values), slices.Max(values)
	span := hi - lo
	if span <= 0 || math.IsNaN(span) || math.IsInf(span, 0) {
		return out
	}
	for i, v := range values {
		out[i] = float32((v - lo) / span)
	}
	return out
}

// checkOutputs verifies that every required output is present in the
// model, listing what is available when one is not.
func checkOutputs(available []string, required ...string) error {
	var missing []string
	for _, name := range required {
		if !slices.Contains(available, name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("model has no output %s (available: %s)",
			strings.Join(quote(missing), ", "), strings.Join(quote(available), ", "))
	}
	return nil
}

func quote(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = fmt.Sprintf("%q", n)
	}
	return out
}

// concreteShape pins a dynamic batch dimension to 1 and rejects any other
// dynamic dimension.
func concreteShape(dims []int64) ([]int64, error) {
	shape := slices.Clone(dims)
	for i, d := range shape {
		if d > 0 {
			continue
		}
		if i == 0 {
			shape[i] = 1
			continue
		}
		return nil, fmt.Errorf("dimension %d of shape %v is dynamic", i, dims)
	}
	return shape, nil
}
