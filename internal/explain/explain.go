// Package explain renders the fixed natural-language explanation for a
// retinopathy grade.
package explain

import "fmt"

const focusArea = "highlighted region"

var classExplanations = map[int]string{
	0: "The model did not detect any abnormal signs such as microaneurysms, exudates, or hemorrhages. " +
		"It focused mainly on the " + focusArea + ", suggesting a healthy retina with **No Diabetic Retinopathy** (Class 0).",
	1: "The model detected early signs such as a few microaneurysms in the " + focusArea + ". " +
		"This suggests **Mild DR** (Class 1).",
	2: "The model found several lesions (microaneurysms, hemorrhages) in the " + focusArea + ", " +
		"indicating **Moderate DR** (Class 2).",
	3: "The model focused on widespread hemorrhages and abnormalities in the " + focusArea + ", " +
		"suggesting **Severe DR** (Class 3).",
	4: "The model detected abnormal blood vessel growth (neovascularization) or large lesions in the " + focusArea + ", " +
		"consistent with **Proliferative DR** (Class 4).",
}

// Describe returns the explanation body for class, or "Unknown class." when
// the class is outside 0-4.
func Describe(class int) string {
	if text, ok := classExplanations[class]; ok {
		return text
	}
	return "Unknown class."
}

// Format joins the prediction header, the confidence as a percentage with
// two decimals, and the class explanation.
func Format(class int, confidence float64) string {
	return fmt.Sprintf("📊 Prediction: Class %d\n\n✅ Confidence: %.2f%%\n\n\n💬 Explanation: %s",
		class, confidence*100, Describe(class))
}
