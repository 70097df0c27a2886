package translate

import "context"

// Auto asks the backend to detect the source language itself.
const Auto = "auto"

// Detection is one language-detection result.
type Detection struct {
	Language   string
	Confidence float64
}

// Detector identifies the language of a text.
type Detector interface {
	Detect(ctx context.Context, text string) (Detection, error)
}

// Translator translates text between languages.
// source may be Auto (or empty) to let the backend detect it.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Service bundles both capabilities; the pipeline depends on this.
type Service interface {
	Detector
	Translator
}
