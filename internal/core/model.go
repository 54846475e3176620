package core

import (
	"errors"
	"image"
)

var (
	// ErrUnsupportedArchitecture is returned for tokens outside the
	// enumerated architecture set.
	ErrUnsupportedArchitecture = errors.New("unsupported model architecture")

	// ErrMissingClassifierHead is returned when freezing is requested but no
	// parameters match the architecture's classifier head.
	ErrMissingClassifierHead = errors.New("cannot find the classifier head to unfreeze")
)

// Classifier is a loaded model in inference mode. Implementations are
// read-only after construction and safe for concurrent Predict calls.
type Classifier interface {
	// Predict returns the binary homogeneity label for img.
	Predict(img image.Image) (int, error)

	// InputSize is the square input resolution the model expects.
	InputSize() int

	// Release frees native resources held by the model.
	Release()
}

// ModelInfo is the descriptor stored next to the trained weights.
type ModelInfo struct {
	ModelName string `json:"model_name"`
	ImgSize   int    `json:"img_size"`
}
