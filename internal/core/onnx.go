package core

import (
	"fmt"
	"image"
	"math"
	"sync"

	"cell-backend/internal/imaging"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func initOnnxRuntime() error {
	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// OnnxClassifier runs an exported classifier graph with onnxruntime.
// Input and output tensors are created per call so the shared session can
// serve concurrent requests.
type OnnxClassifier struct {
	session   *ort.DynamicAdvancedSession
	inputSize int
}

// LoadOnnxClassifier opens an ONNX graph with a single float32
// [1, 3, size, size] input and a single logit output.
func LoadOnnxClassifier(modelPath string, inputSize int) (*OnnxClassifier, error) {
	if err := initOnnxRuntime(); err != nil {
		return nil, fmt.Errorf("initializing onnx runtime: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{"input"}, []string{"output"}, nil)
	if err != nil {
		return nil, fmt.Errorf("creating onnx session for %s: %w", modelPath, err)
	}

	return &OnnxClassifier{session: session, inputSize: inputSize}, nil
}

func (c *OnnxClassifier) InputSize() int { return c.inputSize }

func (c *OnnxClassifier) Predict(img image.Image) (int, error) {
	data := imaging.Preprocess(img, c.inputSize)
	size := int64(c.inputSize)

	in, err := ort.NewTensor(ort.NewShape(1, 3, size, size), data)
	if err != nil {
		return 0, fmt.Errorf("creating input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, fmt.Errorf("creating output tensor: %w", err)
	}
	defer out.Destroy()

	if err := c.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return 0, fmt.Errorf("inference failed: %w", err)
	}

	logit := out.GetData()[0]
	if 1.0/(1.0+math.Exp(-float64(logit))) > 0.5 {
		return 1, nil
	}
	return 0, nil
}

func (c *OnnxClassifier) Release() {
	if c.session != nil {
		c.session.Destroy()
	}
}
