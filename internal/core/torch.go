package core

import (
	"fmt"
	"image"

	"cell-backend/internal/imaging"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
)

// TorchClassifier runs a gotch backbone in inference mode. The parameter
// store is never written after load, so a single instance can serve
// concurrent requests.
type TorchClassifier struct {
	vs        *nn.VarStore
	net       ts.ModuleT
	arch      Architecture
	inputSize int
}

func (c *TorchClassifier) Architecture() Architecture { return c.arch }

func (c *TorchClassifier) InputSize() int { return c.inputSize }

// TrainableParameters returns the names of parameters still marked
// trainable, e.g. only the head parameters after a frozen Build.
func (c *TorchClassifier) TrainableParameters() []string {
	var names []string
	for name, v := range c.vs.Variables() {
		if v.MustRequiresGrad() {
			names = append(names, name)
		}
	}
	return names
}

// Predict preprocesses img and returns 1 when the sigmoid of the model's
// single logit exceeds 0.5.
func (c *TorchClassifier) Predict(img image.Image) (label int, err error) {
	// Tensor ops panic on shape mismatches; surface those as request errors
	// instead of killing the handler goroutine's process.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("inference failed: %v", r)
		}
	}()

	data := imaging.Preprocess(img, c.inputSize)
	size := int64(c.inputSize)

	ts.NoGrad(func() {
		flat := ts.MustOfSlice(data)
		input := flat.MustView([]int64{1, 3, size, size}, true)

		out := c.net.ForwardT(input, false)
		input.MustDrop()

		prob := out.MustSigmoid(true)
		values := prob.Float64Values()
		prob.MustDrop()

		if values[0] > 0.5 {
			label = 1
		}
	})

	return label, nil
}

func (c *TorchClassifier) Release() {
	for _, v := range c.vs.Variables() {
		v.MustDrop()
	}
}
