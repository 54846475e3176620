package unet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
)

func TestForwardPreservesSpatialSize(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net := New(vs.Root(), DefaultConfig())

	x := ts.MustZeros([]int64{1, 4, 256, 256}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	out := net.ForwardT(x, false)
	defer out.MustDrop()

	assert.Equal(t, []int64{1, 1, 256, 256}, out.MustSize())
}

func TestForwardCustomChannels(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	net := New(vs.Root(), Config{InChannels: 2, OutChannels: 3})

	x := ts.MustZeros([]int64{2, 2, 32, 32}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	out := net.ForwardT(x, false)
	defer out.MustDrop()

	assert.Equal(t, []int64{2, 3, 32, 32}, out.MustSize())
}
