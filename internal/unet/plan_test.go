package unet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanWidths(t *testing.T) {
	plan := Plan(4)
	require.Len(t, plan, 4)

	assert.Equal(t, int64(4), plan[0].EncoderIn)
	assert.Equal(t, []int64{64, 128, 256, 512}, []int64{
		plan[0].EncoderOut, plan[1].EncoderOut, plan[2].EncoderOut, plan[3].EncoderOut,
	})

	// Each encoder depth feeds the next.
	for d := 1; d < len(plan); d++ {
		assert.Equal(t, plan[d-1].EncoderOut, plan[d].EncoderIn)
	}
}

// The concatenation at every decoder depth only works if the upsampled
// channels plus the skip channels equal the fuse block's declared input
// width. This holds statically, independent of any weights.
func TestPlanConcatenationConsistency(t *testing.T) {
	plan := Plan(4)

	for d, s := range plan {
		assert.Equalf(t, s.FuseIn, s.UpsampleOut+s.EncoderOut, "depth %d", d)
	}

	// The transposed convolution feeding depth 3 consumes the bottleneck;
	// below that, each depth consumes the fuse output above it.
	in := bottleneckChannels
	for d := len(plan) - 1; d >= 0; d-- {
		assert.Equalf(t, in/2, plan[d].UpsampleOut, "upconv at depth %d halves its input channels", d)
		in = plan[d].FuseOut
	}
}
