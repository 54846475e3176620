package unet

// encoderWidths are the conv block output widths at depths 0..3. The
// bottleneck below depth 3 runs at bottleneckChannels.
var encoderWidths = []int64{64, 128, 256, 512}

const bottleneckChannels int64 = 1024

// StageWidths describes the channel arithmetic of one encoder/decoder depth.
type StageWidths struct {
	// EncoderIn is the channel count entering the encoder conv block.
	EncoderIn int64
	// EncoderOut is the channel count of the recorded skip tensor.
	EncoderOut int64
	// UpsampleOut is the channel count produced by the transposed convolution.
	UpsampleOut int64
	// FuseIn is the channel count entering the decoder conv block, i.e.
	// UpsampleOut + EncoderOut after concatenation.
	FuseIn int64
	// FuseOut is the channel count leaving the decoder conv block.
	FuseOut int64
}

// Plan returns the per-depth channel widths for a network with the given
// input channel count. Depth 0 is the full resolution stage.
func Plan(inChannels int64) []StageWidths {
	plan := make([]StageWidths, len(encoderWidths))
	in := inChannels
	for d, w := range encoderWidths {
		plan[d] = StageWidths{
			EncoderIn:   in,
			EncoderOut:  w,
			UpsampleOut: w,
			FuseIn:      2 * w,
			FuseOut:     w,
		}
		in = w
	}
	return plan
}
