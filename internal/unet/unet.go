// Package unet defines the encoder/decoder inpainting network: four conv
// block + max-pool encoder stages, a 1024 channel bottleneck, and a mirrored
// decoder that upsamples with stride-2 transposed convolutions and fuses skip
// connections by channel concatenation.
package unet

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
)

// Config selects the input and output channel counts of the network.
type Config struct {
	InChannels  int64
	OutChannels int64
}

// DefaultConfig is the inpainting setup: four input channels (corrupted
// slice, mask, and two context channels), one dense per-pixel output channel.
func DefaultConfig() Config {
	return Config{InChannels: 4, OutChannels: 1}
}

// convBlock is conv3x3 -> ReLU -> BatchNorm, twice. Spatial size is
// preserved; only the channel count changes.
type convBlock struct {
	conv1 *nn.Conv2D
	bn1   *nn.BatchNorm
	conv2 *nn.Conv2D
	bn2   *nn.BatchNorm
}

func newConvBlock(p *nn.Path, cIn, cOut int64) *convBlock {
	cfg1 := nn.DefaultConv2DConfig()
	cfg1.Padding = []int64{1, 1}
	cfg2 := nn.DefaultConv2DConfig()
	cfg2.Padding = []int64{1, 1}

	return &convBlock{
		conv1: nn.NewConv2D(p.Sub("conv1"), cIn, cOut, 3, cfg1),
		bn1:   nn.BatchNorm2D(p.Sub("bn1"), cOut, nn.DefaultBatchNormConfig()),
		conv2: nn.NewConv2D(p.Sub("conv2"), cOut, cOut, 3, cfg2),
		bn2:   nn.BatchNorm2D(p.Sub("bn2"), cOut, nn.DefaultBatchNormConfig()),
	}
}

func (b *convBlock) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	c1 := b.conv1.Forward(x)
	a1 := c1.MustRelu(true)
	n1 := b.bn1.ForwardT(a1, train)
	a1.MustDrop()

	c2 := b.conv2.Forward(n1)
	n1.MustDrop()
	a2 := c2.MustRelu(true)
	out := b.bn2.ForwardT(a2, train)
	a2.MustDrop()

	return out
}

// UNet is the full topology. Inputs must be NCHW with spatial dimensions
// divisible by 16 so the four halvings round-trip losslessly; anything else
// fails shape matching at the first decoder concatenation.
type UNet struct {
	enc        []*convBlock
	bottleneck *convBlock
	up         []*nn.ConvTranspose2D
	dec        []*convBlock
	final      *nn.Conv2D
}

var _ ts.ModuleT = (*UNet)(nil)

// New builds the network under p with freshly initialized parameters.
func New(p *nn.Path, cfg Config) *UNet {
	plan := Plan(cfg.InChannels)
	depths := len(plan)

	n := &UNet{
		enc: make([]*convBlock, depths),
		up:  make([]*nn.ConvTranspose2D, depths),
		dec: make([]*convBlock, depths),
	}

	for d, s := range plan {
		n.enc[d] = newConvBlock(p.Sub(fmt.Sprintf("enc_conv%d", d)), s.EncoderIn, s.EncoderOut)
	}
	n.bottleneck = newConvBlock(p.Sub(fmt.Sprintf("enc_conv%d", depths)), plan[depths-1].EncoderOut, bottleneckChannels)

	in := bottleneckChannels
	for d := depths - 1; d >= 0; d-- {
		s := plan[d]
		upCfg := nn.DefaultConvTranspose2DConfig()
		upCfg.Stride = []int64{2, 2}
		n.up[d] = nn.NewConvTranspose2D(p.Sub(fmt.Sprintf("upconv%d", d)), in, s.UpsampleOut, 2, upCfg)
		n.dec[d] = newConvBlock(p.Sub(fmt.Sprintf("dec_conv%d", d)), s.FuseIn, s.FuseOut)
		in = s.FuseOut
	}

	n.final = nn.NewConv2D(p.Sub("final_conv"), plan[0].FuseOut, cfg.OutChannels, 1, nn.DefaultConv2DConfig())

	return n
}

// ForwardT runs a NCHW batch through the network, returning a tensor with the
// configured output channel count and the input's spatial size.
func (n *UNet) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	skips := make([]*ts.Tensor, len(n.enc))

	cur := x
	for d := range n.enc {
		skip := n.enc[d].ForwardT(cur, train)
		if cur != x {
			cur.MustDrop()
		}
		skips[d] = skip
		cur = skip.MustMaxPool2d([]int64{2, 2}, []int64{2, 2}, []int64{0, 0}, []int64{1, 1}, false, false)
	}

	out := n.bottleneck.ForwardT(cur, train)
	cur.MustDrop()

	for d := len(n.dec) - 1; d >= 0; d-- {
		up := n.up[d].Forward(out)
		out.MustDrop()

		// Upsampled channels come before the skip channels; stored
		// parameters depend on this ordering.
		cat := ts.MustCat([]*ts.Tensor{up, skips[d]}, 1)
		up.MustDrop()
		skips[d].MustDrop()

		out = n.dec[d].ForwardT(cat, train)
		cat.MustDrop()
	}

	final := n.final.Forward(out)
	out.MustDrop()

	return final
}
