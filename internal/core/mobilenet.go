package core

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
)

// MobileNetV3-Large backbone, another architecture gotch's vision package
// does not ship. Inverted residual blocks with optional squeeze-excitation,
// hardswish activations in the later stages, and the two-layer classifier
// under the classifier prefix.
type invertedResidualSetting struct {
	kernel   int64
	expand   int64
	out      int64
	se       bool
	hs       bool // hardswish instead of ReLU
	stride   int64
	channels int64 // input channels, filled in by the builder
}

func mobileNetV3LargeSettings() []invertedResidualSetting {
	return []invertedResidualSetting{
		{kernel: 3, expand: 16, out: 16, se: false, hs: false, stride: 1},
		{kernel: 3, expand: 64, out: 24, se: false, hs: false, stride: 2},
		{kernel: 3, expand: 72, out: 24, se: false, hs: false, stride: 1},
		{kernel: 5, expand: 72, out: 40, se: true, hs: false, stride: 2},
		{kernel: 5, expand: 120, out: 40, se: true, hs: false, stride: 1},
		{kernel: 5, expand: 120, out: 40, se: true, hs: false, stride: 1},
		{kernel: 3, expand: 240, out: 80, se: false, hs: true, stride: 2},
		{kernel: 3, expand: 200, out: 80, se: false, hs: true, stride: 1},
		{kernel: 3, expand: 184, out: 80, se: false, hs: true, stride: 1},
		{kernel: 3, expand: 184, out: 80, se: false, hs: true, stride: 1},
		{kernel: 3, expand: 480, out: 112, se: true, hs: true, stride: 1},
		{kernel: 3, expand: 672, out: 112, se: true, hs: true, stride: 1},
		{kernel: 5, expand: 672, out: 160, se: true, hs: true, stride: 2},
		{kernel: 5, expand: 960, out: 160, se: true, hs: true, stride: 1},
		{kernel: 5, expand: 960, out: 160, se: true, hs: true, stride: 1},
	}
}

func makeDivisible(v int64, divisor int64) int64 {
	n := (v + divisor/2) / divisor * divisor
	if n < divisor {
		n = divisor
	}
	// Rounding down by more than 10% loses too much capacity.
	if float64(n) < 0.9*float64(v) {
		n += divisor
	}
	return n
}

type convBNAct struct {
	conv *nn.Conv2D
	bn   *nn.BatchNorm
	hs   bool
}

func newConvBNAct(p *nn.Path, cIn, cOut, kernel, stride, groups int64, hs bool) *convBNAct {
	cfg := nn.DefaultConv2DConfig()
	cfg.Stride = []int64{stride, stride}
	cfg.Padding = []int64{kernel / 2, kernel / 2}
	cfg.Groups = groups
	cfg.Bias = false

	return &convBNAct{
		conv: nn.NewConv2D(p.Sub("0"), cIn, cOut, kernel, cfg),
		bn:   nn.BatchNorm2D(p.Sub("1"), cOut, nn.DefaultBatchNormConfig()),
		hs:   hs,
	}
}

func (c *convBNAct) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	conv := c.conv.Forward(x)
	bn := c.bn.ForwardT(conv, train)
	conv.MustDrop()
	if c.hs {
		return bn.MustHardswish(true)
	}
	return bn.MustRelu(true)
}

type squeezeExcitation struct {
	fc1 *nn.Conv2D
	fc2 *nn.Conv2D
}

func newSqueezeExcitation(p *nn.Path, channels int64) *squeezeExcitation {
	squeeze := makeDivisible(channels/4, 8)
	return &squeezeExcitation{
		fc1: nn.NewConv2D(p.Sub("fc1"), channels, squeeze, 1, nn.DefaultConv2DConfig()),
		fc2: nn.NewConv2D(p.Sub("fc2"), squeeze, channels, 1, nn.DefaultConv2DConfig()),
	}
}

func (s *squeezeExcitation) Forward(x *ts.Tensor) *ts.Tensor {
	pooled := x.MustAdaptiveAvgPool2d([]int64{1, 1}, false)
	h := s.fc1.Forward(pooled)
	pooled.MustDrop()
	r := h.MustRelu(true)
	scale := s.fc2.Forward(r)
	r.MustDrop()
	gate := scale.MustHardsigmoid(true)
	out := x.MustMul(gate, false)
	gate.MustDrop()
	return out
}

type invertedResidual struct {
	expand   *convBNAct // nil when the block does not expand
	depth    *convBNAct
	se       *squeezeExcitation // nil without squeeze-excitation
	project  *nn.Conv2D
	projBN   *nn.BatchNorm
	residual bool
}

func newInvertedResidual(p *nn.Path, s invertedResidualSetting) *invertedResidual {
	block := &invertedResidual{
		residual: s.stride == 1 && s.channels == s.out,
	}

	cur := s.channels
	if s.expand != s.channels {
		block.expand = newConvBNAct(p.Sub("expand"), cur, s.expand, 1, 1, 1, s.hs)
		cur = s.expand
	}

	block.depth = newConvBNAct(p.Sub("depthwise"), cur, cur, s.kernel, s.stride, cur, s.hs)
	if s.se {
		block.se = newSqueezeExcitation(p.Sub("se"), cur)
	}

	projCfg := nn.DefaultConv2DConfig()
	projCfg.Bias = false
	block.project = nn.NewConv2D(p.Sub("project"), cur, s.out, 1, projCfg)
	block.projBN = nn.BatchNorm2D(p.Sub("project_bn"), s.out, nn.DefaultBatchNormConfig())

	return block
}

func (b *invertedResidual) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	cur := x
	if b.expand != nil {
		cur = b.expand.ForwardT(x, train)
	}

	dw := b.depth.ForwardT(cur, train)
	if cur != x {
		cur.MustDrop()
	}

	if b.se != nil {
		scaled := b.se.Forward(dw)
		dw.MustDrop()
		dw = scaled
	}

	proj := b.project.Forward(dw)
	dw.MustDrop()
	out := b.projBN.ForwardT(proj, train)
	proj.MustDrop()

	if b.residual {
		summed := out.MustAdd(x, true)
		return summed
	}
	return out
}

type mobileNetV3 struct {
	stem    *convBNAct
	blocks  []*invertedResidual
	lastCBA *convBNAct
	fc1     *nn.Linear
	fc2     *nn.Linear
}

var _ ts.ModuleT = (*mobileNetV3)(nil)

func newMobileNetV3Large(p *nn.Path, numClasses int64) *mobileNetV3 {
	const lastChannels = 960
	const hiddenChannels = 1280

	m := &mobileNetV3{
		stem: newConvBNAct(p.Sub("stem"), 3, 16, 3, 2, 1, true),
	}

	features := p.Sub("features")
	in := int64(16)
	for i, s := range mobileNetV3LargeSettings() {
		s.channels = in
		m.blocks = append(m.blocks, newInvertedResidual(features.Sub(fmt.Sprintf("%d", i)), s))
		in = s.out
	}

	m.lastCBA = newConvBNAct(p.Sub("last_conv"), in, lastChannels, 1, 1, 1, true)

	classifier := p.Sub("classifier")
	m.fc1 = nn.NewLinear(classifier.Sub("0"), lastChannels, hiddenChannels, nn.DefaultLinearConfig())
	m.fc2 = nn.NewLinear(classifier.Sub("3"), hiddenChannels, numClasses, nn.DefaultLinearConfig())

	return m
}

func (m *mobileNetV3) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	cur := m.stem.ForwardT(x, train)
	for _, blk := range m.blocks {
		next := blk.ForwardT(cur, train)
		cur.MustDrop()
		cur = next
	}

	feat := m.lastCBA.ForwardT(cur, train)
	cur.MustDrop()

	pooled := feat.MustAdaptiveAvgPool2d([]int64{1, 1}, true)
	flat := pooled.MustFlatten(1, -1, true)

	h := m.fc1.Forward(flat)
	flat.MustDrop()
	act := h.MustHardswish(true)
	out := m.fc2.Forward(act)
	act.MustDrop()
	return out
}
