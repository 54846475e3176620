package core

import (
	"fmt"
	"math"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
)

// Vision transformer backbone built from gotch primitives. gotch's vision
// package stops at convolutional models, so the two ViT variants are wired
// here: patch embedding conv, class token + position embeddings, a stack of
// pre-norm transformer blocks, and a linear head under heads.head to match
// the parameter naming of the reference checkpoints.
type vitConfig struct {
	imageSize int64
	patchSize int64
	dim       int64
	depth     int
	heads     int64
	mlpDim    int64
}

func vitB16Config() vitConfig {
	return vitConfig{imageSize: 224, patchSize: 16, dim: 768, depth: 12, heads: 12, mlpDim: 3072}
}

func vitB32Config() vitConfig {
	return vitConfig{imageSize: 224, patchSize: 32, dim: 768, depth: 12, heads: 12, mlpDim: 3072}
}

type vitBlock struct {
	norm1 *nn.LayerNorm
	qkv   *nn.Linear
	proj  *nn.Linear
	norm2 *nn.LayerNorm
	fc1   *nn.Linear
	fc2   *nn.Linear
	heads int64
	dim   int64
}

func newVitBlock(p *nn.Path, cfg vitConfig) *vitBlock {
	lnCfg := nn.DefaultLayerNormConfig()
	linCfg := nn.DefaultLinearConfig()

	return &vitBlock{
		norm1: nn.NewLayerNorm(p.Sub("ln_1"), []int64{cfg.dim}, lnCfg),
		qkv:   nn.NewLinear(p.Sub("qkv"), cfg.dim, 3*cfg.dim, linCfg),
		proj:  nn.NewLinear(p.Sub("proj"), cfg.dim, cfg.dim, linCfg),
		norm2: nn.NewLayerNorm(p.Sub("ln_2"), []int64{cfg.dim}, lnCfg),
		fc1:   nn.NewLinear(p.Sub("mlp_1"), cfg.dim, cfg.mlpDim, linCfg),
		fc2:   nn.NewLinear(p.Sub("mlp_2"), cfg.mlpDim, cfg.dim, linCfg),
		heads: cfg.heads,
		dim:   cfg.dim,
	}
}

func (b *vitBlock) attention(x *ts.Tensor) *ts.Tensor {
	size := x.MustSize() // [B, L, C]
	bs, l := size[0], size[1]
	headDim := b.dim / b.heads

	qkv := b.qkv.Forward(x)
	qkv = qkv.MustReshape([]int64{bs, l, 3, b.heads, headDim}, true)
	qkv = qkv.MustPermute([]int64{2, 0, 3, 1, 4}, true) // [3, B, heads, L, headDim]

	q := qkv.MustGet(0)
	k := qkv.MustGet(1)
	v := qkv.MustGet(2)
	qkv.MustDrop()

	kT := k.MustTranspose(-2, -1, true)
	scores := q.MustMatmul(kT, true)
	kT.MustDrop()

	scaled := scores.MustDivScalar(ts.FloatScalar(math.Sqrt(float64(headDim))), true)
	attn := scaled.MustSoftmax(-1, gotch.Float, true)

	ctx := attn.MustMatmul(v, true)
	v.MustDrop()

	ctx = ctx.MustTranspose(1, 2, true) // [B, L, heads, headDim]
	ctx = ctx.MustReshape([]int64{bs, l, b.dim}, true)

	out := b.proj.Forward(ctx)
	ctx.MustDrop()
	return out
}

func (b *vitBlock) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	n1 := b.norm1.Forward(x)
	attnOut := b.attention(n1)
	n1.MustDrop()

	x1 := x.MustAdd(attnOut, false)
	attnOut.MustDrop()

	n2 := b.norm2.Forward(x1)
	h := b.fc1.Forward(n2)
	n2.MustDrop()

	g := h.MustGelu("none", true)
	mlp := b.fc2.Forward(g)
	g.MustDrop()

	out := x1.MustAdd(mlp, true)
	mlp.MustDrop()
	return out
}

type vit struct {
	patchEmbed *nn.Conv2D
	clsToken   *ts.Tensor
	posEmbed   *ts.Tensor
	blocks     []*vitBlock
	norm       *nn.LayerNorm
	head       *nn.Linear
}

var _ ts.ModuleT = (*vit)(nil)

func newViT(p *nn.Path, cfg vitConfig, numClasses int64) *vit {
	convCfg := nn.DefaultConv2DConfig()
	convCfg.Stride = []int64{cfg.patchSize, cfg.patchSize}

	seqLen := (cfg.imageSize/cfg.patchSize)*(cfg.imageSize/cfg.patchSize) + 1

	v := &vit{
		patchEmbed: nn.NewConv2D(p.Sub("conv_proj"), 3, cfg.dim, cfg.patchSize, convCfg),
		clsToken:   p.MustRandn("class_token", []int64{1, 1, cfg.dim}, 0.0, 0.02),
		posEmbed:   p.MustRandn("pos_embedding", []int64{1, seqLen, cfg.dim}, 0.0, 0.02),
		norm:       nn.NewLayerNorm(p.Sub("ln"), []int64{cfg.dim}, nn.DefaultLayerNormConfig()),
		head:       nn.NewLinear(p.Sub("heads").Sub("head"), cfg.dim, numClasses, nn.DefaultLinearConfig()),
	}

	encoder := p.Sub("encoder")
	for i := 0; i < cfg.depth; i++ {
		v.blocks = append(v.blocks, newVitBlock(encoder.Sub(fmt.Sprintf("layer_%d", i)), cfg))
	}

	return v
}

func (v *vit) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	size := x.MustSize() // [B, 3, H, W]
	bs := size[0]

	patches := v.patchEmbed.Forward(x) // [B, C, H/p, W/p]
	flat := patches.MustFlatten(2, -1, true)
	seq := flat.MustTranspose(1, 2, true) // [B, L-1, C]

	cls := v.clsToken.MustExpand([]int64{bs, -1, -1}, true, false)
	withCls := ts.MustCat([]*ts.Tensor{cls, seq}, 1)
	cls.MustDrop()
	seq.MustDrop()

	cur := withCls.MustAdd(v.posEmbed, true)
	for _, blk := range v.blocks {
		next := blk.ForwardT(cur, train)
		cur.MustDrop()
		cur = next
	}

	normed := v.norm.Forward(cur)
	cur.MustDrop()

	clsOut := normed.MustSelect(1, 0, true) // [B, C]
	out := v.head.Forward(clsOut)
	clsOut.MustDrop()
	return out
}
