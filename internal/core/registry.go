package core

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
	"github.com/sugarme/gotch/vision"
)

// Architecture enumerates the supported classifier backbones, spelled the way
// descriptor files spell them.
type Architecture string

const (
	ViTB16         Architecture = "ViT"
	ViTB32         Architecture = "ViT32"
	ResNet50       Architecture = "ResNet50"
	ResNet101      Architecture = "ResNet101"
	EfficientNetB0 Architecture = "EfficientNetB0"
	EfficientNetB4 Architecture = "EfficientNetB4"
	MobileNetV3    Architecture = "MobileNetV3"
	DenseNet121    Architecture = "DenseNet121"
)

// archSpec carries everything one architecture variant needs: the backbone
// constructor with its numClasses-wide head, the parameter path prefix of
// that head, and the input resolution the backbone was trained at.
type archSpec struct {
	build      func(p *nn.Path, numClasses int64) ts.ModuleT
	headPrefix string
	inputSize  int
}

var archSpecs = map[Architecture]archSpec{
	ViTB16: {
		build:      func(p *nn.Path, n int64) ts.ModuleT { return newViT(p, vitB16Config(), n) },
		headPrefix: "heads",
		inputSize:  224,
	},
	ViTB32: {
		build:      func(p *nn.Path, n int64) ts.ModuleT { return newViT(p, vitB32Config(), n) },
		headPrefix: "heads",
		inputSize:  224,
	},
	ResNet50: {
		build:      func(p *nn.Path, n int64) ts.ModuleT { return vision.ResNet50(p, n) },
		headPrefix: "fc",
		inputSize:  224,
	},
	ResNet101: {
		build:      func(p *nn.Path, n int64) ts.ModuleT { return vision.ResNet101(p, n) },
		headPrefix: "fc",
		inputSize:  224,
	},
	EfficientNetB0: {
		build:      func(p *nn.Path, n int64) ts.ModuleT { return vision.EfficientNetB0(p, n) },
		headPrefix: "classifier",
		inputSize:  224,
	},
	EfficientNetB4: {
		build:      func(p *nn.Path, n int64) ts.ModuleT { return vision.EfficientNetB4(p, n) },
		headPrefix: "classifier",
		inputSize:  380,
	},
	MobileNetV3: {
		build:      func(p *nn.Path, n int64) ts.ModuleT { return newMobileNetV3Large(p, n) },
		headPrefix: "classifier",
		inputSize:  224,
	},
	DenseNet121: {
		build:      func(p *nn.Path, n int64) ts.ModuleT { return vision.DenseNet121(p, n) },
		headPrefix: "classifier",
		inputSize:  224,
	},
}

// Architectures lists the recognized tokens in stable order.
func Architectures() []Architecture {
	archs := make([]Architecture, 0, len(archSpecs))
	for a := range archSpecs {
		archs = append(archs, a)
	}
	sort.Slice(archs, func(i, j int) bool { return archs[i] < archs[j] })
	return archs
}

// Registry builds classifier models from architecture tokens.
type Registry struct {
	device gotch.Device

	// pretrainedDir optionally holds locally cached backbone weights, one
	// <token>.ot file per architecture. Fetching weights from a model zoo is
	// out of scope; this directory is populated out of band.
	pretrainedDir string
}

func NewRegistry(device gotch.Device) *Registry {
	return &Registry{device: device}
}

func (r *Registry) WithPretrainedDir(dir string) *Registry {
	r.pretrainedDir = dir
	return r
}

// Build instantiates the named backbone with a freshly initialized
// numClasses-wide classification head. With freeze set, every parameter
// except the head's is marked non-trainable.
func (r *Registry) Build(arch Architecture, numClasses int64, pretrained, freeze bool) (*TorchClassifier, error) {
	spec, ok := archSpecs[arch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArchitecture, arch)
	}

	vs := nn.NewVarStore(r.device)
	net := spec.build(vs.Root(), numClasses)

	if pretrained {
		if r.pretrainedDir == "" {
			slog.Warn("pretrained weights requested but no pretrained directory configured, keeping fresh initialization", "architecture", arch)
		} else {
			path := filepath.Join(r.pretrainedDir, string(arch)+".ot")
			if _, err := vs.LoadPartial(path); err != nil {
				return nil, fmt.Errorf("loading pretrained weights for %s: %w", arch, err)
			}
		}
	}

	if freeze {
		if err := freezeExceptHead(vs, spec.headPrefix); err != nil {
			return nil, err
		}
	}

	return &TorchClassifier{
		vs:        vs,
		net:       net,
		arch:      arch,
		inputSize: spec.inputSize,
	}, nil
}

// freezeExceptHead disables gradients on every variable outside the head
// prefix. It is an error for the prefix to match nothing: a model without a
// recognizable head cannot be fine-tuned and silently freezing everything
// would hide that.
func freezeExceptHead(vs *nn.VarStore, headPrefix string) error {
	found := false
	for name, v := range vs.Variables() {
		if name == headPrefix || strings.HasPrefix(name, headPrefix+".") {
			found = true
			continue
		}
		v.MustRequiresGrad_(false)
	}

	if !found {
		return fmt.Errorf("%w: no parameters under %q", ErrMissingClassifierHead, headPrefix)
	}
	return nil
}
