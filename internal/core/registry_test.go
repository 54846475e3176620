package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
)

func TestArchitecturesEnumeration(t *testing.T) {
	assert.ElementsMatch(t, []Architecture{
		ViTB16, ViTB32, ResNet50, ResNet101,
		EfficientNetB0, EfficientNetB4, MobileNetV3, DenseNet121,
	}, Architectures())
}

func TestBuildUnknownArchitecture(t *testing.T) {
	registry := NewRegistry(gotch.CPU)

	model, err := registry.Build("Bogus", 1, false, false)
	require.Error(t, err)
	assert.Nil(t, model)
	assert.ErrorIs(t, err, ErrUnsupportedArchitecture)
	assert.Contains(t, err.Error(), "Bogus")
}

func TestBuildAndFreezeLeavesOnlyHeadTrainable(t *testing.T) {
	registry := NewRegistry(gotch.CPU)

	for _, arch := range Architectures() {
		arch := arch
		t.Run(string(arch), func(t *testing.T) {
			model, err := registry.Build(arch, 1, false, true)
			require.NoError(t, err)
			defer model.Release()

			headPrefix := archSpecs[arch].headPrefix

			trainable := model.TrainableParameters()
			require.NotEmpty(t, trainable, "frozen model must keep its head trainable")
			for _, name := range trainable {
				assert.Truef(t,
					name == headPrefix || strings.HasPrefix(name, headPrefix+"."),
					"parameter %q should be frozen", name)
			}
		})
	}
}

func TestFreezeExceptHeadMissingHead(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	nn.NewLinear(vs.Root().Sub("features"), 8, 8, nn.DefaultLinearConfig())

	err := freezeExceptHead(vs, "classifier")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingClassifierHead)
}
