package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ClassifierLoader turns a weights file plus its descriptor into a ready
// Classifier. One loader exists per supported runtime, keyed by weights file
// extension.
type ClassifierLoader func(weightsPath string, info ModelInfo) (Classifier, error)

func (r *Registry) loaders() map[string]ClassifierLoader {
	return map[string]ClassifierLoader{
		".onnx": func(path string, info ModelInfo) (Classifier, error) {
			return LoadOnnxClassifier(path, info.ImgSize)
		},
		".pt": r.loadTorch,
		".ot": r.loadTorch,
	}
}

func (r *Registry) loadTorch(path string, info ModelInfo) (Classifier, error) {
	// num_classes is always 1: the trained checkpoints carry a single
	// homogeneity logit.
	model, err := r.Build(Architecture(info.ModelName), 1, false, false)
	if err != nil {
		return nil, err
	}

	if err := model.vs.Load(path); err != nil {
		model.Release()
		return nil, fmt.Errorf("loading weights from %s: %w", path, err)
	}

	// Inference mode: no gradient tracking anywhere.
	model.vs.Freeze()
	if info.ImgSize > 0 {
		model.inputSize = info.ImgSize
	}

	return model, nil
}

// LoadClassifier reads the model descriptor, builds the architecture it
// names, loads the trained weights, and returns the model in inference mode
// together with its input size and descriptor. Every failure here is fatal
// for service startup.
func LoadClassifier(r *Registry, weightsPath, infoPath string) (Classifier, int, ModelInfo, error) {
	raw, err := os.ReadFile(infoPath)
	if err != nil {
		return nil, 0, ModelInfo{}, fmt.Errorf("reading model descriptor: %w", err)
	}

	var info ModelInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, 0, ModelInfo{}, fmt.Errorf("parsing model descriptor %s: %w", infoPath, err)
	}
	if info.ModelName == "" || info.ImgSize <= 0 {
		return nil, 0, ModelInfo{}, fmt.Errorf("model descriptor %s is missing model_name or img_size", infoPath)
	}

	ext := strings.ToLower(filepath.Ext(weightsPath))
	loader, ok := r.loaders()[ext]
	if !ok {
		return nil, 0, ModelInfo{}, fmt.Errorf("no loader registered for weights file %s", weightsPath)
	}

	model, err := loader(weightsPath, info)
	if err != nil {
		return nil, 0, ModelInfo{}, err
	}

	return model, info.ImgSize, info, nil
}
