//go:build !onnx
// +build !onnx

package embedding

import "fmt"

// NewONNXInferencer is a stub used when built without the "onnx" build tag.
func NewONNXInferencer(modelPath string, hidden int) (Inferencer, error) {
	return nil, fmt.Errorf("onnx inference not available: build with -tags onnx and provide a supported model")
}

func newONNXInferencer(modelPath string, hidden int) (Inferencer, error) {
	return NewONNXInferencer(modelPath, hidden)
}
