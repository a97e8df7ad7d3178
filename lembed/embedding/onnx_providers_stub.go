//go:build !onnx
// +build !onnx

package embedding

import "fmt"

// ListONNXProviders reports nothing in builds without the onnx tag.
func ListONNXProviders() ([]string, error) {
	return nil, fmt.Errorf("onnx runtime not compiled in; rebuild with -tags onnx to enable")
}
