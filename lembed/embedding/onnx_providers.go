//go:build onnx
// +build onnx

package embedding

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// ListONNXProviders reports the execution providers a session may ask
// ONNX Runtime for. The binding carries no provider-enumeration call,
// so this returns the configured preference plus the always-present
// CPU fallback instead of probing the runtime.
func ListONNXProviders() ([]string, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}
	if onnxEPPreference != "" && onnxEPPreference != "cpu" {
		return []string{onnxEPPreference, "cpu"}, nil
	}
	return []string{"cpu"}, nil
}
