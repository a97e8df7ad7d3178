package embedding

import "strings"

// Process-wide ONNX Runtime knobs. Execution-provider choice is a
// deployment decision, so these are set once at startup, before any
// session exists; sessions built earlier keep the settings they saw.
var onnxEPPreference string
var onnxDeviceID int
var onnxBatchSize int = 32
var onnxEPOptions map[string]string

// SetONNXBatchSize sets the chunk size used for batched ONNX inference.
// Non-positive values are ignored.
func SetONNXBatchSize(n int) {
	if n > 0 {
		onnxBatchSize = n
	}
}

// SetONNXExecutionProvider selects the ONNX Runtime execution provider:
// "cuda", "tensorrt", "coreml", "dml", or "cpu".
func SetONNXExecutionProvider(ep string) {
	onnxEPPreference = strings.ToLower(strings.TrimSpace(ep))
}

// SetONNXDeviceID sets the device ordinal for providers that take one
// (DirectML, multi-GPU CUDA hosts).
func SetONNXDeviceID(id int) { onnxDeviceID = id }

// SetONNXEPOptions sets provider-specific options applied when the
// session for the selected execution provider is created.
func SetONNXEPOptions(opts map[string]string) { onnxEPOptions = opts }
