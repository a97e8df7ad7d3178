//go:build onnx
// +build onnx

package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// onnxInferencer runs a transformer encoder through ONNX Runtime and
// returns the token-level hidden states. It implements Inferencer and
// BatchInferencer; chunking policy belongs to the pipeline.
type onnxInferencer struct {
	modelPath   string
	hidden      int
	mu          sync.Mutex
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
}

// NewONNXInferencer opens modelPath lazily on first use. hidden must
// match the model's hidden state width; mismatches surface as errors on
// the first run rather than silent truncation.
func NewONNXInferencer(modelPath string, hidden int) (Inferencer, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("%w: onnx model path is required", ErrInvalidConfig)
	}
	if hidden <= 0 {
		hidden = 384
	}
	return &onnxInferencer{modelPath: modelPath, hidden: hidden}, nil
}

func newONNXInferencer(modelPath string, hidden int) (Inferencer, error) {
	return NewONNXInferencer(modelPath, hidden)
}

func (p *onnxInferencer) HiddenSize() int { return p.hidden }

func (p *onnxInferencer) ensureSession() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		return nil
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}
	// Probe IO
	ins, outs, err := ort.GetInputOutputInfo(p.modelPath)
	if err != nil {
		return fmt.Errorf("get IO info: %w", err)
	}
	var inputNames []string
	// Prefer common names
	var idsName, maskName, tokTypeName string
	for _, ii := range ins {
		name := ii.Name
		n := strings.ToLower(name)
		if strings.Contains(n, "input_ids") || n == "input_ids" || n == "ids" {
			idsName = name
		}
		if strings.Contains(n, "attention_mask") || n == "attention_mask" || n == "mask" {
			maskName = name
		}
		if strings.Contains(n, "token_type") || n == "token_type_ids" {
			tokTypeName = name
		}
	}
	if idsName != "" {
		inputNames = append(inputNames, idsName)
	}
	if maskName != "" {
		inputNames = append(inputNames, maskName)
	}
	if tokTypeName != "" {
		inputNames = append(inputNames, tokTypeName)
	}
	// Fallback: take first two int tensor inputs
	if len(inputNames) == 0 {
		for _, ii := range ins {
			if ii.DataType == ort.TensorElementDataTypeInt64 {
				inputNames = append(inputNames, ii.Name)
				if len(inputNames) >= 2 {
					break
				}
			}
		}
	}
	if len(inputNames) == 0 {
		return fmt.Errorf("could not determine ONNX input names")
	}
	// Choose first float output by default
	var outputNames []string
	for _, oi := range outs {
		if oi.DataType == ort.TensorElementDataTypeFloat {
			outputNames = append(outputNames, oi.Name)
			break
		}
	}
	if len(outputNames) == 0 {
		return fmt.Errorf("could not determine ONNX output name")
	}
	// Session options for the requested execution provider. Appending an
	// EP is best-effort; ONNX Runtime falls back to CPU when the provider
	// is unavailable at session creation.
	var opts *ort.SessionOptions
	if onnxEPPreference != "" && onnxEPPreference != "cpu" {
		if o, e := ort.NewSessionOptions(); e == nil {
			_ = o.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll)
			_ = o.SetIntraOpNumThreads(0)
			_ = o.SetInterOpNumThreads(0)
			switch onnxEPPreference {
			case "cuda":
				if cu, e2 := ort.NewCUDAProviderOptions(); e2 == nil {
					if len(onnxEPOptions) > 0 {
						_ = cu.Update(onnxEPOptions)
					}
					_ = o.AppendExecutionProviderCUDA(cu)
					_ = cu.Destroy()
				}
			case "tensorrt":
				if trt, e2 := ort.NewTensorRTProviderOptions(); e2 == nil {
					if len(onnxEPOptions) > 0 {
						_ = trt.Update(onnxEPOptions)
					}
					_ = o.AppendExecutionProviderTensorRT(trt)
					_ = trt.Destroy()
				}
			case "coreml":
				_ = o.AppendExecutionProviderCoreMLV2(onnxEPOptions)
			case "dml":
				_ = o.AppendExecutionProviderDirectML(onnxDeviceID)
			}
			opts = o
		}
	}
	// Create session with names and optional options
	var s *ort.DynamicAdvancedSession
	if opts != nil {
		s, err = ort.NewDynamicAdvancedSession(p.modelPath, inputNames, outputNames, opts)
		_ = opts.Destroy()
	} else {
		s, err = ort.NewDynamicAdvancedSession(p.modelPath, inputNames, outputNames, nil)
	}
	if err != nil {
		return fmt.Errorf("create onnx session: %w", err)
	}
	p.session = s
	p.inputNames = inputNames
	p.outputNames = outputNames
	return nil
}

func (p *onnxInferencer) Infer(ctx context.Context, ids, mask []int64) ([]float32, error) {
	matrices, err := p.InferBatch(ctx, [][]int64{ids}, [][]int64{mask})
	if err != nil {
		return nil, err
	}
	return matrices[0], nil
}

func (p *onnxInferencer) InferBatch(ctx context.Context, ids, masks [][]int64) ([][]float32, error) {
	if err := p.ensureSession(); err != nil {
		return nil, err
	}
	batch := len(ids)
	if batch == 0 {
		return [][]float32{}, nil
	}
	if len(masks) != batch {
		return nil, fmt.Errorf("got %d masks for %d sequences", len(masks), batch)
	}
	seq := len(ids[0])
	for i := range ids {
		if len(ids[i]) != seq || len(masks[i]) != seq {
			return nil, fmt.Errorf("sequence %d is not of uniform length %d", i, seq)
		}
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	// Flatten for tensors
	flatIDs := make([]int64, batch*seq)
	flatMask := make([]int64, batch*seq)
	for i := 0; i < batch; i++ {
		copy(flatIDs[i*seq:(i+1)*seq], ids[i])
		copy(flatMask[i*seq:(i+1)*seq], masks[i])
	}
	shape := ort.NewShape(int64(batch), int64(seq))
	idsTensor, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, fmt.Errorf("ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return nil, fmt.Errorf("mask tensor: %w", err)
	}
	defer maskTensor.Destroy()
	// Prepare inputs in same order as inputNames
	inVals := make([]ort.Value, len(p.inputNames))
	for i, name := range p.inputNames {
		ln := strings.ToLower(name)
		if strings.Contains(ln, "input_ids") || ln == "input_ids" || ln == "ids" {
			inVals[i] = idsTensor
		} else if strings.Contains(ln, "attention_mask") || ln == "attention_mask" || ln == "mask" {
			inVals[i] = maskTensor
		} else {
			zero := make([]int64, batch*seq)
			zeroTensor, e := ort.NewTensor(shape, zero)
			if e != nil {
				return nil, fmt.Errorf("alloc zero tensor: %w", e)
			}
			defer zeroTensor.Destroy()
			inVals[i] = zeroTensor
		}
	}
	outs := make([]ort.Value, len(p.outputNames))
	if err := p.session.Run(inVals, outs); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	defer func() {
		for _, v := range outs {
			if v != nil {
				v.Destroy()
			}
		}
	}()
	t, ok := outs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type")
	}
	data := t.GetData()
	outShape := t.GetShape()
	// Pooling needs the token-level hidden states: [batch, seq, hidden].
	// A rank-2 output means the model pools internally and cannot serve
	// this pipeline.
	if len(outShape) != 3 {
		return nil, fmt.Errorf("model output rank %d, want token-level [batch, seq, hidden]", len(outShape))
	}
	ob, os, oh := int(outShape[0]), int(outShape[1]), int(outShape[2])
	if ob != batch || os != seq {
		return nil, fmt.Errorf("model output shape [%d,%d,%d] does not match batch %d seq %d", ob, os, oh, batch, seq)
	}
	if oh != p.hidden {
		return nil, fmt.Errorf("model hidden size %d does not match configured %d", oh, p.hidden)
	}
	matrices := make([][]float32, batch)
	stride := seq * oh
	for i := 0; i < batch; i++ {
		m := make([]float32, stride)
		copy(m, data[i*stride:(i+1)*stride])
		matrices[i] = m
	}
	return matrices, nil
}
