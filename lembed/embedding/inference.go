package embedding

import (
	"context"
	"errors"
)

// Inferencer is the external model-execution collaborator: it turns one
// encoded sequence into a flat [len(ids) x HiddenSize()] matrix of
// per-token vectors. Implementations own their runtime; the pipeline
// treats failures as opaque and never retries them.
type Inferencer interface {
	Infer(ctx context.Context, ids, mask []int64) ([]float32, error)
	HiddenSize() int
}

// BatchInferencer is the optional upgrade for backends that run whole
// batches in one call. All sequences in a call share one fixed length.
type BatchInferencer interface {
	Inferencer
	InferBatch(ctx context.Context, ids, masks [][]int64) ([][]float32, error)
}

var (
	// ErrInference wraps any failure from the inference collaborator.
	ErrInference = errors.New("inference failed")
	// ErrInvalidConfig indicates a pipeline that cannot be constructed.
	ErrInvalidConfig = errors.New("invalid pipeline configuration")
)
