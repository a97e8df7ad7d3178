package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/venthic/localembed/lembed/pooling"
	"github.com/venthic/localembed/lembed/tokenizer"
	"github.com/venthic/localembed/lembed/vecmath"
)

// VectorCache stores finished embeddings keyed by model id and input
// text. Implementations live elsewhere (see the cache package); a nil
// cache disables the lookups.
type VectorCache interface {
	Get(ctx context.Context, modelID, text string) ([]float32, bool, error)
	Put(ctx context.Context, modelID, text string, vec []float32) error
}

// Options configures a Pipeline. Zero values pick working defaults.
type Options struct {
	// Pooling selects the reduction strategy. Empty means Mean.
	Pooling pooling.Mode
	// Normalize L2-normalizes every output vector.
	Normalize bool
	// Dimensions truncates or pads outputs after pooling (and before
	// normalization). 0 keeps the model's hidden size.
	Dimensions int
	// BatchSize is the chunk size handed to a BatchInferencer.
	BatchSize int
	// MaxWorkers bounds the parallel fan-out.
	MaxWorkers int
	// ParallelThreshold is the batch size above which per-item work
	// fans out over the worker pool instead of running sequentially.
	ParallelThreshold int
	// Cache, when set, is consulted before inference and updated after.
	Cache VectorCache
	// ModelID namespaces cache keys.
	ModelID string
}

const (
	defaultBatchSize         = 32
	defaultParallelThreshold = 4
)

func (o *Options) fillDefaults() {
	if o.Pooling == "" {
		o.Pooling = pooling.Mean
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.MaxWorkers <= 0 {
		// CPU-bound pooling plus possibly-blocking inference calls.
		o.MaxWorkers = min(max(runtime.NumCPU()*2, 4), 32)
	}
	if o.ParallelThreshold <= 0 {
		o.ParallelThreshold = defaultParallelThreshold
	}
}

// Pipeline is the end-to-end text encoder: tokenize, infer, pool,
// normalize. The tokenizer, inferencer, pooling strategy and options
// are fixed at construction and shared read-only across calls, so one
// Pipeline serves concurrent callers.
type Pipeline struct {
	tok      tokenizer.Tokenizer
	inf      Inferencer
	strategy pooling.Strategy
	opts     Options
	hidden   int

	// scratch holds per-item pooling buffers of hidden size, rented for
	// the duration of one item and returned on every exit path.
	scratch sync.Pool
}

// NewPipeline builds a pipeline over a tokenizer and an inference
// collaborator. Construction fails on a missing collaborator or an
// unrecognized pooling mode; a partially-initialized pipeline is never
// returned.
func NewPipeline(tok tokenizer.Tokenizer, inf Inferencer, opts Options) (*Pipeline, error) {
	if tok == nil {
		return nil, fmt.Errorf("%w: nil tokenizer", ErrInvalidConfig)
	}
	if inf == nil {
		return nil, fmt.Errorf("%w: nil inferencer", ErrInvalidConfig)
	}
	hidden := inf.HiddenSize()
	if hidden <= 0 {
		return nil, fmt.Errorf("%w: inferencer hidden size %d", ErrInvalidConfig, hidden)
	}
	opts.fillDefaults()
	strategy, err := pooling.New(opts.Pooling)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		tok:      tok,
		inf:      inf,
		strategy: strategy,
		opts:     opts,
		hidden:   hidden,
	}
	p.scratch.New = func() any {
		buf := make([]float32, hidden)
		return &buf
	}
	return p, nil
}

// Dimensions returns the length of the vectors this pipeline emits.
func (p *Pipeline) Dimensions() int {
	if p.opts.Dimensions > 0 {
		return p.opts.Dimensions
	}
	return p.hidden
}

// Embed encodes one text into a sentence vector.
func (p *Pipeline) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := p.cacheGet(ctx, text); ok {
		return vec, nil
	}
	ids, masks, err := p.tok.Tokenize([]string{text})
	if err != nil {
		return nil, err
	}
	vec, err := p.encodeOne(ctx, ids[0], masks[0])
	if err != nil {
		return nil, err
	}
	p.cachePut(ctx, text, vec)
	return vec, nil
}

// EmbedBatch encodes texts into one vector each, in input order. An
// empty batch returns an empty result without touching the inferencer.
func (p *Pipeline) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	pending := make([]int, 0, len(texts))
	for i, text := range texts {
		if vec, ok := p.cacheGet(ctx, text); ok {
			results[i] = vec
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return results, nil
	}

	pendingTexts := make([]string, len(pending))
	for j, i := range pending {
		pendingTexts[j] = texts[i]
	}
	ids, masks, err := p.tok.Tokenize(pendingTexts)
	if err != nil {
		return nil, err
	}

	if bi, ok := p.inf.(BatchInferencer); ok {
		err = p.runChunked(ctx, bi, ids, masks, pending, results)
	} else {
		err = p.runPerItem(ctx, ids, masks, pending, results)
	}
	if err != nil {
		return nil, err
	}

	for _, i := range pending {
		p.cachePut(ctx, texts[i], results[i])
	}
	return results, nil
}

// runPerItem drives a single-sequence inferencer: sequential below the
// parallel threshold, worker-pool fan-out above it. Each task writes
// only its own pre-allocated result slot.
func (p *Pipeline) runPerItem(ctx context.Context, ids, masks [][]int64, pending []int, results [][]float32) error {
	if len(pending) <= p.opts.ParallelThreshold {
		for j := range pending {
			if err := ctx.Err(); err != nil {
				return err
			}
			vec, err := p.encodeOne(ctx, ids[j], masks[j])
			if err != nil {
				return err
			}
			results[pending[j]] = vec
		}
		return nil
	}

	slog.Debug("embedding batch fan-out",
		"items", len(pending),
		"workers", p.opts.MaxWorkers)
	workers := pool.New().WithMaxGoroutines(p.opts.MaxWorkers).WithContext(ctx).WithCancelOnError().WithFirstError()
	for j := range pending {
		workers.Go(func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			vec, err := p.encodeOne(ctx, ids[j], masks[j])
			if err != nil {
				return err
			}
			results[pending[j]] = vec
			return nil
		})
	}
	return workers.Wait()
}

// runChunked drives a batch-capable inferencer in BatchSize chunks,
// then pools the returned matrices per item.
func (p *Pipeline) runChunked(ctx context.Context, bi BatchInferencer, ids, masks [][]int64, pending []int, results [][]float32) error {
	for start := 0; start < len(pending); start += p.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+p.opts.BatchSize, len(pending))
		matrices, err := bi.InferBatch(ctx, ids[start:end], masks[start:end])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInference, err)
		}
		if len(matrices) != end-start {
			return fmt.Errorf("%w: got %d matrices for %d sequences", ErrInference, len(matrices), end-start)
		}
		if err := p.poolChunk(ctx, matrices, masks[start:end], pending[start:end], results); err != nil {
			return err
		}
	}
	return nil
}

// poolChunk pools one chunk of matrices; the work is embarrassingly
// parallel so larger chunks fan out.
func (p *Pipeline) poolChunk(ctx context.Context, matrices [][]float32, masks [][]int64, pending []int, results [][]float32) error {
	if len(pending) <= p.opts.ParallelThreshold {
		for j := range pending {
			if err := ctx.Err(); err != nil {
				return err
			}
			vec, err := p.poolMatrix(matrices[j], masks[j])
			if err != nil {
				return err
			}
			results[pending[j]] = vec
		}
		return nil
	}

	workers := pool.New().WithMaxGoroutines(p.opts.MaxWorkers).WithContext(ctx).WithCancelOnError().WithFirstError()
	for j := range pending {
		workers.Go(func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			vec, err := p.poolMatrix(matrices[j], masks[j])
			if err != nil {
				return err
			}
			results[pending[j]] = vec
			return nil
		})
	}
	return workers.Wait()
}

// encodeOne runs inference for one sequence and pools the result.
func (p *Pipeline) encodeOne(ctx context.Context, ids, mask []int64) ([]float32, error) {
	matrix, err := p.inf.Infer(ctx, ids, mask)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	return p.poolMatrix(matrix, mask)
}

// poolMatrix reduces a token matrix into a fresh caller-owned vector,
// using a rented scratch buffer for the intermediate pooled values.
func (p *Pipeline) poolMatrix(matrix []float32, mask []int64) ([]float32, error) {
	buf := p.scratch.Get().(*[]float32)
	defer p.scratch.Put(buf)
	if err := p.strategy.PoolInto(*buf, matrix, mask, p.hidden); err != nil {
		return nil, err
	}
	out := make([]float32, p.hidden)
	copy(out, *buf)
	out = AdjustToDims(out, p.opts.Dimensions)
	if p.opts.Normalize {
		vecmath.NormalizeL2InPlace(out)
	}
	return out, nil
}

func (p *Pipeline) cacheGet(ctx context.Context, text string) ([]float32, bool) {
	if p.opts.Cache == nil {
		return nil, false
	}
	vec, ok, err := p.opts.Cache.Get(ctx, p.opts.ModelID, text)
	if err != nil {
		slog.Warn("embedding cache read failed", "model", p.opts.ModelID, "error", err)
		return nil, false
	}
	return vec, ok
}

func (p *Pipeline) cachePut(ctx context.Context, text string, vec []float32) {
	if p.opts.Cache == nil {
		return
	}
	if err := p.opts.Cache.Put(ctx, p.opts.ModelID, text, vec); err != nil {
		slog.Warn("embedding cache write failed", "model", p.opts.ModelID, "error", err)
	}
}
