package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/venthic/localembed/lembed/modelfetch"
	"github.com/venthic/localembed/lembed/pooling"
	"github.com/venthic/localembed/lembed/tokenizer"
)

// Provider produces fixed-dimension embeddings from input strings
type Provider interface {
	Dimensions() int
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// NewProviderLegacy returns a provider by dims/modelPath (legacy signature)
func NewProviderLegacy(dims int, modelPath string) Provider {
	return NewProvider("hash", dims, modelPath)
}

// NewProvider selects an embedding provider by name (e.g., "hash", "local", "onnx").
// modelPath points at the .onnx model; vocab.txt is expected next to it.
// Unknown providers fall back to a deterministic hash-based embedder.
func NewProvider(providerName string, dims int, modelPath string) Provider {
	if dims <= 0 {
		dims = 384
	}
	name := strings.ToLower(strings.TrimSpace(providerName))
	switch name {
	case "hash", "", "dev":
		return NewHashProvider(dims)
	case "local", "minilm", "bert":
		return newLocalProvider(dims, modelPath)
	default:
		if strings.HasPrefix(name, "onnx") {
			return newLocalProvider(dims, modelPath)
		}
		return NewHashProvider(dims)
	}
}

// NewProviderForModel resolves modelID through the fetcher, downloading
// assets on first use, and returns a local provider over them.
func NewProviderForModel(ctx context.Context, f *modelfetch.Fetcher, modelID string, dims int) (Provider, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: model fetcher is required", ErrInvalidConfig)
	}
	if dims <= 0 {
		dims = 384
	}
	assets, err := f.Resolve(ctx, modelID)
	if err != nil {
		return nil, err
	}
	return newLocalProvider(dims, assets.ModelPath), nil
}

// localProvider runs the full pipeline over a local ONNX model. The
// pipeline is built lazily on first use so constructing the provider
// never touches the filesystem or the runtime.
type localProvider struct {
	dims      int
	modelPath string

	mu   sync.Mutex
	pipe *Pipeline
}

func newLocalProvider(dims int, modelPath string) Provider {
	return &localProvider{dims: dims, modelPath: modelPath}
}

func (p *localProvider) Dimensions() int { return p.dims }

func (p *localProvider) ensurePipeline() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pipe != nil {
		return nil
	}
	if p.modelPath == "" {
		return fmt.Errorf("%w: onnx model path is required", ErrInvalidConfig)
	}
	inf, err := newONNXInferencer(p.modelPath, p.dims)
	if err != nil {
		return err
	}
	vocabPath := filepath.Join(filepath.Dir(p.modelPath), "vocab.txt")
	// Native WordPiece first; the sugarme backend covers vocabularies
	// the native loader rejects.
	var tok tokenizer.Tokenizer
	if wp, werr := tokenizer.NewWordPiece(vocabPath, tokenizer.Config{Lowercase: true}); werr == nil {
		tok = wp
	} else if swp, serr := tokenizer.NewSugarWordPiece(vocabPath, 256); serr == nil {
		tok = swp
	} else {
		return fmt.Errorf("failed to initialize tokenizer: %v", werr)
	}
	pipe, err := NewPipeline(tok, inf, Options{
		Pooling:    pooling.Mean,
		Normalize:  true,
		Dimensions: p.dims,
		BatchSize:  onnxBatchSize,
	})
	if err != nil {
		return err
	}
	p.pipe = pipe
	return nil
}

func (p *localProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if err := p.ensurePipeline(); err != nil {
		return nil, err
	}
	return p.pipe.EmbedBatch(ctx, inputs)
}
