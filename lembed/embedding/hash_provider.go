package embedding

import (
	"context"
	"crypto/sha256"

	"github.com/venthic/localembed/lembed/vecmath"
)

// hashProvider is the deterministic dev/test embedder: no model, no
// network, stable output for a given input. Vectors come out unit
// length so they slot into the same consumers as real model output.
type hashProvider struct{ dims int }

func NewHashProvider(dims int) *hashProvider {
	if dims <= 0 {
		dims = 384
	}
	return &hashProvider{dims: dims}
}

func (h *hashProvider) Dimensions() int { return h.dims }

func (h *hashProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, s := range inputs {
		out[i] = h.hashVector(s)
	}
	return out, nil
}

// hashVector expands sha256(text) into dims floats. Every 32-byte block
// re-hashes the seed with a block counter, so wide vectors do not
// repeat with period 32.
func (h *hashProvider) hashVector(s string) []float32 {
	seed := sha256.Sum256([]byte(s))
	block := seed
	vec := make([]float32, h.dims)
	for j := 0; j < h.dims; j++ {
		if j > 0 && j%sha256.Size == 0 {
			block = sha256.Sum256(append(seed[:], byte(j/sha256.Size)))
		}
		b := block[j%sha256.Size]
		vec[j] = (float32(int(b)) - 128.0) / 128.0
	}
	vecmath.NormalizeL2InPlace(vec)
	return vec
}
