// Package tokenizer turns raw text into fixed-length token-id and
// attention-mask sequences compatible with BERT-family models.
package tokenizer

import (
	"errors"
)

// Tokenizer converts raw text to model-ready token IDs and attention masks
type Tokenizer interface {
	Tokenize(texts []string) (inputIDs [][]int64, attentionMasks [][]int64, err error)
}

// Config holds basic tokenizer settings
type Config struct {
	// MaxSeqLen is the fixed sequence length used by Tokenize. Encode
	// takes an explicit length and ignores it.
	MaxSeqLen int
	// Lowercase applies invariant lowercasing before segmentation.
	Lowercase bool
}

// EncodedSequence is one fixed-length encoding: equal-length token ids
// and a 0/1 attention mask with a single contiguous leading run of 1s.
type EncodedSequence struct {
	TokenIDs      []int64
	AttentionMask []int64
}

// Len returns the fixed sequence length.
func (e EncodedSequence) Len() int { return len(e.TokenIDs) }

var (
	// ErrVocabNotFound indicates the vocabulary path could not be read.
	ErrVocabNotFound = errors.New("vocabulary not found")
	// ErrInvalidSeqLength indicates a non-positive target length.
	ErrInvalidSeqLength = errors.New("invalid sequence length")
	// ErrUnsupported indicates the tokenizer could not be initialized
	ErrUnsupported = errors.New("unsupported tokenizer configuration")
)
