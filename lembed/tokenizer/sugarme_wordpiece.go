package tokenizer

import (
	"fmt"
	"os"
	"path/filepath"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/processor"
)

// SugarWordPiece wraps sugarme/tokenizer WordPiece (BERT-style). It
// serves as an independently-implemented backend for cross-checking the
// native encoder.
type SugarWordPiece struct {
	t         *tk.Tokenizer
	maxSeqLen int
}

// NewSugarWordPiece loads vocab.txt and builds a BERT WordPiece
// tokenizer. path may be the vocab file itself or a model directory
// containing one.
func NewSugarWordPiece(path string, maxSeq int) (*SugarWordPiece, error) {
	vocabFile := resolveVocabFile(path)

	// Special ids come from the same line-order discovery the native
	// tokenizer uses, so both backends frame sequences identically.
	vocab, err := LoadVocabulary(vocabFile)
	if err != nil {
		return nil, err
	}
	if maxSeq <= 0 {
		return nil, fmt.Errorf("%w: max length %d", ErrInvalidSeqLength, maxSeq)
	}

	var wp wordpiece.WordPiece
	if nw, err := wordpiece.NewWordPieceFromFile(vocabFile, UnknownToken); err == nil {
		wp = nw
	} else {
		builder := wordpiece.NewWordPieceBuilder().Files(vocabFile)
		wp = builder.Build()
	}

	t := tk.NewTokenizer(wp)

	// Basic normalizer and pre-tokenizer similar to BERT
	t.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, true))
	t.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	template := processor.NewBertProcessing(
		processor.PostToken{Value: SeparatorToken, Id: int(vocab.SeparatorID())},
		processor.PostToken{Value: StartToken, Id: int(vocab.StartID())},
	)
	t.WithPostProcessor(template)
	t.WithTruncation(&tk.TruncationParams{MaxLength: maxSeq})
	// PaddingParams doesn't support MaxLength in current sugarme version
	t.WithPadding(&tk.PaddingParams{})
	return &SugarWordPiece{t: t, maxSeqLen: maxSeq}, nil
}

func resolveVocabFile(path string) string {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return filepath.Join(path, "vocab.txt")
	}
	return path
}

func (s *SugarWordPiece) Tokenize(texts []string) ([][]int64, [][]int64, error) {
	ids := make([][]int64, len(texts))
	masks := make([][]int64, len(texts))
	for i, txt := range texts {
		enc, err := s.t.Encode(tk.NewSingleEncodeInput(tk.NewInputSequence(txt)), true)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		uids := enc.GetIds()
		umask := enc.GetAttentionMask()

		// enforce fixed-length output (pad/truncate to maxSeqLen)
		rowIDs := make([]int64, s.maxSeqLen)
		rowMask := make([]int64, s.maxSeqLen)
		n := len(uids)
		if n > s.maxSeqLen {
			n = s.maxSeqLen
		}
		for j := 0; j < n; j++ {
			rowIDs[j] = int64(uids[j])
			if j < len(umask) {
				rowMask[j] = int64(umask[j])
			} else {
				rowMask[j] = 1
			}
		}
		ids[i] = rowIDs
		masks[i] = rowMask
	}
	return ids, masks, nil
}
