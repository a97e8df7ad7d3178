package tokenizer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxSegmentRunes caps the length of a single word piece scan. Longer
// segments collapse to one unknown marker instead of a quadratic scan.
const maxSegmentRunes = 200

// defaultMaxSeqLen is used by Tokenize when the config leaves
// MaxSeqLen unset.
const defaultMaxSeqLen = 256

// WordPiece is a BERT-style tokenizer: clean, optionally lowercase,
// split on whitespace and punctuation, then greedy longest-prefix
// subword matching against the vocabulary. Instances are immutable and
// safe for concurrent use.
type WordPiece struct {
	vocab     *Vocabulary
	lowercase bool
	maxSeqLen int
}

// NewWordPiece loads the vocabulary at vocabPath and builds a tokenizer.
func NewWordPiece(vocabPath string, cfg Config) (*WordPiece, error) {
	vocab, err := LoadVocabulary(vocabPath)
	if err != nil {
		return nil, err
	}
	return NewWordPieceFromVocabulary(vocab, cfg), nil
}

// NewWordPieceFromVocabulary builds a tokenizer over an already-loaded
// vocabulary.
func NewWordPieceFromVocabulary(vocab *Vocabulary, cfg Config) *WordPiece {
	maxSeq := cfg.MaxSeqLen
	if maxSeq <= 0 {
		maxSeq = defaultMaxSeqLen
	}
	return &WordPiece{vocab: vocab, lowercase: cfg.Lowercase, maxSeqLen: maxSeq}
}

// Vocab exposes the underlying vocabulary.
func (w *WordPiece) Vocab() *Vocabulary { return w.vocab }

// MaxSeqLen returns the fixed length used by Tokenize.
func (w *WordPiece) MaxSeqLen() int { return w.maxSeqLen }

// Encode produces one fixed-length sequence of exactly maxLen ids:
// start token, content (truncated from the tail to fit), separator,
// then padding with mask 0. Arbitrary text never fails; characters the
// vocabulary cannot represent degrade to unknown markers. maxLen == 1
// is the degenerate case holding only the start token.
func (w *WordPiece) Encode(text string, maxLen int) (EncodedSequence, error) {
	if maxLen <= 0 {
		return EncodedSequence{}, fmt.Errorf("%w: max length %d", ErrInvalidSeqLength, maxLen)
	}
	return w.assemble(w.contentIDs(text), maxLen), nil
}

// EncodeBatch encodes each text independently at the same fixed length,
// preserving order. An empty input yields an empty result.
func (w *WordPiece) EncodeBatch(texts []string, maxLen int) ([]EncodedSequence, error) {
	out := make([]EncodedSequence, 0, len(texts))
	for _, t := range texts {
		enc, err := w.Encode(t, maxLen)
		if err != nil {
			return nil, err
		}
		out = append(out, enc)
	}
	return out, nil
}

// Tokenize implements the Tokenizer interface at the configured length.
func (w *WordPiece) Tokenize(texts []string) ([][]int64, [][]int64, error) {
	ids := make([][]int64, len(texts))
	masks := make([][]int64, len(texts))
	for i, t := range texts {
		enc, err := w.Encode(t, w.maxSeqLen)
		if err != nil {
			return nil, nil, err
		}
		ids[i] = enc.TokenIDs
		masks[i] = enc.AttentionMask
	}
	return ids, masks, nil
}

// Decode maps ids back to text: start, separator and padding ids are
// skipped, continuation pieces join their predecessor without a space.
// Lossy by construction (casing and original whitespace are gone).
func (w *WordPiece) Decode(ids []int64) string {
	var b strings.Builder
	for _, id := range ids {
		switch id {
		case w.vocab.padID, w.vocab.clsID, w.vocab.sepID:
			continue
		}
		tok := w.vocab.Token(id)
		if rest, ok := strings.CutPrefix(tok, continuationMarker); ok && b.Len() > 0 {
			b.WriteString(rest)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(tok)
	}
	return b.String()
}

// contentIDs runs the full segmentation: clean, case-fold, whitespace
// split, punctuation split, then subword matching per segment.
func (w *WordPiece) contentIDs(text string) []int64 {
	cleaned := cleanText(text)
	if w.lowercase {
		cleaned = strings.ToLower(cleaned)
	}
	var ids []int64
	for _, word := range strings.Fields(cleaned) {
		for _, seg := range splitPunctuation(word) {
			ids = w.pieceIDs(seg, ids)
		}
	}
	return ids
}

// pieceIDs appends the subword ids for one segment to out. Matching is
// greedy longest-prefix through the vocabulary radix index; pieces
// after the first carry the ## continuation marker. A segment over the
// length cap, or one with an unmatchable remainder, contributes exactly
// one unknown id - partial matches for that segment are discarded.
func (w *WordPiece) pieceIDs(seg string, out []int64) []int64 {
	if utf8.RuneCountInString(seg) > maxSegmentRunes {
		return append(out, w.vocab.unkID)
	}
	start := len(out)
	rest := seg
	first := true
	for len(rest) > 0 {
		query := rest
		minBytes := 0
		if !first {
			query = continuationMarker + rest
			minBytes = len(continuationMarker)
		}
		key, id, ok := w.vocab.longestPrefix(query, minBytes)
		if !ok {
			return append(out[:start], w.vocab.unkID)
		}
		out = append(out, id)
		rest = rest[len(key)-minBytes:]
		first = false
	}
	return out
}

// assemble lays out [start, content..., separator, padding...] at
// exactly maxLen positions with a contiguous leading-1 mask. Content is
// truncated from the tail to maxLen-2. At maxLen 1 only the start token
// fits and the separator is omitted.
func (w *WordPiece) assemble(content []int64, maxLen int) EncodedSequence {
	ids := make([]int64, maxLen)
	mask := make([]int64, maxLen)
	ids[0] = w.vocab.clsID
	mask[0] = 1
	if maxLen == 1 {
		return EncodedSequence{TokenIDs: ids, AttentionMask: mask}
	}
	n := len(content)
	if n > maxLen-2 {
		n = maxLen - 2
	}
	for i := 0; i < n; i++ {
		ids[1+i] = content[i]
		mask[1+i] = 1
	}
	ids[1+n] = w.vocab.sepID
	mask[1+n] = 1
	for i := 2 + n; i < maxLen; i++ {
		ids[i] = w.vocab.padID
	}
	return EncodedSequence{TokenIDs: ids, AttentionMask: mask}
}

// cleanText drops NUL, the replacement character and control
// characters, and maps every whitespace character to one ASCII space.
// Invalid UTF-8 bytes decode to the replacement character and are
// dropped with it. Rune-by-rune on purpose; no regex.
func cleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == 0 || r == utf8.RuneError || isControlRune(r) {
			continue
		}
		if isWhitespaceRune(r) {
			b.WriteByte(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// splitPunctuation cuts a word into runs of non-punctuation characters
// and single-character punctuation segments, order preserved.
func splitPunctuation(word string) []string {
	var segs []string
	start := -1
	for i, r := range word {
		if isPunctuationRune(r) {
			if start >= 0 {
				segs = append(segs, word[start:i])
				start = -1
			}
			segs = append(segs, word[i:i+utf8.RuneLen(r)])
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		segs = append(segs, word[start:])
	}
	return segs
}

// isWhitespaceRune matches the BERT reference: tab, newline, carriage
// return, space, and anything in the Zs category.
func isWhitespaceRune(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

// isControlRune matches the BERT reference: the C categories, minus
// tab, newline and carriage return which count as whitespace.
func isControlRune(r rune) bool {
	switch r {
	case '\t', '\n', '\r':
		return false
	}
	return unicode.In(r, unicode.C)
}

// isPunctuationRune matches the BERT reference: the four ASCII symbol
// ranges plus the P categories. The ASCII ranges pull in characters
// like $ and ^ that Unicode does not class as punctuation.
func isPunctuationRune(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}
