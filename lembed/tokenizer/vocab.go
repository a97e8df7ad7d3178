package tokenizer

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	radix "github.com/armon/go-radix"
)

// Reserved token strings shared by BERT-family vocabularies.
const (
	UnknownToken   = "[UNK]"
	PaddingToken   = "[PAD]"
	StartToken     = "[CLS]"
	SeparatorToken = "[SEP]"

	// continuationMarker prefixes non-initial word pieces.
	continuationMarker = "##"
)

// Fallback ids used when a vocabulary does not carry the reserved
// entries, matching common BERT numbering.
const (
	defaultUnknownID   = 100
	defaultPaddingID   = 0
	defaultStartID     = 101
	defaultSeparatorID = 102
)

// Vocabulary is the immutable token table of one model: token string to
// id, id to token string, and a radix index for longest-prefix matching.
// It is built once at load and shared read-only across encode calls.
type Vocabulary struct {
	ids    map[string]int64
	tokens []string
	prefix *radix.Tree

	unkID int64
	padID int64
	clsID int64
	sepID int64
}

// LoadVocabulary reads a one-token-per-line vocab file. The line index
// is the token id; ordering is load-bearing and preserved exactly, so
// blank lines still consume an id (they just can never match).
func LoadVocabulary(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrVocabNotFound, path, err)
	}
	defer f.Close()

	v := &Vocabulary{
		ids:    make(map[string]int64, 60000),
		tokens: make([]string, 0, 60000),
		prefix: radix.New(),
	}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tok := strings.TrimSpace(scanner.Text())
		id := int64(len(v.tokens))
		v.tokens = append(v.tokens, tok)
		if tok == "" {
			continue
		}
		// A duplicate line overwrites the earlier id, same as building
		// a dict keyed by token from an enumerated file.
		v.ids[tok] = id
		v.prefix.Insert(tok, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrVocabNotFound, path, err)
	}

	v.unkID = v.idOrDefault(UnknownToken, defaultUnknownID)
	v.padID = v.idOrDefault(PaddingToken, defaultPaddingID)
	v.clsID = v.idOrDefault(StartToken, defaultStartID)
	v.sepID = v.idOrDefault(SeparatorToken, defaultSeparatorID)
	return v, nil
}

func (v *Vocabulary) idOrDefault(token string, fallback int64) int64 {
	if id, ok := v.ids[token]; ok {
		return id
	}
	return fallback
}

// Size returns the number of vocabulary lines (including blank ones,
// which hold their id slot).
func (v *Vocabulary) Size() int { return len(v.tokens) }

// ID returns the id for token and whether it exists.
func (v *Vocabulary) ID(token string) (int64, bool) {
	id, ok := v.ids[token]
	return id, ok
}

// Token returns the token text for id, or the unknown marker for ids
// outside the table.
func (v *Vocabulary) Token(id int64) string {
	if id < 0 || id >= int64(len(v.tokens)) {
		return UnknownToken
	}
	return v.tokens[id]
}

// UnknownID returns the unknown-token id.
func (v *Vocabulary) UnknownID() int64 { return v.unkID }

// PaddingID returns the padding-token id.
func (v *Vocabulary) PaddingID() int64 { return v.padID }

// StartID returns the sequence-start id.
func (v *Vocabulary) StartID() int64 { return v.clsID }

// SeparatorID returns the sequence-separator id.
func (v *Vocabulary) SeparatorID() int64 { return v.sepID }

// longestPrefix returns the longest vocabulary entry that is a prefix
// of s and longer than minBytes, so a continuation match always
// consumes part of the segment, never just the ## marker. Keys are
// valid UTF-8, so a byte-prefix match always ends on a rune boundary
// of s.
func (v *Vocabulary) longestPrefix(s string, minBytes int) (string, int64, bool) {
	key, val, ok := v.prefix.LongestPrefix(s)
	if !ok || len(key) <= minBytes {
		return "", 0, false
	}
	return key, val.(int64), true
}
