package tokenizer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeVocabFile writes one token per line and returns the file path.
func writeVocabFile(t testing.TB, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// testVocabLines carries the reserved entries at nonstandard ids so
// tests catch hardcoded fallbacks sneaking in.
var testVocabLines = []string{
	"[PAD]",  // 0
	"[UNK]",  // 1
	"[CLS]",  // 2
	"[SEP]",  // 3
	"hello",  // 4
	"world",  // 5
	".",      // 6
	",",      // 7
	"!",      // 8
	"un",     // 9
	"##aff",  // 10
	"##able", // 11
	"##ing",  // 12
	"run",    // 13
	"##ner",  // 14
	"the",    // 15
	"quick",  // 16
	"brown",  // 17
	"fox",    // 18
	"a",      // 19
	"##a",    // 20
	"want",   // 21
	"##ed",   // 22
	"wa",     // 23
	"##nt",   // 24
	"s",      // 25
	"##s",    // 26
	"##ning", // 27
}

func TestVocabulary(t *testing.T) {
	tests := []struct {
		name string
		test func(t *testing.T)
	}{
		{"LoadPreservesLineOrder", testVocabLoadPreservesLineOrder},
		{"MissingFile", testVocabMissingFile},
		{"ReservedTokenDiscovery", testVocabReservedTokenDiscovery},
		{"ReservedTokenFallback", testVocabReservedTokenFallback},
		{"BlankLinesHoldTheirID", testVocabBlankLinesHoldTheirID},
		{"DuplicateLineOverrides", testVocabDuplicateLineOverrides},
		{"TokenLookup", testVocabTokenLookup},
		{"LongestPrefix", testVocabLongestPrefix},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.test)
	}
}

func testVocabLoadPreservesLineOrder(t *testing.T) {
	v, err := LoadVocabulary(writeVocabFile(t, testVocabLines))
	require.NoError(t, err)

	assert.Equal(t, len(testVocabLines), v.Size())
	for i, tok := range testVocabLines {
		id, ok := v.ID(tok)
		require.True(t, ok, "token %q should be present", tok)
		assert.Equal(t, int64(i), id, "id of %q must equal its line index", tok)
	}
}

func testVocabMissingFile(t *testing.T) {
	v, err := LoadVocabulary(filepath.Join(t.TempDir(), "no-such-vocab.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVocabNotFound)
	assert.Nil(t, v)
}

func testVocabReservedTokenDiscovery(t *testing.T) {
	v, err := LoadVocabulary(writeVocabFile(t, testVocabLines))
	require.NoError(t, err)

	assert.Equal(t, int64(0), v.PaddingID())
	assert.Equal(t, int64(1), v.UnknownID())
	assert.Equal(t, int64(2), v.StartID())
	assert.Equal(t, int64(3), v.SeparatorID())
}

func testVocabReservedTokenFallback(t *testing.T) {
	v, err := LoadVocabulary(writeVocabFile(t, []string{"hello", "world"}))
	require.NoError(t, err)

	// BERT numbering when the file carries no reserved entries.
	assert.Equal(t, int64(100), v.UnknownID())
	assert.Equal(t, int64(0), v.PaddingID())
	assert.Equal(t, int64(101), v.StartID())
	assert.Equal(t, int64(102), v.SeparatorID())
}

func testVocabBlankLinesHoldTheirID(t *testing.T) {
	v, err := LoadVocabulary(writeVocabFile(t, []string{"alpha", "", "beta"}))
	require.NoError(t, err)

	assert.Equal(t, 3, v.Size(), "blank line still consumes an id slot")
	id, ok := v.ID("beta")
	require.True(t, ok)
	assert.Equal(t, int64(2), id, "ids after a blank line must not shift")
	_, ok = v.ID("")
	assert.False(t, ok, "the blank token can never match")
}

func testVocabDuplicateLineOverrides(t *testing.T) {
	v, err := LoadVocabulary(writeVocabFile(t, []string{"alpha", "beta", "alpha"}))
	require.NoError(t, err)

	id, ok := v.ID("alpha")
	require.True(t, ok)
	assert.Equal(t, int64(2), id, "later duplicate line wins")
	assert.Equal(t, "alpha", v.Token(0), "id to token stays line-accurate")
	assert.Equal(t, "alpha", v.Token(2))
}

func testVocabTokenLookup(t *testing.T) {
	v, err := LoadVocabulary(writeVocabFile(t, testVocabLines))
	require.NoError(t, err)

	assert.Equal(t, "hello", v.Token(4))
	assert.Equal(t, "##able", v.Token(11))
	assert.Equal(t, UnknownToken, v.Token(-1), "negative ids render as unknown")
	assert.Equal(t, UnknownToken, v.Token(int64(v.Size())), "out-of-range ids render as unknown")
}

func testVocabLongestPrefix(t *testing.T) {
	v, err := LoadVocabulary(writeVocabFile(t, testVocabLines))
	require.NoError(t, err)

	key, id, ok := v.longestPrefix("wanted", 0)
	require.True(t, ok)
	assert.Equal(t, "want", key, "greedy match takes the longest entry, not the first")
	assert.Equal(t, int64(21), id)

	key, _, ok = v.longestPrefix("##affable", len(continuationMarker))
	require.True(t, ok)
	assert.Equal(t, "##aff", key)

	_, _, ok = v.longestPrefix("zzz", 0)
	assert.False(t, ok, "no entry means no match")

	// A match no longer than the continuation marker consumes nothing
	// of the segment and must be rejected even when the marker itself
	// is a vocabulary entry.
	v2, err := LoadVocabulary(writeVocabFile(t, []string{"#", "##", "z"}))
	require.NoError(t, err)
	_, _, ok = v2.longestPrefix("##zzz", len(continuationMarker))
	assert.False(t, ok)
	key, id, ok = v2.longestPrefix("z", 0)
	require.True(t, ok)
	assert.Equal(t, "z", key)
	assert.Equal(t, int64(2), id)
}
