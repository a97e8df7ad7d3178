package cache

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorCodec(t *testing.T) {
	tests := []struct {
		name string
		test func(t *testing.T)
	}{
		{"RoundTrip", func(t *testing.T) {
			vec := []float32{0.1, -2.5, 3.75, 0, 1e-20}
			out, err := DecodeVector(EncodeVector(vec))
			require.NoError(t, err)
			assert.Equal(t, vec, out, "float32 bits must survive the blob round trip exactly")
		}},
		{"EmptyBlob", func(t *testing.T) {
			out, err := DecodeVector(nil)
			require.NoError(t, err)
			assert.Nil(t, out)
		}},
		{"MisalignedBlob", func(t *testing.T) {
			_, err := DecodeVector([]byte{1, 2, 3})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid embedding size")
		}},
		{"NonFiniteSanitized", func(t *testing.T) {
			vec := []float32{1, float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1))}
			out, err := DecodeVector(EncodeVector(vec))
			require.NoError(t, err)
			assert.Equal(t, []float32{1, 0, 0, 0}, out)
		}},
		{"HashText", func(t *testing.T) {
			assert.Equal(t, HashText("hello"), HashText("hello"))
			assert.NotEqual(t, HashText("hello"), HashText("hello "))
			assert.Len(t, HashText(""), 64)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.test)
	}
}

func TestStoreIntegration(t *testing.T) {
	store, err := Open(Config{DSN: "file:" + filepath.Join(t.TempDir(), "cache.db")})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	vec := []float32{0.25, -0.5, 0.75}

	t.Run("MissBeforePut", func(t *testing.T) {
		_, ok, err := store.Get(ctx, "model-a", "hello world")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "model-a", "hello world", vec))
		got, ok, err := store.Get(ctx, "model-a", "hello world")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, vec, got)
	})

	t.Run("PutReplacesExisting", func(t *testing.T) {
		next := []float32{9, 9, 9}
		require.NoError(t, store.Put(ctx, "model-a", "hello world", next))
		got, ok, err := store.Get(ctx, "model-a", "hello world")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, next, got)
	})

	t.Run("ModelsAreIsolated", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "model-b", "hello world", vec))
		_, ok, err := store.Get(ctx, "model-c", "hello world")
		require.NoError(t, err)
		assert.False(t, ok, "a hit for one model must not serve another")
	})

	t.Run("PutValidation", func(t *testing.T) {
		assert.Error(t, store.Put(ctx, "", "text", vec))
		assert.Error(t, store.Put(ctx, "model-a", "text", nil))
	})

	t.Run("PurgeAndCount", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "model-purge", "one", vec))
		require.NoError(t, store.Put(ctx, "model-purge", "two", vec))

		before, err := store.Count(ctx)
		require.NoError(t, err)

		removed, err := store.Purge(ctx, "model-purge")
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)

		after, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, before-2, after)

		_, ok, err := store.Get(ctx, "model-purge", "one")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
