package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// EncodeVector packs a float32 vector into little-endian F32_BLOB
// bytes. NaN and Inf components are stored as zero so a poisoned
// vector can never round-trip back out of the cache.
func EncodeVector(vec []float32) []byte {
	blob := make([]byte, len(vec)*4)
	for i, n := range vec {
		if math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) {
			n = 0
		}
		binary.LittleEndian.PutUint32(blob[i*4:(i+1)*4], math.Float32bits(n))
	}
	return blob
}

// DecodeVector reads F32_BLOB bytes back into []float32.
func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding size: %d bytes is not a whole number of float32s", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(blob[i*4 : (i+1)*4])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}

// HashText returns the hex SHA-256 digest used as the cache key for a
// piece of content.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
