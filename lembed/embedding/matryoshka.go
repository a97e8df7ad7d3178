package embedding

// AdjustToDims fits vec to the target dimension: long vectors truncate
// matryoshka-style (the leading components carry the signal), short
// ones pad with zeros. A non-positive target keeps the vector as is.
// Truncation aliases the input array; callers needing the original
// intact pass a copy.
func AdjustToDims(vec []float32, target int) []float32 {
	switch {
	case target <= 0 || len(vec) == target:
		return vec
	case len(vec) > target:
		return vec[:target]
	default:
		padded := make([]float32, target)
		copy(padded, vec)
		return padded
	}
}
