package index

import (
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Document is one indexed item: the original text, its embedding, and
// the token ids used for lexical filtering.
type Document struct {
	ID     string
	Text   string
	Vector []float32
	Tokens []int64
}

// docPoint adapts a document to kdtree.Comparable. Coordinates are the
// document vector converted to float64 and L2-normalized, so Euclidean
// order over points equals cosine order over the original vectors.
type docPoint struct {
	ordinal uint32
	coords  kdtree.Point
}

// Compare performs axis comparisons for the KD-Tree.
func (p docPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	other := c.(docPoint)
	return p.coords[d] - other.coords[d]
}

// Dims returns the number of vector dimensions.
func (p docPoint) Dims() int {
	return len(p.coords)
}

// Distance returns the squared Euclidean distance, matching the
// convention kdtree keepers expect.
func (p docPoint) Distance(c kdtree.Comparable) float64 {
	other := c.(docPoint)
	return p.coords.Distance(other.coords)
}

// docPoints implements kdtree.Interface for tree construction.
type docPoints []docPoint

func (p docPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p docPoints) Len() int                      { return len(p) }
func (p docPoints) Pivot(d kdtree.Dim) int        { return plane{docPoints: p, Dim: d}.Pivot() }
func (p docPoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

// plane is a permutable axis view of docPoints used during pivoting.
type plane struct {
	docPoints
	kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	return p.docPoints[i].coords[p.Dim] < p.docPoints[j].coords[p.Dim]
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.docPoints = p.docPoints[start:end]
	return p
}
func (p plane) Swap(i, j int) {
	p.docPoints[i], p.docPoints[j] = p.docPoints[j], p.docPoints[i]
}
