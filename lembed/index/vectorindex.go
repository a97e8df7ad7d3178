// Package index keeps embedded documents searchable in memory. Vectors
// are stored L2-normalized and indexed in a KD-Tree, so Euclidean
// nearest-neighbor order equals cosine order. A roaring-bitmap postings
// table per token id supports hybrid queries that intersect a lexical
// filter with the vector ranking.
package index

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	roaring "github.com/RoaringBitmap/roaring"
	"github.com/ZanzyTHEbar/assert-lib"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/venthic/localembed/lembed/vecmath"
)

// Result is one search hit with its cosine similarity to the query.
type Result struct {
	Document Document
	Score    float64
}

// SearchOptions narrows a search.
type SearchOptions struct {
	// RequireTokens restricts candidates to documents containing every
	// listed token id before vector ranking.
	RequireTokens []int64
}

// Index is an in-memory vector index with incremental KD-Tree rebuilds.
type Index struct {
	mu            sync.Mutex
	docs          []Document
	byID          map[string]uint32
	postings      map[int64]*roaring.Bitmap
	points        docPoints
	tree          *kdtree.Tree
	manager       *incrementalManager
	dims          int
	logger        *slog.Logger
	AssertHandler *assert.AssertHandler
}

func New() *Index {
	return &Index{
		byID:          make(map[string]uint32),
		postings:      make(map[int64]*roaring.Bitmap),
		manager:       newIncrementalManager(),
		logger:        slog.Default(),
		AssertHandler: assert.NewAssertHandler(),
	}
}

// Add indexes doc and returns its id, generating one when absent. The
// stored vector is an L2-normalized copy; the caller's slice is not
// retained. The first document fixes the index dimensionality.
func (i *Index) Add(doc Document) (string, error) {
	if len(doc.Vector) == 0 {
		return "", fmt.Errorf("%w: document vector is empty", vecmath.ErrEmptyVector)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.dims == 0 {
		i.dims = len(doc.Vector)
	} else if len(doc.Vector) != i.dims {
		return "", fmt.Errorf("%w: index holds %d-dimensional vectors, got %d",
			vecmath.ErrDimensionMismatch, i.dims, len(doc.Vector))
	}

	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if _, exists := i.byID[doc.ID]; exists {
		return "", fmt.Errorf("document %q already indexed", doc.ID)
	}

	vec := make([]float32, len(doc.Vector))
	copy(vec, doc.Vector)
	vecmath.NormalizeL2InPlace(vec)
	doc.Vector = vec

	coords := make(kdtree.Point, len(vec))
	for d, v := range vec {
		coords[d] = float64(v)
	}

	ordinal := uint32(len(i.docs))
	i.docs = append(i.docs, doc)
	i.byID[doc.ID] = ordinal

	for _, tok := range doc.Tokens {
		bm, ok := i.postings[tok]
		if !ok {
			bm = roaring.New()
			i.postings[tok] = bm
		}
		bm.Add(ordinal)
	}

	i.manager.addPending(docPoint{ordinal: ordinal, coords: coords})
	i.manager.recordInsertion()
	if i.manager.shouldBatchInsert() {
		i.rebuildIncrementalLocked()
	}
	return doc.ID, nil
}

// Get returns the stored document for id.
func (i *Index) Get(id string) (Document, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	ordinal, ok := i.byID[id]
	if !ok {
		return Document{}, false
	}
	return i.docs[ordinal], true
}

// Len reports the number of indexed documents.
func (i *Index) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.docs)
}

// Flush forces all pending insertions into the KD-Tree. Searches flush
// automatically; this is for shutdown or benchmarking.
func (i *Index) Flush() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.rebuildIncrementalLocked()
}

// rebuildIncrementalLocked folds queued points into the tree, doing a
// counter-resetting rebalance when the manager calls for one. Callers
// hold i.mu.
func (i *Index) rebuildIncrementalLocked() {
	pending := i.manager.flushPending()
	if len(pending) == 0 {
		return
	}

	i.points = append(i.points, pending...)

	if i.manager.shouldRebalance() {
		i.tree = kdtree.New(i.points, false)
		i.manager.recordRebalance()
		i.logger.Info("vector index rebuilt",
			"documents", len(i.points),
			"rebuild_type", "full_rebalance",
			"pending_processed", len(pending))
	} else {
		i.tree = kdtree.New(i.points, false)
		i.logger.Debug("vector index updated",
			"documents", len(i.points),
			"rebuild_type", "incremental",
			"pending_processed", len(pending))
	}
}

// Search returns the k documents most similar to query by cosine.
func (i *Index) Search(query []float32, k int) ([]Result, error) {
	return i.SearchWithOptions(query, k, SearchOptions{})
}

// SearchWithOptions ranks the k best documents for query. With
// RequireTokens set, only documents containing every required token
// are candidates; the intersection is scanned directly instead of
// walking the tree.
func (i *Index) SearchWithOptions(query []float32, k int, opts SearchOptions) ([]Result, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", vecmath.ErrEmptyVector)
	}
	if k <= 0 {
		return []Result{}, nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if len(i.docs) == 0 {
		return []Result{}, nil
	}
	if len(query) != i.dims {
		return nil, fmt.Errorf("%w: index holds %d-dimensional vectors, got query of %d",
			vecmath.ErrDimensionMismatch, i.dims, len(query))
	}

	i.rebuildIncrementalLocked()

	q := make([]float32, len(query))
	copy(q, query)
	vecmath.NormalizeL2InPlace(q)

	if len(opts.RequireTokens) > 0 {
		return i.scanCandidates(q, k, opts.RequireTokens)
	}
	return i.nearestByTree(q, k)
}

// nearestByTree runs a KD-Tree k-nearest query. Squared Euclidean
// distance d between unit vectors maps back to cosine as 1 - d/2.
func (i *Index) nearestByTree(q []float32, k int) ([]Result, error) {
	if i.tree == nil {
		i.logger.Warn("vector index tree not initialized, returning empty results")
		return []Result{}, nil
	}

	coords := make(kdtree.Point, len(q))
	for d, v := range q {
		coords[d] = float64(v)
	}

	keeper := kdtree.NewNKeeper(k)
	i.tree.NearestSet(keeper, docPoint{coords: coords})

	results := make([]Result, 0, len(keeper.Heap))
	for _, item := range keeper.Heap {
		if item.Comparable == nil {
			// NKeeper seeds its heap with an infinite-distance
			// sentinel that survives when k exceeds the tree size.
			continue
		}
		dp := item.Comparable.(docPoint)
		results = append(results, Result{
			Document: i.docs[dp.ordinal],
			Score:    1 - item.Dist/2,
		})
	}
	sort.Slice(results, func(a, b int) bool { return results[a].Score > results[b].Score })
	return results, nil
}

// scanCandidates intersects the postings for the required tokens and
// ranks the surviving documents by dot product (cosine, both sides
// normalized).
func (i *Index) scanCandidates(q []float32, k int, tokens []int64) ([]Result, error) {
	candidates := i.andPostings(tokens)
	if candidates.IsEmpty() {
		return []Result{}, nil
	}

	results := make([]Result, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		ordinal := it.Next()
		doc := i.docs[ordinal]
		score, err := vecmath.Dot(q, doc.Vector)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{Document: doc, Score: score})
	}
	sort.Slice(results, func(a, b int) bool { return results[a].Score > results[b].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// andPostings returns the intersection of the postings bitmaps for
// tokens. A token with no postings empties the result.
func (i *Index) andPostings(tokens []int64) *roaring.Bitmap {
	res := roaring.New()
	first, ok := i.postings[tokens[0]]
	if !ok {
		return res
	}
	res.Or(first)
	for _, tok := range tokens[1:] {
		bm, ok := i.postings[tok]
		if !ok {
			return roaring.New()
		}
		res.And(bm)
	}
	return res
}
