package index

import (
	"sync"
	"time"
)

// incrementalManager tracks insertions so the KD-Tree is rebuilt in
// batches instead of per insert.
type incrementalManager struct {
	mu                     sync.RWMutex
	rebalanceThreshold     int
	insertionsSinceRebuild int
	lastRebuildTime        time.Time
	pending                []docPoint
	batchSize              int
}

func newIncrementalManager() *incrementalManager {
	return &incrementalManager{
		rebalanceThreshold: 100,
		batchSize:          10,
		lastRebuildTime:    time.Now(),
		pending:            make([]docPoint, 0, 10),
	}
}

// shouldRebalance reports whether the tree is due for a full rebuild,
// either by insertion volume or by elapsed time.
func (m *incrementalManager) shouldRebalance() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sinceRebuild := time.Since(m.lastRebuildTime)
	return m.insertionsSinceRebuild >= m.rebalanceThreshold ||
		(m.insertionsSinceRebuild > 0 && sinceRebuild > 5*time.Minute)
}

func (m *incrementalManager) recordInsertion() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertionsSinceRebuild++
}

func (m *incrementalManager) recordRebalance() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertionsSinceRebuild = 0
	m.lastRebuildTime = time.Now()
}

func (m *incrementalManager) addPending(point docPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, point)
}

// flushPending returns and clears all queued points.
func (m *incrementalManager) flushPending() []docPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]docPoint, len(m.pending))
	copy(result, m.pending)
	m.pending = m.pending[:0]
	return result
}

func (m *incrementalManager) shouldBatchInsert() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending) >= m.batchSize
}
