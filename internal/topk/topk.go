// Package topk provides a bounded top-K heap used by the scorer to reduce
// per-thread candidate sets to the K best-scoring reference records,
// adapted from the flat index's k-nearest-neighbour heap.
package topk

import "container/heap"

// Item is one scored reference record: RefID is its position in the
// corpus, Score its adjusted similarity (higher is better).
type Item struct {
	RefID uint32
	Score float32
}

// Heap keeps the K highest-scoring Items seen so far. It is a min-heap on
// Score so the worst of the current top-K sits at the root and can be
// evicted in O(log K) when a better candidate arrives.
type Heap struct {
	k    int
	data minHeap
}

// New creates a Heap bounded to the k best items.
func New(k int) *Heap {
	if k < 1 {
		k = 1
	}
	h := &Heap{k: k, data: make(minHeap, 0, k)}
	heap.Init(&h.data)
	return h
}

// Offer considers an item for inclusion in the top-K, evicting the current
// worst item if the heap is full and item scores higher.
func (h *Heap) Offer(item Item) {
	if h.data.Len() < h.k {
		heap.Push(&h.data, item)
		return
	}
	if item.Score > h.data[0].Score {
		heap.Pop(&h.data)
		heap.Push(&h.data, item)
	}
}

// Merge absorbs another Heap's items, re-applying Offer for each so the
// result stays bounded to k. Used to combine per-worker partial top-K
// results into a single ordered ranking.
func (h *Heap) Merge(other *Heap) {
	for _, item := range other.data {
		h.Offer(item)
	}
}

// Sorted drains the heap into a slice ordered by descending score, with
// ties broken by ascending RefID for determinism (spec.md §8 property 4).
func (h *Heap) Sorted() []Item {
	items := make([]Item, len(h.data))
	copy(items, h.data)
	// Simple insertion sort: k is small (bounded top-K), and this keeps
	// the tie-break rule explicit rather than relying on sort.Slice's
	// unspecified stability for equal keys.
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && less(items[j], items[j-1]); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
	return items
}

func less(a, b Item) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.RefID < b.RefID
}

// Len reports how many items are currently held.
func (h *Heap) Len() int { return h.data.Len() }

type minHeap []Item

func (m minHeap) Len() int            { return len(m) }
func (m minHeap) Less(i, j int) bool  { return m[i].Score < m[j].Score }
func (m minHeap) Swap(i, j int)       { m[i], m[j] = m[j], m[i] }
func (m *minHeap) Push(x interface{}) { *m = append(*m, x.(Item)) }
func (m *minHeap) Pop() interface{} {
	old := *m
	n := len(old)
	item := old[n-1]
	*m = old[:n-1]
	return item
}
