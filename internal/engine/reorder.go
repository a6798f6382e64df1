package engine

import "container/heap"

// reorderBuffer restores input order to results produced out of order by
// the worker pool, keyed by query sequence number (spec.md §5 ordering
// guarantee). Results are buffered until the next expected sequence
// number becomes available, then drained in a contiguous run.
type reorderBuffer struct {
	next    uint64
	pending rowHeap
}

func newReorderBuffer() *reorderBuffer {
	return &reorderBuffer{pending: rowHeap{}}
}

// Push adds a completed row and returns the run of rows (including this
// one) that are now ready to emit in order, oldest first.
func (b *reorderBuffer) Push(row OutcomeRow) []OutcomeRow {
	heap.Push(&b.pending, row)

	var ready []OutcomeRow
	for b.pending.Len() > 0 && b.pending[0].Seq == b.next {
		ready = append(ready, heap.Pop(&b.pending).(OutcomeRow))
		b.next++
	}
	return ready
}

type rowHeap []OutcomeRow

func (h rowHeap) Len() int            { return len(h) }
func (h rowHeap) Less(i, j int) bool  { return h[i].Seq < h[j].Seq }
func (h rowHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *rowHeap) Push(x interface{}) { *h = append(*h, x.(OutcomeRow)) }
func (h *rowHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
