// Package score implements the six-step scoring pipeline that turns a
// query embedding plus raw fields into a ranked, adjusted candidate list
// against the shared corpus (spec.md §4.5).
package score

import (
	"context"
	"math"
	"runtime"
	"sync"

	"github.com/nblibris/libris-match/internal/corpus"
	"github.com/nblibris/libris-match/internal/encoding"
	"github.com/nblibris/libris-match/internal/tokenize"
	"github.com/nblibris/libris-match/internal/topk"
)

// Options configures the scoring pipeline, mirroring the option surface
// of spec.md §6.
type Options struct {
	SimilarityThreshold   float64
	ForceYear             bool
	YearTolerance         int
	YearTolerancePenalty  float64
	OverlapAdjustmentK    int
	JaroWinklerAdjustment bool
	Exclusions            ExclusionSet
	TopK                  int
}

// QueryEmbedding is the scorer's per-query input: the dense embedding plus
// the raw fields needed for post-hoc adjustments that operate on text
// rather than the vocabulary-projected vector.
type QueryEmbedding struct {
	Vector []float32
	Title  string
	Year   *int
	Fields map[string]tokenize.FieldVector
}

// Candidate is one surviving reference record after all adjustment steps.
type Candidate struct {
	RefID         uint32
	RawCosine     float64
	AdjustedScore float64
	YearDelta     *int
	PerField      map[string]float64
}

// Result is the scorer's output: a descending-sorted candidate list plus
// the pre-threshold population statistics the classifier needs.
type Result struct {
	Candidates []Candidate
	Mean       float64
	Stdev      float64
	Population int
}

// Scorer runs the pipeline against one corpus store.
type Scorer struct {
	Store   *corpus.Store
	Encoder *tokenize.Encoder
}

// New builds a Scorer bound to a corpus store and the field encoder used
// to compute per-field similarities for reporting.
func New(store *corpus.Store, enc *tokenize.Encoder) *Scorer {
	return &Scorer{Store: store, Encoder: enc}
}

// Score runs steps 1-6 of spec.md §4.5 for one query against the full
// corpus, honouring ctx cancellation between chunks.
func (s *Scorer) Score(ctx context.Context, q QueryEmbedding, opts Options) (Result, error) {
	n := s.Store.Len()
	if n == 0 || allZero(q.Vector) {
		return Result{}, nil
	}

	stats, survivors, err := s.cosinePass(ctx, q.Vector, opts.SimilarityThreshold)
	if err != nil {
		return Result{}, err
	}

	queryTitleTokens := tokenize.CanonTokens(q.Title)

	candidates := make([]Candidate, 0, len(survivors))
	for _, item := range survivors {
		r := item.RefID
		raw := float64(item.Score)
		adjusted := raw

		fields := s.Store.Fields(int(r))

		var yearDelta *int
		if opts.ForceYear {
			ok, mult, delta := yearPolicy(q.Year, fields.Year, opts.YearTolerance, opts.YearTolerancePenalty)
			if !ok {
				continue
			}
			yearDelta = delta
			adjusted *= mult
		}

		if opts.OverlapAdjustmentK > 1 {
			refTitleTokens := tokenize.CanonTokens(fields.Title)
			mult := overlapMultiplier(queryTitleTokens, refTitleTokens, opts.OverlapAdjustmentK)
			adjusted *= clamp01(mult)
		}

		if opts.JaroWinklerAdjustment {
			j := jaroWinkler(tokenize.Canon(q.Title), tokenize.Canon(fields.Title))
			adjusted *= clamp01(0.5 + 0.5*j)
		}

		if opts.Exclusions.Contains(r) {
			continue
		}

		candidates = append(candidates, Candidate{
			RefID:         r,
			RawCosine:     raw,
			AdjustedScore: adjusted,
			YearDelta:     yearDelta,
			PerField:      s.perFieldSimilarities(q.Fields, fields),
		})
	}

	sortCandidatesDescending(candidates)

	return Result{
		Candidates: candidates,
		Mean:       stats.mean(),
		Stdev:      stats.stdev(),
		Population: stats.count,
	}, nil
}

// yearPolicy implements step 3. ok=false means the candidate is dropped.
func yearPolicy(qYear, rYear *int, tolerance int, penalty float64) (ok bool, mult float64, delta *int) {
	if qYear == nil || rYear == nil {
		return false, 0, nil
	}
	d := *qYear - *rYear
	if d < 0 {
		d = -d
	}
	if d > tolerance {
		return false, 0, nil
	}
	m := clamp01(1 - float64(d)*penalty)
	return true, m, &d
}

// perFieldSimilarities computes a local, independently-normalised cosine
// similarity per field between the query's sparse vectors and freshly
// re-encoded vectors for the reference's raw fields, for report-row
// diagnostics; it is independent of the dense, vocabulary-wide score used
// for ranking.
func (s *Scorer) perFieldSimilarities(query map[string]tokenize.FieldVector, refFields encoding.ReferenceFields) map[string]float64 {
	if s.Encoder == nil || len(query) == 0 {
		return nil
	}
	refSparse := s.Encoder.EncodeRecord(tokenize.RecordFields{
		Title:  refFields.Title,
		Author: refFields.Author,
		Place:  refFields.Place,
		Year:   refFields.Year,
	})

	out := make(map[string]float64, len(query))
	for name, qv := range query {
		out[name] = sparseCosine(qv, refSparse[name])
	}
	return out
}

// sparseCosine computes cosine similarity between two sparse FieldVectors,
// each independently L2-normalised.
func sparseCosine(a, b tokenize.FieldVector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	bByID := make(map[uint32]float64, len(b))
	var normB float64
	for _, wt := range b {
		bByID[wt.ID] = wt.Weight
		normB += wt.Weight * wt.Weight
	}
	var dot, normA float64
	for _, wt := range a {
		normA += wt.Weight * wt.Weight
		if bw, ok := bByID[wt.ID]; ok {
			dot += wt.Weight * bw
		}
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func allZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

type runningStats struct {
	mu    sync.Mutex
	count int
	sum   float64
	sumSq float64
}

func (r *runningStats) add(count int, sum, sumSq float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count += count
	r.sum += sum
	r.sumSq += sumSq
}

func (r *runningStats) mean() float64 {
	if r.count == 0 {
		return 0
	}
	return r.sum / float64(r.count)
}

func (r *runningStats) stdev() float64 {
	if r.count == 0 {
		return 0
	}
	mean := r.mean()
	variance := r.sumSq/float64(r.count) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// cosinePass implements step 1 (full population cosine, chunked across
// GOMAXPROCS goroutines) and step 2 (threshold gate), returning the
// pre-threshold population statistics and the surviving candidates' raw
// scores via per-worker bounded top-K heaps merged into one.
func (s *Scorer) cosinePass(ctx context.Context, q []float32, threshold float64) (*runningStats, []topk.Item, error) {
	n := s.Store.Len()
	dim := s.Store.Dim()
	emb := s.Store.EMB()

	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	chunk := (n + workers - 1) / workers

	stats := &runningStats{}
	heaps := make([]*topk.Heap, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			localHeap := topk.New(heapSize)
			var sum, sumSq float64
			count := 0
			for r := start; r < end; r++ {
				if ctx.Err() != nil {
					break
				}
				row := emb[r*dim : (r+1)*dim]
				var dot float64
				for i, qi := range q {
					dot += float64(qi) * float64(row[i])
				}
				sum += dot
				sumSq += dot * dot
				count++
				if dot >= threshold {
					localHeap.Offer(topk.Item{RefID: uint32(r), Score: float32(dot)})
				}
			}
			stats.add(count, sum, sumSq)
			heaps[w] = localHeap
		}(w, start, end)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	merged := topk.New(heapSize)
	for _, h := range heaps {
		if h != nil {
			merged.Merge(h)
		}
	}
	return stats, merged.Sorted(), nil
}

// heapSize bounds the per-query candidate list carried through the
// adjustment steps before final truncation to the report's K.
const heapSize = 256

func sortCandidatesDescending(c []Candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && less(c[j], c[j-1]); j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

func less(a, b Candidate) bool {
	if a.AdjustedScore != b.AdjustedScore {
		return a.AdjustedScore > b.AdjustedScore
	}
	return a.RefID < b.RefID
}
