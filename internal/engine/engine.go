// Package engine is the batch driver: it owns the corpus and vocabulary
// for the process lifetime and runs many queries against them through a
// worker pool, restoring input order on the way out (spec.md §4.7, §5).
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/nblibris/libris-match/internal/classify"
	"github.com/nblibris/libris-match/internal/corpus"
	"github.com/nblibris/libris-match/internal/diagnostics"
	"github.com/nblibris/libris-match/internal/embed"
	"github.com/nblibris/libris-match/internal/logging"
	"github.com/nblibris/libris-match/internal/matcherr"
	"github.com/nblibris/libris-match/internal/score"
	"github.com/nblibris/libris-match/internal/tokenize"
	"github.com/nblibris/libris-match/internal/vocab"
)

// QueryRecord is one unit of input work: one edition of one source
// bibliographic record, tagged with its position in the input stream so
// output order can be restored regardless of completion order.
type QueryRecord struct {
	Seq        uint64
	SourceFile string
	Edition    int
	Title      string
	Author     string
	Place      string
	Year       *int
}

// CandidateRow is one reported candidate within an OutcomeRow.
type CandidateRow struct {
	RefID         uint32
	AdjustedScore float64
	RawCosine     float64
	ZScore        float64
	PerField      map[string]float64
	YearDelta     *int
}

// OutcomeRow is one query's final result, ready for the report writer.
type OutcomeRow struct {
	Seq        uint64
	SourceFile string
	Edition    int
	Outcome    classify.Outcome
	Candidates []CandidateRow
	Mean       float64
	Stdev      float64
	Population int
	Diagnostic string
}

// Engine owns one vocabulary and one corpus store, loaded once, and runs
// many queries against them.
type Engine struct {
	Vocab   *vocab.Vocabulary
	Store   *corpus.Store
	Encoder *tokenize.Encoder
	Embed   *embed.Embedder
	Scorer  *score.Scorer

	exclusions  score.ExclusionSet
	cfg         Config
	log         logging.Logger
	diagnostics *diagnostics.Sink
}

// SetDiagnostics attaches an audit sink that records a row for every query
// whose outcome carries a diagnostic and for every recoverable scoring
// error. A nil sink (the default) disables auditing.
func (e *Engine) SetDiagnostics(sink *diagnostics.Sink) {
	e.diagnostics = sink
}

// Open loads the vocabulary and corpus named in cfg, returning a ready
// Engine. The engine's state is read-only from this point on and may be
// shared by any number of concurrent RunBatch calls.
func Open(ctx context.Context, cfg Config, log logging.Logger) (*Engine, error) {
	if log == nil {
		log = logging.Nop()
	}

	vocabPath := filepath.Join(cfg.DatasetDir, cfg.SourcePrefix+"-vocab.bin")
	v, err := vocab.Load(vocabPath)
	if err != nil {
		return nil, err
	}
	log.Info("loaded vocabulary", "path", vocabPath, "size", v.Len())

	weights := tokenize.DefaultWeights()
	if cfg.WeightsFile != "" {
		weights, err = tokenize.LoadWeights(cfg.WeightsFile)
		if err != nil {
			return nil, err
		}
	}

	enc := tokenize.NewEncoder(v)
	enc.Weights = weights
	enc.AddAuthorToTitle = cfg.AddAuthorToTitle

	store, err := corpus.Load(cfg.DatasetDir, cfg.SourcePrefix, v.Len())
	if err != nil {
		return nil, err
	}
	log.Info("loaded corpus", "n", store.Len(), "dim", store.Dim())

	var exclusions score.ExclusionSet
	if cfg.ExcludeFile != "" {
		exclusions, err = score.LoadExclusionSet(cfg.ExcludeFile)
		if err != nil {
			return nil, err
		}
	}
	if cfg.InputExcludeFile != "" {
		other, err := score.LoadExclusionSet(cfg.InputExcludeFile)
		if err != nil {
			return nil, err
		}
		exclusions = score.MergeExclusionSets(exclusions, other)
	}

	return &Engine{
		Vocab:      v,
		Store:      store,
		Encoder:    enc,
		Embed:      embed.New(v.Len()),
		Scorer:     score.New(store, enc),
		exclusions: exclusions,
		cfg:        cfg,
		log:        log,
	}, nil
}

// Close releases the corpus's memory-mapped resources.
func (e *Engine) Close() error {
	return e.Store.Close()
}

// scoreOptions projects the engine's Config onto score.Options.
func (e *Engine) scoreOptions() score.Options {
	return score.Options{
		SimilarityThreshold:   e.cfg.SimilarityThreshold,
		ForceYear:             e.cfg.ForceYear,
		YearTolerance:         e.cfg.YearTolerance,
		YearTolerancePenalty:  e.cfg.YearTolerancePenalty,
		OverlapAdjustmentK:    e.cfg.OverlapAdjustment,
		JaroWinklerAdjustment: e.cfg.JaroWinklerAdjustment,
		Exclusions:            e.exclusions,
		TopK:                  e.cfg.TopK,
	}
}

func (e *Engine) classifierConfig() classify.Config {
	return classify.Config{
		ZThreshold:            e.cfg.ZThreshold,
		MinSingleSimilarity:   e.cfg.MinSingleSimilarity,
		MinMultipleSimilarity: e.cfg.MinMultipleSimilarity,
		ClusterEpsilon:        e.cfg.ClusterEpsilon,
	}
}

// processOne runs §4.2-§4.6 for a single query record.
func (e *Engine) processOne(ctx context.Context, q QueryRecord) (OutcomeRow, error) {
	row := OutcomeRow{Seq: q.Seq, SourceFile: q.SourceFile, Edition: q.Edition}
	log := e.log.WithQuery(q.SourceFile, q.Edition)

	fields := e.Encoder.EncodeRecord(tokenize.RecordFields{
		Title:  q.Title,
		Author: q.Author,
		Place:  q.Place,
		Year:   q.Year,
	})
	vec := e.Embed.Embed(fields)

	if embed.IsZero(vec) {
		row.Outcome = classify.NoMatch
		row.Diagnostic = "empty-embedding"
		log.Debug("query embedding is all-OOV, short-circuiting to NoMatch")
		e.recordDiagnostic(ctx, q, "empty-embedding", "all query tokens out of vocabulary")
		return row, nil
	}

	qe := score.QueryEmbedding{Vector: vec, Title: q.Title, Year: q.Year, Fields: fields}
	result, err := e.Scorer.Score(ctx, qe, e.scoreOptions())
	if err != nil {
		var matchErr *matcherr.MatchError
		if errors.As(err, &matchErr) && matchErr.Kind == matcherr.KindInternal {
			row.Outcome = classify.NoMatch
			row.Diagnostic = "scoring-error: " + matchErr.Error()
			log.Warn("scoring failed, recording as NoMatch", "error", matchErr.Error())
			e.recordDiagnostic(ctx, q, "scoring-error", matchErr.Error())
			return row, nil
		}
		return OutcomeRow{}, err
	}

	verdict := classify.Classify(result, e.classifierConfig())
	row.Outcome = verdict.Outcome
	row.Mean = result.Mean
	row.Stdev = result.Stdev
	row.Population = result.Population

	limit := e.cfg.TopK
	if limit <= 0 || limit > len(result.Candidates) {
		limit = len(result.Candidates)
	}
	row.Candidates = make([]CandidateRow, limit)
	for i := 0; i < limit; i++ {
		c := result.Candidates[i]
		row.Candidates[i] = CandidateRow{
			RefID:         c.RefID,
			AdjustedScore: c.AdjustedScore,
			RawCosine:     c.RawCosine,
			ZScore:        verdict.ZScore,
			PerField:      c.PerField,
			YearDelta:     c.YearDelta,
		}
	}
	return row, nil
}

// RunBatch drains queries, scoring each concurrently across a worker pool
// sized to GOMAXPROCS, and emits OutcomeRows on out in input order. It
// returns when queries is closed and all in-flight work has completed.
// Once ctx is cancelled, queries still arriving are read but not scored,
// and RunBatch returns the cancellation error after queries is closed.
func (e *Engine) RunBatch(ctx context.Context, queries <-chan QueryRecord, out chan<- OutcomeRow) error {
	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}

	results := make(chan OutcomeRow, workers)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		workerGroup, workerCtx := errgroup.WithContext(gctx)
		workerGroup.SetLimit(workers)
		for q := range queries {
			q := q
			workerGroup.Go(func() error {
				if workerCtx.Err() != nil {
					return workerCtx.Err()
				}
				row, err := e.processOne(workerCtx, q)
				if err != nil {
					return fmt.Errorf("query %d (%s edition %d): %w", q.Seq, q.SourceFile, q.Edition, err)
				}
				select {
				case results <- row:
				case <-workerCtx.Done():
					return workerCtx.Err()
				}
				return nil
			})
		}
		err := workerGroup.Wait()
		close(results)
		return err
	})

	buf := newReorderBuffer()
	g.Go(func() error {
		for row := range results {
			for _, ready := range buf.Push(row) {
				select {
				case out <- ready:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return matcherr.Wrap("engine.RunBatch", matcherr.KindInternal, err)
	}
	return nil
}

// recordDiagnostic writes an audit row if a diagnostics sink is attached;
// it is a no-op otherwise, including on a nil Engine.diagnostics.
func (e *Engine) recordDiagnostic(ctx context.Context, q QueryRecord, kind, detail string) {
	if e.diagnostics == nil {
		return
	}
	if err := e.diagnostics.Record(ctx, q.SourceFile, q.Edition, kind, detail); err != nil {
		e.log.Warn("failed to record diagnostic", "error", err, "sourceFile", q.SourceFile, "edition", q.Edition)
	}
}
