// Package report writes outcome rows as newline-delimited JSON, one
// object per query (spec.md §6's outcome rows).
package report

import (
	"context"
	"encoding/json"
	"io"

	"github.com/nblibris/libris-match/internal/engine"
)

// ReportWriter is the external collaborator spec.md §6 describes: a
// ctx-aware sink for outcome rows that can be closed once a batch is done.
type ReportWriter interface {
	WriteRow(ctx context.Context, row engine.OutcomeRow) error
	Close() error
}

// candidateJSON is the on-the-wire shape of one reported candidate.
type candidateJSON struct {
	ReferenceID   uint32             `json:"referenceId"`
	AdjustedScore float64            `json:"adjustedScore"`
	RawCosine     float64            `json:"rawCosine"`
	ZScore        float64            `json:"zScore"`
	PerField      map[string]float64 `json:"perFieldSimilarity,omitempty"`
	YearDelta     *int               `json:"yearDelta,omitempty"`
}

// rowJSON is the on-the-wire shape of one outcome row.
type rowJSON struct {
	SourceFile string          `json:"sourceFile"`
	Edition    int             `json:"edition"`
	Outcome    string          `json:"outcome"`
	Candidates []candidateJSON `json:"candidates"`
	Mean       float64         `json:"mean"`
	Stdev      float64         `json:"stdev"`
	Population int             `json:"population"`
	Diagnostic string          `json:"diagnostic,omitempty"`
}

// Writer emits OutcomeRows as newline-delimited JSON to an underlying
// io.Writer, in the order it receives them. It implements ReportWriter.
type Writer struct {
	enc    *json.Encoder
	closer io.Closer
}

var _ ReportWriter = (*Writer)(nil)

// NewWriter wraps w for outcome-row emission. If w also implements
// io.Closer (any *os.File, os.Stdout included), Close closes it too;
// otherwise Close is a no-op, since in-memory buffers have nothing to
// release.
func NewWriter(w io.Writer) *Writer {
	closer, _ := w.(io.Closer)
	return &Writer{enc: json.NewEncoder(w), closer: closer}
}

// WriteRow serialises and writes one outcome row, aborting without writing
// if ctx is already done.
func (w *Writer) WriteRow(ctx context.Context, row engine.OutcomeRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	candidates := make([]candidateJSON, len(row.Candidates))
	for i, c := range row.Candidates {
		candidates[i] = candidateJSON{
			ReferenceID:   c.RefID,
			AdjustedScore: c.AdjustedScore,
			RawCosine:     c.RawCosine,
			ZScore:        c.ZScore,
			PerField:      c.PerField,
			YearDelta:     c.YearDelta,
		}
	}
	return w.enc.Encode(rowJSON{
		SourceFile: row.SourceFile,
		Edition:    row.Edition,
		Outcome:    row.Outcome.String(),
		Candidates: candidates,
		Mean:       row.Mean,
		Stdev:      row.Stdev,
		Population: row.Population,
		Diagnostic: row.Diagnostic,
	})
}

// Close releases the underlying writer if it is closable.
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// Drain reads from rows until closed or ctx is done, writing each to w. It
// stops at the first write error.
func (w *Writer) Drain(ctx context.Context, rows <-chan engine.OutcomeRow) error {
	for {
		select {
		case row, ok := <-rows:
			if !ok {
				return nil
			}
			if err := w.WriteRow(ctx, row); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
