package report

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nblibris/libris-match/internal/classify"
	"github.com/nblibris/libris-match/internal/engine"
)

func TestWriteRow(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	row := engine.OutcomeRow{
		SourceFile: "a.json",
		Edition:    0,
		Outcome:    classify.UniqueMatch,
		Candidates: []engine.CandidateRow{
			{RefID: 7, AdjustedScore: 0.95, RawCosine: 0.97, ZScore: 4.2},
		},
		Mean:       0.3,
		Stdev:      0.15,
		Population: 1000,
	}
	if err := w.WriteRow(context.Background(), row); err != nil {
		t.Fatalf("WriteRow() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if decoded["outcome"] != "UniqueMatch" {
		t.Errorf("outcome = %v, want UniqueMatch", decoded["outcome"])
	}
	if decoded["sourceFile"] != "a.json" {
		t.Errorf("sourceFile = %v, want a.json", decoded["sourceFile"])
	}
}

func TestWriteRowRejectsDoneContext(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.WriteRow(ctx, engine.OutcomeRow{SourceFile: "a.json"}); err == nil {
		t.Error("expected error from a cancelled context")
	}
	if buf.Len() != 0 {
		t.Errorf("expected nothing written, got %q", buf.String())
	}
}

func TestDrainWritesAllRows(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	rows := make(chan engine.OutcomeRow, 2)
	rows <- engine.OutcomeRow{SourceFile: "a.json", Outcome: classify.NoMatch}
	rows <- engine.OutcomeRow{SourceFile: "b.json", Outcome: classify.MultipleMatches}
	close(rows)

	if err := w.Drain(context.Background(), rows); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}
}

func TestCloseClosesUnderlyingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ndjson")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	w := NewWriter(f)

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := f.Close(); err == nil {
		t.Error("expected file to already be closed")
	}
}

func TestCloseOnNonCloserIsNoOp(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Close(); err != nil {
		t.Errorf("Close() on a bytes.Buffer should be a no-op, got %v", err)
	}
}
