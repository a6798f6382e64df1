// Package corpus loads the dataset-vectors and source-data corpus files —
// vocabulary-dimensioned dense embeddings, plus per-reference fields and
// opaque metadata sharing one record — into a single read-only Store
// shared by every worker in a batch (spec.md §4.4). The vocabulary file is
// loaded separately by package vocab.
package corpus

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/nblibris/libris-match/internal/encoding"
	"github.com/nblibris/libris-match/internal/matcherr"
)

const unitNormTolerance = 1e-5

// Store holds the immutable, memory-mapped (where supported) corpus: a
// row-major dense embedding matrix plus per-reference fields and metadata.
// All accessors are safe for concurrent use by multiple workers since the
// underlying data never changes after Load.
type Store struct {
	n      int
	dim    int
	emb    mappedFloats
	fields []encoding.ReferenceFields
}

// Load reads `<prefix>-dataset-vectors.bin` and `<prefix>-source-data.bin`
// from dir, validating consistency against the given vocabulary size.
// vocabDim is the expected embedding dimension (the vocabulary's Len()).
func Load(dir, prefix string, vocabDim int) (*Store, error) {
	vecPath := filepath.Join(dir, prefix+"-dataset-vectors.bin")
	srcPath := filepath.Join(dir, prefix+"-source-data.bin")

	mapped, n, d, err := mapVectorsFile(vecPath)
	if err != nil {
		return nil, matcherr.Wrap("corpus.Load", matcherr.KindCorpusInvalid, err)
	}
	if d != vocabDim {
		mapped.Close()
		return nil, matcherr.Wrap("corpus.Load", matcherr.KindCorpusInvalid,
			fmt.Errorf("vector dimension %d does not match vocabulary size %d", d, vocabDim))
	}
	if err := validateRows(mapped.Floats(), n, d); err != nil {
		mapped.Close()
		return nil, matcherr.Wrap("corpus.Load", matcherr.KindCorpusInvalid, err)
	}

	srcFile, err := os.Open(srcPath)
	if err != nil {
		mapped.Close()
		return nil, matcherr.Wrap("corpus.Load", matcherr.KindCorpusInvalid, err)
	}
	defer srcFile.Close()

	srcN, records, err := encoding.ReadSourceFile(srcFile)
	if err != nil {
		mapped.Close()
		return nil, matcherr.Wrap("corpus.Load", matcherr.KindCorpusInvalid, err)
	}
	if int(srcN) != n {
		mapped.Close()
		return nil, matcherr.Wrap("corpus.Load", matcherr.KindCorpusInvalid,
			fmt.Errorf("source-data N=%d does not match vectors N=%d", srcN, n))
	}

	fields := make([]encoding.ReferenceFields, n)
	for i, rec := range records {
		f, err := encoding.DecodeSourceRecord(rec)
		if err != nil {
			mapped.Close()
			return nil, matcherr.Wrap("corpus.Load", matcherr.KindCorpusInvalid,
				fmt.Errorf("reference %d: %w", i, err))
		}
		fields[i] = f
	}

	return &Store{n: n, dim: d, emb: mapped, fields: fields}, nil
}

func validateRows(data []float32, n, d int) error {
	for r := 0; r < n; r++ {
		row := data[r*d : (r+1)*d]
		var sumSq float64
		for _, v := range row {
			sumSq += float64(v) * float64(v)
		}
		if sumSq == 0 {
			continue
		}
		norm := math.Sqrt(sumSq)
		if math.Abs(norm-1.0) > unitNormTolerance {
			return fmt.Errorf("reference %d: embedding norm %v is neither zero nor unit", r, norm)
		}
	}
	return nil
}

// Len returns the number of reference records, N.
func (s *Store) Len() int { return s.n }

// Dim returns the embedding dimension, D.
func (s *Store) Dim() int { return s.dim }

// EMB returns the full row-major embedding matrix, N*D floats.
func (s *Store) EMB() []float32 { return s.emb.Floats() }

// Row returns reference r's embedding as a slice view into EMB.
func (s *Store) Row(r int) []float32 {
	return s.emb.Floats()[r*s.dim : (r+1)*s.dim]
}

// Fields returns reference r's title/author/place/year.
func (s *Store) Fields(r int) encoding.ReferenceFields { return s.fields[r] }

// Meta returns reference r's opaque metadata blob, retained verbatim for
// report emission.
func (s *Store) Meta(r int) []byte { return s.fields[r].Meta }

// Close releases any memory-mapped resources held by the store.
func (s *Store) Close() error { return s.emb.Close() }
