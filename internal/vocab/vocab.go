// Package vocab loads and exposes the frozen token vocabulary used to
// project records into the shared embedding space (spec.md §4.1).
package vocab

import (
	"fmt"
	"os"

	"github.com/nblibris/libris-match/internal/encoding"
	"github.com/nblibris/libris-match/internal/matcherr"
)

// Vocabulary is an immutable token -> id map with a parallel per-id IDF
// weight array. It is safe for concurrent read-only use by many workers.
type Vocabulary struct {
	ids  map[string]uint32
	idf  []float32
	hash uint32
}

// Len returns V, the vocabulary size (and the embedding dimension D).
func (v *Vocabulary) Len() int { return len(v.idf) }

// Hash returns the opaque content hash recorded in the vocab file header.
func (v *Vocabulary) Hash() uint32 { return v.hash }

// Lookup returns the dense id for a canonicalised token, if present.
func (v *Vocabulary) Lookup(token string) (id uint32, ok bool) {
	id, ok = v.ids[token]
	return id, ok
}

// IDF returns the inverse-document-frequency weight for a token id. Callers
// must only pass ids obtained from Lookup or in [0, Len()).
func (v *Vocabulary) IDF(id uint32) float32 {
	if int(id) >= len(v.idf) {
		return 0
	}
	return v.idf[id]
}

// Load reads a `<source>-vocab.bin` file and validates it: ids must be a
// dense permutation of [0, V), and no token string may repeat. Any
// violation is reported as matcherr.KindVocabInvalid, matching the fatal
// startup-only failure mode from spec.md §7.
func Load(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, matcherr.Wrap("vocab.Load", matcherr.KindVocabInvalid, err)
	}
	defer f.Close()

	hdr, tokens, err := encoding.ReadVocabFile(f)
	if err != nil {
		return nil, matcherr.Wrap("vocab.Load", matcherr.KindVocabInvalid, err)
	}

	if int(hdr.V) != len(tokens) {
		return nil, matcherr.Wrap("vocab.Load", matcherr.KindVocabInvalid,
			fmt.Errorf("header says %d tokens, found %d", hdr.V, len(tokens)))
	}

	ids := make(map[string]uint32, len(tokens))
	idf := make([]float32, len(tokens))
	seen := make([]bool, len(tokens))

	for _, tok := range tokens {
		if int(tok.ID) >= len(tokens) {
			return nil, matcherr.Wrap("vocab.Load", matcherr.KindVocabInvalid,
				fmt.Errorf("token id %d out of range [0,%d)", tok.ID, len(tokens)))
		}
		if seen[tok.ID] {
			return nil, matcherr.Wrap("vocab.Load", matcherr.KindVocabInvalid,
				fmt.Errorf("duplicate token id %d", tok.ID))
		}
		if _, exists := ids[tok.Token]; exists {
			return nil, matcherr.Wrap("vocab.Load", matcherr.KindVocabInvalid,
				fmt.Errorf("duplicate token string %q", tok.Token))
		}
		seen[tok.ID] = true
		ids[tok.Token] = tok.ID
		idf[tok.ID] = tok.IDF
	}
	for i, ok := range seen {
		if !ok {
			return nil, matcherr.Wrap("vocab.Load", matcherr.KindVocabInvalid,
				fmt.Errorf("missing token id %d", i))
		}
	}

	return &Vocabulary{ids: ids, idf: idf, hash: hdr.Hash}, nil
}

// New builds a Vocabulary directly from tokens and IDF weights, primarily
// for tests and for embedding small fixture vocabularies without going
// through the file format.
func New(tokens []string, idf []float32) (*Vocabulary, error) {
	if len(tokens) != len(idf) {
		return nil, fmt.Errorf("vocab.New: tokens/idf length mismatch: %d != %d", len(tokens), len(idf))
	}
	ids := make(map[string]uint32, len(tokens))
	for i, tok := range tokens {
		if _, exists := ids[tok]; exists {
			return nil, fmt.Errorf("vocab.New: duplicate token %q", tok)
		}
		ids[tok] = uint32(i)
	}
	return &Vocabulary{ids: ids, idf: append([]float32(nil), idf...)}, nil
}
