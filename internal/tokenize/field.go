package tokenize

import (
	"fmt"

	"github.com/nblibris/libris-match/internal/vocab"
)

// FieldVector is a sparse list of (token id, weight) pairs with no
// duplicate ids, per spec.md §3.
type FieldVector []WeightedToken

// WeightedToken is one sparse entry: a vocabulary id and its IDF * field
// weight contribution.
type WeightedToken struct {
	ID     uint32
	Weight float64
}

// Weights is the per-field weight profile from spec.md §4.2, overridable
// by an external weights file.
type Weights struct {
	Title         float64 `json:"title"`
	Author        float64 `json:"author"`
	Place         float64 `json:"placeOfPublication"`
	Year          float64 `json:"yearOfPublication"`
	AuthorInTitle float64 `json:"author_in_title"`
}

// DefaultWeights is the field-weight profile pinned by
// TestDefaultWeightsFixture in field_test.go (spec.md §9 open question
// resolution).
func DefaultWeights() Weights {
	return Weights{
		Title:         1.0,
		Author:        0.75,
		Place:         0.25,
		Year:          0.5,
		AuthorInTitle: 0,
	}
}

// Encoder canonicalises and tokenizes record fields against a shared
// Vocabulary, emitting weighted sparse FieldVectors.
type Encoder struct {
	Vocab   *vocab.Vocabulary
	Weights Weights
	// AddAuthorToTitle mirrors the `add-author-to-title` option: when set,
	// the author's tokens are prepended to the title token stream before
	// encoding, and the result is encoded with AuthorInTitle's weight
	// instead of Title's.
	AddAuthorToTitle bool
}

// NewEncoder constructs an Encoder with the default weight profile.
func NewEncoder(v *vocab.Vocabulary) *Encoder {
	return &Encoder{Vocab: v, Weights: DefaultWeights()}
}

// EncodeTokens builds a FieldVector from a pre-tokenized stream at the
// given field weight. Unknown tokens are silently dropped (spec.md §4.1);
// repeated tokens accumulate weight rather than producing duplicate ids.
func (e *Encoder) EncodeTokens(tokens []string, fieldWeight float64) FieldVector {
	if fieldWeight == 0 || len(tokens) == 0 {
		return nil
	}

	byID := make(map[uint32]float64, len(tokens))
	order := make([]uint32, 0, len(tokens))
	for _, tok := range tokens {
		id, ok := e.Vocab.Lookup(tok)
		if !ok {
			continue
		}
		weight := float64(e.Vocab.IDF(id)) * fieldWeight
		if _, seen := byID[id]; !seen {
			order = append(order, id)
		}
		byID[id] += weight
	}

	if len(order) == 0 {
		return nil
	}
	fv := make(FieldVector, len(order))
	for i, id := range order {
		fv[i] = WeightedToken{ID: id, Weight: byID[id]}
	}
	return fv
}

// EncodeField canonicalises and encodes a single text field by name.
func (e *Encoder) EncodeField(name, text string) FieldVector {
	return e.EncodeTokens(CanonTokens(text), e.weightFor(name))
}

// EncodeYear encodes the year field as a singleton "y"+digits token
// (spec.md §4.2): year only influences cosine similarity when it matches
// exactly; fuzzy tolerance is handled post-hoc by the scorer.
func (e *Encoder) EncodeYear(year *int) FieldVector {
	if year == nil {
		return nil
	}
	token := fmt.Sprintf("y%d", *year)
	return e.EncodeTokens([]string{token}, e.weightFor("yearOfPublication"))
}

func (e *Encoder) weightFor(name string) float64 {
	switch name {
	case "title":
		return e.Weights.Title
	case "author":
		return e.Weights.Author
	case "placeOfPublication":
		return e.Weights.Place
	case "yearOfPublication":
		return e.Weights.Year
	case "author_in_title":
		return e.Weights.AuthorInTitle
	default:
		return 0
	}
}

// RecordFields is the minimal field set shared by query and reference
// records (spec.md §3).
type RecordFields struct {
	Title  string
	Author string
	Place  string
	Year   *int
}

// EncodeRecord builds the per-field sparse vectors for a record. When
// AddAuthorToTitle is set, the title entry is replaced by the
// author-then-title composition encoded at the AuthorInTitle weight,
// simulating a combined field (spec.md §4.2); with a zero AuthorInTitle
// weight no title-derived field is produced at all. When AddAuthorToTitle
// is not set, the plain title is encoded at the Title weight and
// AuthorInTitle's weight is not used.
func (e *Encoder) EncodeRecord(f RecordFields) map[string]FieldVector {
	fields := make(map[string]FieldVector, 4)

	if e.AddAuthorToTitle {
		combined := append(CanonTokens(f.Author), CanonTokens(f.Title)...)
		if fv := e.EncodeTokens(combined, e.weightFor("author_in_title")); fv != nil {
			fields["author_in_title"] = fv
		}
	} else if fv := e.EncodeField("title", f.Title); fv != nil {
		fields["title"] = fv
	}

	if fv := e.EncodeField("author", f.Author); fv != nil {
		fields["author"] = fv
	}
	if fv := e.EncodeField("placeOfPublication", f.Place); fv != nil {
		fields["placeOfPublication"] = fv
	}
	if fv := e.EncodeYear(f.Year); fv != nil {
		fields["yearOfPublication"] = fv
	}

	return fields
}
