package tokenize

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nblibris/libris-match/internal/matcherr"
)

// LoadWeights parses a weights-file (the `weights-file` option from
// spec.md §6) and validates that every weight is non-negative. Any parse
// or validation failure is a fatal matcherr.KindWeightsInvalid.
func LoadWeights(path string) (Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, matcherr.Wrap("tokenize.LoadWeights", matcherr.KindWeightsInvalid, err)
	}

	raw := map[string]float64{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Weights{}, matcherr.Wrap("tokenize.LoadWeights", matcherr.KindWeightsInvalid, err)
	}

	w := DefaultWeights()
	fields := map[string]*float64{
		"title":              &w.Title,
		"author":             &w.Author,
		"placeOfPublication": &w.Place,
		"yearOfPublication":  &w.Year,
		"author_in_title":    &w.AuthorInTitle,
	}

	for key, val := range raw {
		target, ok := fields[key]
		if !ok {
			return Weights{}, matcherr.Wrap("tokenize.LoadWeights", matcherr.KindWeightsInvalid,
				fmt.Errorf("unknown weight key %q", key))
		}
		if val < 0 {
			return Weights{}, matcherr.Wrap("tokenize.LoadWeights", matcherr.KindWeightsInvalid,
				fmt.Errorf("weight %q must be non-negative, got %v", key, val))
		}
		*target = val
	}

	return w, nil
}
