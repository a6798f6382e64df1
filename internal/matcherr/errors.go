// Package matcherr defines the error kinds shared across the matching
// engine, following the wrapped-operation-error shape used throughout
// this codebase's store and loader errors.
package matcherr

import (
	"errors"
	"fmt"
)

// Kind classifies a matching-engine error per the error handling design.
type Kind int

const (
	// KindInternal covers arithmetic or invariant failures that should not
	// occur; the offending query is treated as NoMatch with a diagnostic.
	KindInternal Kind = iota
	// KindCorpusInvalid is a fatal corpus load error (bad magic, size
	// mismatch, non-normalised row).
	KindCorpusInvalid
	// KindVocabInvalid is a fatal vocabulary load error.
	KindVocabInvalid
	// KindWeightsInvalid is a fatal weights-file parse error.
	KindWeightsInvalid
	// KindQueryMalformed marks a single skippable, non-fatal query error.
	KindQueryMalformed
	// KindExclusionFileInvalid is a fatal exclusion-file parse error.
	KindExclusionFileInvalid
)

func (k Kind) String() string {
	switch k {
	case KindCorpusInvalid:
		return "CorpusInvalid"
	case KindVocabInvalid:
		return "VocabInvalid"
	case KindWeightsInvalid:
		return "WeightsInvalid"
	case KindQueryMalformed:
		return "QueryMalformed"
	case KindExclusionFileInvalid:
		return "ExclusionFileInvalid"
	default:
		return "Internal"
	}
}

// Sentinel errors usable with errors.Is.
var (
	ErrCorpusInvalid        = errors.New("corpus invalid")
	ErrVocabInvalid         = errors.New("vocabulary invalid")
	ErrWeightsInvalid       = errors.New("weights file invalid")
	ErrQueryMalformed       = errors.New("query malformed")
	ErrExclusionFileInvalid = errors.New("exclusion file invalid")
	ErrInternal             = errors.New("internal error")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindCorpusInvalid:
		return ErrCorpusInvalid
	case KindVocabInvalid:
		return ErrVocabInvalid
	case KindWeightsInvalid:
		return ErrWeightsInvalid
	case KindQueryMalformed:
		return ErrQueryMalformed
	case KindExclusionFileInvalid:
		return ErrExclusionFileInvalid
	default:
		return ErrInternal
	}
}

// MatchError wraps an underlying error with the operation and kind it
// occurred under.
type MatchError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *MatchError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("libris-match: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("libris-match: %s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *MatchError) Unwrap() error { return e.Err }

// Is lets errors.Is match both the wrapped error and the error kind's
// sentinel, so callers can test `errors.Is(err, matcherr.ErrCorpusInvalid)`
// without knowing about MatchError.
func (e *MatchError) Is(target error) bool {
	if target == sentinelFor(e.Kind) {
		return true
	}
	return errors.Is(e.Err, target)
}

// Wrap builds a MatchError, returning nil if err is nil.
func Wrap(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &MatchError{Op: op, Kind: kind, Err: err}
}
