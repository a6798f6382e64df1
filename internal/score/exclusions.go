package score

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nblibris/libris-match/internal/matcherr"
)

// ExclusionSet is a set of reference ids to drop from candidate lists
// (spec.md §4.5 step 6), loaded from a plain text file: one non-negative
// integer id per line, blank lines and lines starting with '#' ignored.
type ExclusionSet map[uint32]struct{}

// Contains reports whether r is excluded. A nil set excludes nothing.
func (s ExclusionSet) Contains(r uint32) bool {
	if s == nil {
		return false
	}
	_, ok := s[r]
	return ok
}

// LoadExclusionSet parses an exclusion file. Malformed lines are a fatal
// matcherr.KindExclusionFileInvalid, per spec.md §7.
func LoadExclusionSet(path string) (ExclusionSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, matcherr.Wrap("score.LoadExclusionSet", matcherr.KindExclusionFileInvalid, err)
	}
	defer f.Close()

	set := make(ExclusionSet)
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		id, err := strconv.ParseUint(text, 10, 32)
		if err != nil {
			return nil, matcherr.Wrap("score.LoadExclusionSet", matcherr.KindExclusionFileInvalid,
				fmt.Errorf("line %d: %q is not a valid reference id: %w", line, text, err))
		}
		set[uint32(id)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, matcherr.Wrap("score.LoadExclusionSet", matcherr.KindExclusionFileInvalid, err)
	}
	return set, nil
}

// MergeExclusionSets unions any number of sets, used when both
// `exclude-file` and `input-exclude-file` are supplied.
func MergeExclusionSets(sets ...ExclusionSet) ExclusionSet {
	merged := make(ExclusionSet)
	for _, s := range sets {
		for id := range s {
			merged[id] = struct{}{}
		}
	}
	return merged
}
