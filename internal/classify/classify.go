// Package classify turns a scored candidate list into one of three
// outcomes — UniqueMatch, MultipleMatches, or NoMatch — following the
// seven numbered steps of spec.md §4.6.
package classify

import (
	"github.com/nblibris/libris-match/internal/score"
)

// Outcome is the classifier's verdict for one query.
type Outcome int

const (
	NoMatch Outcome = iota
	UniqueMatch
	MultipleMatches
)

func (o Outcome) String() string {
	switch o {
	case UniqueMatch:
		return "UniqueMatch"
	case MultipleMatches:
		return "MultipleMatches"
	default:
		return "NoMatch"
	}
}

// defaultClusterEpsilon is the design-level default for ε_cluster.
const defaultClusterEpsilon = 0.01

// minStdev floors σ to avoid a division blow-up when the population is
// degenerate (all equal scores).
const minStdev = 1e-9

// Config holds the classifier's decision thresholds, drawn from the
// option surface of spec.md §6.
type Config struct {
	ZThreshold            float64
	MinSingleSimilarity   float64
	MinMultipleSimilarity float64
	ClusterEpsilon        float64 // zero means use defaultClusterEpsilon
}

// Verdict is the classifier's full result: the outcome tag plus the
// winning cluster (possibly empty) and the full candidate list for
// reporting.
type Verdict struct {
	Outcome Outcome
	ZScore  float64
	Cluster []score.Candidate
	All     []score.Candidate
}

// Classify implements spec.md §4.6 steps 1-7.
func Classify(result score.Result, cfg Config) Verdict {
	// Step 1.
	if len(result.Candidates) == 0 {
		return Verdict{Outcome: NoMatch}
	}

	epsilon := cfg.ClusterEpsilon
	if epsilon == 0 {
		epsilon = defaultClusterEpsilon
	}

	// Step 2.
	sigma := result.Stdev
	if sigma < minStdev {
		sigma = minStdev
	}
	s1 := result.Candidates[0].AdjustedScore
	z1 := (s1 - result.Mean) / sigma

	// Step 3.
	if z1 < cfg.ZThreshold {
		return Verdict{Outcome: NoMatch, ZScore: z1, All: result.Candidates}
	}

	// Step 4: winning cluster, all candidates within (1-epsilon) of s1.
	clusterFloor := s1 * (1 - epsilon)
	cluster := make([]score.Candidate, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		if c.AdjustedScore >= clusterFloor {
			cluster = append(cluster, c)
			continue
		}
		break // Candidates is sorted descending, so once below floor, done.
	}

	verdict := Verdict{ZScore: z1, Cluster: cluster, All: result.Candidates}

	// Steps 5-7.
	switch {
	case len(cluster) == 1 && s1 >= cfg.MinSingleSimilarity:
		verdict.Outcome = UniqueMatch
	case len(cluster) >= 2 && s1 >= cfg.MinMultipleSimilarity:
		verdict.Outcome = MultipleMatches
	default:
		verdict.Outcome = NoMatch
	}
	return verdict
}
