package classify

import (
	"testing"

	"github.com/nblibris/libris-match/internal/score"
)

func TestClassifyEmptyIsNoMatch(t *testing.T) {
	v := Classify(score.Result{}, Config{})
	if v.Outcome != NoMatch {
		t.Errorf("Outcome = %v, want NoMatch", v.Outcome)
	}
}

func TestClassifyS1PerfectMatch(t *testing.T) {
	result := score.Result{
		Candidates: []score.Candidate{{RefID: 0, AdjustedScore: 0.999}},
		Mean:       0.2,
		Stdev:      0.1,
		Population: 1,
	}
	cfg := Config{ZThreshold: 1, MinSingleSimilarity: 0.5, MinMultipleSimilarity: 0.5}
	v := Classify(result, cfg)
	if v.Outcome != UniqueMatch {
		t.Errorf("Outcome = %v, want UniqueMatch", v.Outcome)
	}
	if len(v.Cluster) != 1 || v.Cluster[0].RefID != 0 {
		t.Errorf("Cluster = %+v, want single RefID 0", v.Cluster)
	}
}

func TestClassifyS4Ambiguity(t *testing.T) {
	result := score.Result{
		Candidates: []score.Candidate{
			{RefID: 1, AdjustedScore: 0.90},
			{RefID: 2, AdjustedScore: 0.895}, // within 1% of 0.90
			{RefID: 3, AdjustedScore: 0.40},  // outside cluster
		},
		Mean:       0.3,
		Stdev:      0.1,
		Population: 3,
	}
	cfg := Config{ZThreshold: 1, MinSingleSimilarity: 0.5, MinMultipleSimilarity: 0.5}
	v := Classify(result, cfg)
	if v.Outcome != MultipleMatches {
		t.Errorf("Outcome = %v, want MultipleMatches", v.Outcome)
	}
	if len(v.Cluster) != 2 {
		t.Errorf("len(Cluster) = %d, want 2", len(v.Cluster))
	}
}

func TestClassifyS5OutlierRejection(t *testing.T) {
	result := score.Result{
		Candidates: []score.Candidate{{RefID: 0, AdjustedScore: 0.4}},
		Mean:       0.38,
		Stdev:      0.01,
		Population: 100,
	}
	cfg := Config{ZThreshold: 7, MinSingleSimilarity: 0.1, MinMultipleSimilarity: 0.1}
	v := Classify(result, cfg)
	if v.Outcome != NoMatch {
		t.Errorf("Outcome = %v, want NoMatch (z=2 < z-threshold=7)", v.Outcome)
	}
	if v.ZScore < 1.9 || v.ZScore > 2.1 {
		t.Errorf("ZScore = %v, want ~2", v.ZScore)
	}
}

func TestClassifyS6EmptyCandidatesIsNoMatch(t *testing.T) {
	v := Classify(score.Result{Candidates: nil, Population: 0}, Config{})
	if v.Outcome != NoMatch {
		t.Errorf("Outcome = %v, want NoMatch for empty candidate list", v.Outcome)
	}
}

func TestClassifyMinSingleSimilarityGate(t *testing.T) {
	result := score.Result{
		Candidates: []score.Candidate{{RefID: 0, AdjustedScore: 0.3}},
		Mean:       0.1,
		Stdev:      0.05,
		Population: 10,
	}
	cfg := Config{ZThreshold: 1, MinSingleSimilarity: 0.5, MinMultipleSimilarity: 0.5}
	v := Classify(result, cfg)
	if v.Outcome != NoMatch {
		t.Errorf("Outcome = %v, want NoMatch (below min-single-similarity)", v.Outcome)
	}
}

func TestClassifyDefaultClusterEpsilon(t *testing.T) {
	result := score.Result{
		Candidates: []score.Candidate{
			{RefID: 0, AdjustedScore: 0.90},
			{RefID: 1, AdjustedScore: 0.85}, // >1% below 0.90, outside cluster
		},
		Mean:       0.2,
		Stdev:      0.1,
		Population: 2,
	}
	cfg := Config{ZThreshold: 1, MinSingleSimilarity: 0.5, MinMultipleSimilarity: 0.5}
	v := Classify(result, cfg)
	if v.Outcome != UniqueMatch {
		t.Errorf("Outcome = %v, want UniqueMatch (second candidate outside 1%% cluster)", v.Outcome)
	}
	if len(v.Cluster) != 1 {
		t.Errorf("len(Cluster) = %d, want 1", len(v.Cluster))
	}
}

func TestClassifyZeroStdevFloored(t *testing.T) {
	result := score.Result{
		Candidates: []score.Candidate{{RefID: 0, AdjustedScore: 0.5}},
		Mean:       0.5,
		Stdev:      0,
		Population: 1,
	}
	cfg := Config{ZThreshold: 0, MinSingleSimilarity: 0.1, MinMultipleSimilarity: 0.1}
	v := Classify(result, cfg)
	if v.Outcome != UniqueMatch {
		t.Errorf("Outcome = %v, want UniqueMatch even with zero stdev", v.Outcome)
	}
}
