package score

import "testing"

func TestLongestCommonRun(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want int
	}{
		{"identical", []string{"moby", "dick"}, []string{"moby", "dick"}, 2},
		{"partial overlap", []string{"the", "moby", "dick"}, []string{"moby", "dick", "tale"}, 2},
		{"no overlap", []string{"a", "b"}, []string{"c", "d"}, 0},
		{"empty a", nil, []string{"a"}, 0},
		{"reordered no contiguous run", []string{"dick", "moby"}, []string{"moby", "dick"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := longestCommonRun(tt.a, tt.b); got != tt.want {
				t.Errorf("longestCommonRun(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestOverlapMultiplierDisabledAtKOne(t *testing.T) {
	if m := overlapMultiplier([]string{"a"}, []string{"b"}, 1); m != 1 {
		t.Errorf("overlapMultiplier with K=1 = %v, want 1 (disabled)", m)
	}
}

func TestOverlapMultiplierFullOverlap(t *testing.T) {
	m := overlapMultiplier([]string{"moby", "dick"}, []string{"moby", "dick"}, 4)
	if m != 1 {
		t.Errorf("overlapMultiplier(full overlap) = %v, want 1", m)
	}
}

func TestOverlapMultiplierNoOverlapPenalized(t *testing.T) {
	m := overlapMultiplier([]string{"a", "b"}, []string{"c", "d"}, 4)
	want := 1 - (1-0.0)*(1-1.0/4.0)
	if m != want {
		t.Errorf("overlapMultiplier(no overlap) = %v, want %v", m, want)
	}
}

func TestOverlapMultiplierEmptyBoth(t *testing.T) {
	if m := overlapMultiplier(nil, nil, 4); m != 1 {
		t.Errorf("overlapMultiplier(empty, empty) = %v, want 1", m)
	}
}
