package search

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{
			name:     "identical vectors",
			a:        []float32{1, 2, 3},
			b:        []float32{1, 2, 3},
			expected: 1.0,
		},
		{
			name:     "orthogonal vectors",
			a:        []float32{1, 0},
			b:        []float32{0, 1},
			expected: 0.0,
		},
		{
			name:     "opposite vectors",
			a:        []float32{1, 0},
			b:        []float32{-1, 0},
			expected: -1.0,
		},
		{
			name:     "zero vector",
			a:        []float32{0, 0},
			b:        []float32{1, 1},
			expected: 0.0,
		},
		{
			name:     "scale invariant",
			a:        []float32{1, 1},
			b:        []float32{5, 5},
			expected: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-6 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	query := make([]float32, 512)
	query[0] = 1

	if got := CosineSimilarity(query, nil); got != 0 {
		t.Errorf("CosineSimilarity(query, nil) = %v, want 0", got)
	}
	if got := CosineSimilarity(query, []float32{1, 0}); got != 0 {
		t.Errorf("CosineSimilarity with mismatched dimensions = %v, want 0", got)
	}
	if got := CosineSimilarity(nil, nil); got != 0 {
		t.Errorf("CosineSimilarity(nil, nil) = %v, want 0", got)
	}
}

func TestRankToleratesNilCandidate(t *testing.T) {
	query := make([]float32, 512)
	query[0] = 1
	match := make([]float32, 512)
	match[0] = 1

	matches := Rank(query, [][]float32{nil, match}, 0.6, 50)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Index != 1 {
		t.Errorf("expected match index 1, got %d", matches[0].Index)
	}
}

func TestRank(t *testing.T) {
	query := []float32{1, 0}
	candidates := [][]float32{
		{0.3, 0.9539392},  // similarity ~0.3
		{0.95, 0.3122499}, // similarity ~0.95
		{0.7, 0.7141428},  // similarity ~0.7
	}

	matches := Rank(query, candidates, 0.6, 50)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches above threshold, got %d", len(matches))
	}
	if matches[0].Index != 1 || matches[1].Index != 2 {
		t.Errorf("expected order [1, 2], got [%d, %d]", matches[0].Index, matches[1].Index)
	}
	if matches[0].Score < matches[1].Score {
		t.Error("results must be sorted non-increasing by score")
	}
}

func TestRankThresholdMonotonicity(t *testing.T) {
	query := []float32{1, 0, 0}
	candidates := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0.5, 0.5, 0},
		{0.1, 0.9, 0},
		{0, 0, 1},
	}

	prev := len(candidates) + 1
	for _, threshold := range []float64{0.0, 0.3, 0.6, 0.9, 0.99} {
		count := len(Rank(query, candidates, threshold, 0))
		if count > prev {
			t.Errorf("raising threshold to %v increased result count from %d to %d", threshold, prev, count)
		}
		prev = count
	}
}

func TestRankStableTies(t *testing.T) {
	query := []float32{1, 0}
	// Three identical candidates: equal scores must preserve candidate order.
	candidates := [][]float32{
		{2, 0},
		{3, 0},
		{4, 0},
	}

	matches := Rank(query, candidates, 0.5, 10)
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	for i, match := range matches {
		if match.Index != i {
			t.Errorf("tie at position %d resolved to index %d, want original order", i, match.Index)
		}
	}
}

func TestRankTruncation(t *testing.T) {
	query := []float32{1, 0}
	candidates := make([][]float32, 10)
	for i := range candidates {
		candidates[i] = []float32{1, float32(i) * 0.01}
	}

	matches := Rank(query, candidates, 0.0, 3)
	if len(matches) != 3 {
		t.Errorf("expected truncation to 3 results, got %d", len(matches))
	}
}

func TestRankEmptyCandidates(t *testing.T) {
	if matches := Rank([]float32{1}, nil, 0.6, 50); len(matches) != 0 {
		t.Errorf("expected no matches for empty candidate set, got %d", len(matches))
	}
}
