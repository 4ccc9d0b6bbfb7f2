package extractor

import (
	"image"
	"math"
	"testing"
)

func TestQualityScore(t *testing.T) {
	tests := []struct {
		name       string
		variance   float64
		area       float64
		confidence float64
		expected   float64
	}{
		{
			name:       "all factors saturated",
			variance:   5000, // clamps to 1.0
			area:       40000,
			confidence: 1.2, // detector overshoot clamps to 1.0
			expected:   1.0,
		},
		{
			name:       "all factors zero",
			variance:   0,
			area:       0,
			confidence: 0,
			expected:   0.0,
		},
		{
			name:       "mid-range factors",
			variance:   500,  // sharp = 0.5
			area:       5000, // size = 0.5
			confidence: 0.9,
			expected:   0.4*0.5 + 0.3*0.5 + 0.3*0.9,
		},
		{
			name:       "negative inputs clamp to zero",
			variance:   -10,
			area:       -100,
			confidence: -0.5,
			expected:   0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QualityScore(tt.variance, tt.area, tt.confidence)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("QualityScore() = %v, want %v", got, tt.expected)
			}
			if got < 0 || got > 1 {
				t.Errorf("QualityScore() = %v, outside [0,1]", got)
			}
		})
	}
}

func TestClampRect(t *testing.T) {
	tests := []struct {
		name     string
		bbox     []float64
		width    int
		height   int
		expected image.Rectangle
		ok       bool
	}{
		{
			name:     "inside bounds",
			bbox:     []float64{10, 20, 110, 140},
			width:    640, height: 480,
			expected: image.Rect(10, 20, 110, 140),
			ok:       true,
		},
		{
			name:     "clamped to image edge",
			bbox:     []float64{-15, -5, 700, 500},
			width:    640, height: 480,
			expected: image.Rect(0, 0, 640, 480),
			ok:       true,
		},
		{
			name:  "zero area after clamping",
			bbox:  []float64{-50, -50, -10, -10},
			width: 640, height: 480,
			ok:    false,
		},
		{
			name:  "inverted box",
			bbox:  []float64{100, 100, 50, 50},
			width: 640, height: 480,
			ok:    false,
		},
		{
			name:  "malformed box",
			bbox:  []float64{1, 2, 3},
			width: 640, height: 480,
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rect, ok := clampRect(tt.bbox, tt.width, tt.height)
			if ok != tt.ok {
				t.Fatalf("clampRect() ok = %v, want %v", ok, tt.ok)
			}
			if ok && rect != tt.expected {
				t.Errorf("clampRect() = %v, want %v", rect, tt.expected)
			}
		})
	}
}

func TestBBoxArea(t *testing.T) {
	if got := bboxArea([]float64{0, 0, 100, 100}); got != 10000 {
		t.Errorf("bboxArea() = %v, want 10000", got)
	}
	if got := bboxArea([]float64{10, 10, 10, 50}); got != 0 {
		t.Errorf("bboxArea() of zero-width box = %v, want 0", got)
	}
	if got := bboxArea([]float64{1, 2}); got != 0 {
		t.Errorf("bboxArea() of malformed box = %v, want 0", got)
	}
}
