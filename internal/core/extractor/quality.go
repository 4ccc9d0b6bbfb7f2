package extractor

import "image"

// Quality score factors and weights. Sharpness is the variance of a
// Laplacian edge filter over the grayscale face crop scaled by a fixed
// divisor; size is the bbox pixel area relative to a 100x100 reference.
const (
	sharpnessDivisor = 1000.0
	referenceArea    = 100.0 * 100.0

	weightSharpness  = 0.4
	weightSize       = 0.3
	weightConfidence = 0.3
)

// QualityScore combines sharpness, relative size and detector confidence
// into a single [0,1] score. Each factor is clamped to [0,1] before
// weighting.
func QualityScore(laplacianVariance, bboxArea, confidence float64) float64 {
	sharp := clamp01(laplacianVariance / sharpnessDivisor)
	size := clamp01(bboxArea / referenceArea)
	conf := clamp01(confidence)
	return weightSharpness*sharp + weightSize*size + weightConfidence*conf
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// clampRect converts a float bbox [x1, y1, x2, y2] to an integer
// rectangle clamped to the image bounds. ok is false for malformed or
// degenerate (zero area after clamping) boxes.
func clampRect(bbox []float64, width, height int) (image.Rectangle, bool) {
	if len(bbox) != 4 {
		return image.Rectangle{}, false
	}

	x1 := clampInt(int(bbox[0]), 0, width)
	y1 := clampInt(int(bbox[1]), 0, height)
	x2 := clampInt(int(bbox[2]), 0, width)
	y2 := clampInt(int(bbox[3]), 0, height)

	if x2 <= x1 || y2 <= y1 {
		return image.Rectangle{}, false
	}
	return image.Rect(x1, y1, x2, y2), true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// bboxArea returns the pixel area of a float bbox, 0 for malformed or
// inverted boxes.
func bboxArea(bbox []float64) float64 {
	if len(bbox) != 4 {
		return 0
	}
	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}
