// Package extractor turns raw image bytes into scored face candidates.
package extractor

import (
	"context"
	"errors"
	"fmt"

	"face-search-go/internal/integrations/insightface"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// ErrDecodeFailure reports that the supplied bytes are not a decodable
// image. It fails the single image, never a whole batch.
var ErrDecodeFailure = errors.New("image bytes could not be decoded")

// Face is one surviving candidate with its derived quality score. Index
// is the position in detector-reported order; indexes may have gaps
// where candidates were dropped for a missing or mismatched embedding.
type Face struct {
	Index        int       `json:"face_index"`
	BBox         []float64 `json:"bbox"`
	Landmarks    []float64 `json:"landmarks"`
	Embedding    []float32 `json:"vector"`
	Confidence   float64   `json:"confidence"`
	QualityScore float64   `json:"quality_score"`
}

// Detector produces raw face candidates for an image.
type Detector interface {
	DetectFaces(ctx context.Context, imageData []byte, filename string) ([]insightface.DetectedFace, error)
}

// Service wraps a detector and derives quality scores locally. It is
// constructed once at startup and shared by the ingestion workers and
// the query path.
type Service struct {
	detector     Detector
	embeddingDim int
}

// NewService creates an extraction service requiring embeddings of the
// given dimensionality.
func NewService(detector Detector, embeddingDim int) *Service {
	return &Service{
		detector:     detector,
		embeddingDim: embeddingDim,
	}
}

// Extract decodes the image, runs detection and returns the surviving
// candidates with quality scores, preserving detector index order.
// Candidates whose embedding is absent or of the wrong dimensionality
// are dropped silently; their index positions remain as gaps.
func (s *Service) Extract(ctx context.Context, imageData []byte) ([]Face, error) {
	img, err := gocv.IMDecode(imageData, gocv.IMReadColor)
	if err != nil || img.Empty() {
		if err == nil {
			img.Close()
		}
		return nil, ErrDecodeFailure
	}
	defer img.Close()

	candidates, err := s.detector.DetectFaces(ctx, imageData, "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	faces := make([]Face, 0, len(candidates))
	for i, candidate := range candidates {
		if len(candidate.Embedding) != s.embeddingDim {
			log.Debugf("Dropping face candidate %d: embedding dimensionality %d, want %d",
				i, len(candidate.Embedding), s.embeddingDim)
			continue
		}

		quality := 0.0
		if variance, ok := cropSharpness(img, candidate.BBox); ok {
			quality = QualityScore(variance, bboxArea(candidate.BBox), candidate.Confidence)
		}

		faces = append(faces, Face{
			Index:        i,
			BBox:         candidate.BBox,
			Landmarks:    candidate.Landmarks,
			Embedding:    candidate.Embedding,
			Confidence:   candidate.Confidence,
			QualityScore: quality,
		})
	}

	return faces, nil
}
