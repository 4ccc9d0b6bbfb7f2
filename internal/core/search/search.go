// Package search implements threshold-based cosine similarity queries
// over the persisted embedding set.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"face-search-go/internal/core/extractor"
	"face-search-go/internal/core/models"
	"face-search-go/internal/db/repository"

	log "github.com/sirupsen/logrus"
)

// ErrNoFacesInQuery reports that the query image contained no usable
// face. This is expected input variation, not a system fault, and is
// surfaced to the caller as a client-correctable condition.
var ErrNoFacesInQuery = errors.New("no faces detected in query image")

// Match pairs a candidate index with its similarity score.
type Match struct {
	Index int
	Score float64
}

// Result is one ranked hit of a point query.
type Result struct {
	ImageID       string    `json:"image_id"`
	Filename      string    `json:"filename"`
	FaceIndex     int       `json:"face_index"`
	BBox          []float64 `json:"bbox"`
	Score         float64   `json:"similarity_score"`
	ImageURL      string    `json:"image_url,omitempty"`
	CompressedURL string    `json:"compressed_url,omitempty"`
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Returns 0 when either vector has zero magnitude or the dimensions differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	denom := math.Sqrt(na) * math.Sqrt(nb)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// Rank scores every candidate against the query, keeps entries at or
// above the threshold, sorts descending by score (stable, so equal
// scores keep candidate order) and truncates to maxResults.
func Rank(query []float32, candidates [][]float32, threshold float64, maxResults int) []Match {
	matches := make([]Match, 0, len(candidates))
	for i, candidate := range candidates {
		score := CosineSimilarity(query, candidate)
		if score >= threshold {
			matches = append(matches, Match{Index: i, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if maxResults > 0 && len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}

// Extractor produces scored face candidates for the query image.
type Extractor interface {
	Extract(ctx context.Context, imageData []byte) ([]extractor.Face, error)
}

// Service answers point similarity queries against one collection.
type Service struct {
	repo      repository.Repository
	extractor Extractor
	dataDir   string
}

// NewService creates a search service. dataDir is the storage root the
// server exposes under the /images static route.
func NewService(repo repository.Repository, ext Extractor, dataDir string) *Service {
	return &Service{repo: repo, extractor: ext, dataDir: dataDir}
}

// publicURL maps a stored file path to its /images route. Paths outside
// the data directory have no public route and map to the empty string.
func (s *Service) publicURL(storagePath string) string {
	if storagePath == "" {
		return ""
	}
	rel, err := filepath.Rel(s.dataDir, storagePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return "/images/" + filepath.ToSlash(rel)
}

// QueryByImage extracts faces from the query bytes, picks the single
// highest-quality face as the query vector and returns ranked matches
// from the collection's completed images.
func (s *Service) QueryByImage(ctx context.Context, collectionID string, imageData []byte, threshold float64, maxResults int) ([]Result, error) {
	queryFaces, err := s.extractor.Extract(ctx, imageData)
	if err != nil {
		return nil, fmt.Errorf("query image extraction failed: %w", err)
	}
	if len(queryFaces) == 0 {
		return nil, ErrNoFacesInQuery
	}

	best := queryFaces[0]
	for _, face := range queryFaces[1:] {
		if face.QualityScore > best.QualityScore {
			best = face
		}
	}

	candidates, err := s.repo.ListCompletedFaces(collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate faces: %w", err)
	}
	if len(candidates) == 0 {
		return []Result{}, nil
	}

	// Faces with unreadable embeddings are dropped from the scan entirely
	// so they can never score against the query.
	kept := make([]models.Face, 0, len(candidates))
	vectors := make([][]float32, 0, len(candidates))
	for i := range candidates {
		vector, err := candidates[i].EmbeddingVector()
		if err != nil {
			log.Warnf("Skipping face %s with unreadable embedding: %v", candidates[i].ID, err)
			continue
		}
		kept = append(kept, candidates[i])
		vectors = append(vectors, vector)
	}

	matches := Rank(best.Embedding, vectors, threshold, maxResults)

	results := make([]Result, 0, len(matches))
	for _, match := range matches {
		face := kept[match.Index]
		bbox, err := face.BBoxValues()
		if err != nil {
			log.Warnf("Failed to decode bbox for face %s: %v", face.ID, err)
		}

		result := Result{
			ImageID:   face.ImageID,
			FaceIndex: face.FaceIndex,
			BBox:      bbox,
			Score:     match.Score,
		}

		if image, err := s.repo.GetImageByID(face.ImageID); err == nil && image != nil {
			result.Filename = image.Filename
			result.ImageURL = s.publicURL(image.StoragePath)
			result.CompressedURL = s.publicURL(image.CompressedPath)
		}

		results = append(results, result)
	}

	return results, nil
}
