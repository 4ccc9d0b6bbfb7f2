// Package clustering groups the persisted embeddings of a collection
// into identity clusters.
package clustering

import (
	"context"
	"fmt"

	"face-search-go/internal/db/repository"

	log "github.com/sirupsen/logrus"
)

// Member is one face inside a cluster.
type Member struct {
	FaceID       string    `json:"face_id"`
	ImageID      string    `json:"image_id"`
	FaceIndex    int       `json:"face_index"`
	BBox         []float64 `json:"bbox"`
	QualityScore float64   `json:"quality_score"`
}

// Cluster is one identity group with its representative face. The
// numeric ID is stable only within one invocation.
type Cluster struct {
	ID             int      `json:"cluster_id"`
	FaceCount      int      `json:"face_count"`
	Representative Member   `json:"representative_face"`
	Members        []Member `json:"faces"`
}

// Service runs identity clustering over one collection.
type Service struct {
	repo repository.Repository
}

// NewService creates a clustering service.
func NewService(repo repository.Repository) *Service {
	return &Service{repo: repo}
}

// ClusterCollection loads every face of the collection's completed
// images in fixed scan order and clusters their embeddings. Fewer
// embeddings than minClusterSize yield no clusters. The representative
// of each cluster is the member with the highest quality score;
// strict-greater comparison means the first maximal member in scan
// order wins ties.
func (s *Service) ClusterCollection(ctx context.Context, collectionID string, eps float64, minClusterSize int) ([]Cluster, error) {
	faces, err := s.repo.ListCompletedFaces(collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load faces for clustering: %w", err)
	}
	if len(faces) < minClusterSize {
		return []Cluster{}, nil
	}

	vectors := make([][]float32, len(faces))
	for i := range faces {
		vector, err := faces[i].EmbeddingVector()
		if err != nil {
			return nil, fmt.Errorf("failed to decode embedding for face %s: %w", faces[i].ID, err)
		}
		vectors[i] = vector
	}

	labels := DBSCAN(vectors, eps, minClusterSize)

	clusterCount := 0
	for _, label := range labels {
		if label >= clusterCount {
			clusterCount = label + 1
		}
	}

	clusters := make([]Cluster, clusterCount)
	for i := range clusters {
		clusters[i].ID = i
	}

	for i, label := range labels {
		if label == Noise {
			continue
		}

		face := faces[i]
		bbox, err := face.BBoxValues()
		if err != nil {
			log.Warnf("Failed to decode bbox for face %s: %v", face.ID, err)
		}
		member := Member{
			FaceID:       face.ID,
			ImageID:      face.ImageID,
			FaceIndex:    face.FaceIndex,
			BBox:         bbox,
			QualityScore: face.QualityScore,
		}

		cluster := &clusters[label]
		if len(cluster.Members) == 0 || member.QualityScore > cluster.Representative.QualityScore {
			cluster.Representative = member
		}
		cluster.Members = append(cluster.Members, member)
	}

	for i := range clusters {
		clusters[i].FaceCount = len(clusters[i].Members)
	}

	log.Debugf("Clustered %d face(s) of collection %s into %d cluster(s)",
		len(faces), collectionID, len(clusters))

	return clusters, nil
}
