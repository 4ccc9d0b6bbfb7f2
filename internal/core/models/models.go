package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Image lifecycle states. Transitions are driven exclusively by the
// ingestion processor; completed is terminal unless an external
// reprocess resets a non-completed record.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Collection groups images and faces for one event, e.g. a wedding.
// The (name, owner) pair is the external lookup key.
type Collection struct {
	ID          string    `gorm:"type:uuid;primaryKey"`
	Name        string    `gorm:"uniqueIndex:idx_collections_name_owner;not null"`
	Owner       string    `gorm:"uniqueIndex:idx_collections_name_owner;not null"`
	Description string
	CreatedAt   time.Time
	Images      []Image `gorm:"foreignKey:CollectionID;constraint:OnDelete:CASCADE;"`
	Faces       []Face  `gorm:"foreignKey:CollectionID;constraint:OnDelete:CASCADE;"`
}

// BeforeCreate assigns a UUID primary key.
func (c *Collection) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Image represents one ingested photograph and its processing state.
// The fingerprint is unique across all images; a second ingestion of
// identical bytes must resolve to the existing record.
type Image struct {
	ID             string `gorm:"type:uuid;primaryKey"`
	CollectionID   string `gorm:"type:uuid;index;not null"`
	Filename       string `gorm:"not null"`
	StoragePath    string // path of the original bytes in the image store
	CompressedPath string // path of the compressed display rendition
	Fingerprint    string `gorm:"uniqueIndex;not null"` // SHA-256 of the raw bytes
	Status         string `gorm:"index;default:'pending'"`
	FaceCount      int
	OrderNumber    *int `gorm:"index"` // manual gallery ordering, nulls last
	CreatedAt      time.Time
	Faces          []Face `gorm:"foreignKey:ImageID;constraint:OnDelete:CASCADE;"`
}

// BeforeCreate assigns a UUID primary key.
func (i *Image) BeforeCreate(*gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// Face represents one detected face within an image. Records are created
// only by the extraction step and never mutated afterwards.
type Face struct {
	ID           string         `gorm:"type:uuid;primaryKey"`
	ImageID      string         `gorm:"type:uuid;index;not null"`
	CollectionID string         `gorm:"type:uuid;index;not null"`
	FaceIndex    int            `gorm:"not null"` // position in detector order, gaps where candidates were dropped
	Embedding    datatypes.JSON `gorm:"type:json;not null"`
	BBox         datatypes.JSON `gorm:"type:json"` // [x1, y1, x2, y2] in pixels
	Landmarks    datatypes.JSON `gorm:"type:json"` // flattened landmark points
	Confidence   float64
	QualityScore float64
	CreatedAt    time.Time
}

// BeforeCreate assigns a UUID primary key.
func (f *Face) BeforeCreate(*gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// SetEmbedding stores the embedding vector as JSON.
func (f *Face) SetEmbedding(vector []float32) error {
	data, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}
	f.Embedding = datatypes.JSON(data)
	return nil
}

// EmbeddingVector decodes the stored embedding.
func (f *Face) EmbeddingVector() ([]float32, error) {
	var vector []float32
	if err := json.Unmarshal(f.Embedding, &vector); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedding for face %s: %w", f.ID, err)
	}
	return vector, nil
}

// SetBBox stores the bounding box as JSON.
func (f *Face) SetBBox(bbox []float64) error {
	data, err := json.Marshal(bbox)
	if err != nil {
		return fmt.Errorf("failed to marshal bbox: %w", err)
	}
	f.BBox = datatypes.JSON(data)
	return nil
}

// BBoxValues decodes the stored bounding box.
func (f *Face) BBoxValues() ([]float64, error) {
	if len(f.BBox) == 0 {
		return nil, nil
	}
	var bbox []float64
	if err := json.Unmarshal(f.BBox, &bbox); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bbox for face %s: %w", f.ID, err)
	}
	return bbox, nil
}

// SetLandmarks stores the flattened landmark list as JSON.
func (f *Face) SetLandmarks(points []float64) error {
	data, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("failed to marshal landmarks: %w", err)
	}
	f.Landmarks = datatypes.JSON(data)
	return nil
}

// LandmarkValues decodes the stored landmark list.
func (f *Face) LandmarkValues() ([]float64, error) {
	if len(f.Landmarks) == 0 {
		return nil, nil
	}
	var points []float64
	if err := json.Unmarshal(f.Landmarks, &points); err != nil {
		return nil, fmt.Errorf("failed to unmarshal landmarks for face %s: %w", f.ID, err)
	}
	return points, nil
}

// Statistics summarizes the stored images and faces for the status endpoint.
type Statistics struct {
	TotalCollections int64     `json:"total_collections"`
	TotalImages      int64     `json:"total_images"`
	CompletedImages  int64     `json:"completed_images"`
	FailedImages     int64     `json:"failed_images"`
	TotalFaces       int64     `json:"total_faces"`
	LatestImage      time.Time `json:"latest_image"`
}
