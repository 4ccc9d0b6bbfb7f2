package search

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlog "gorm.io/gorm/logger"

	"face-search-go/internal/core/extractor"
	"face-search-go/internal/core/models"
	"face-search-go/internal/db/repository"
)

type fakeExtractor struct {
	faces []extractor.Face
	err   error
}

func (f *fakeExtractor) Extract(ctx context.Context, imageData []byte) ([]extractor.Face, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.faces, nil
}

func newTestRepo(t *testing.T) repository.Repository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlog.Default.LogMode(gormlog.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	// Every pooled connection would see its own empty in-memory database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access connection pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Collection{}, &models.Image{}, &models.Face{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return repository.NewGormRepository(db)
}

func newTestCollection(t *testing.T, repo repository.Repository) *models.Collection {
	t.Helper()
	collection := &models.Collection{Name: "wedding", Owner: "studio"}
	if err := repo.CreateCollection(collection); err != nil {
		t.Fatalf("failed to create collection: %v", err)
	}
	return collection
}

func seedCompletedImage(t *testing.T, repo repository.Repository, collection *models.Collection,
	filename, fingerprint, storagePath string, faces []models.Face) *models.Image {
	t.Helper()

	image := &models.Image{
		CollectionID: collection.ID,
		Filename:     filename,
		Fingerprint:  fingerprint,
		Status:       models.StatusPending,
		StoragePath:  storagePath,
	}
	if err := repo.CreateImage(image); err != nil {
		t.Fatalf("failed to create image: %v", err)
	}
	for i := range faces {
		faces[i].ImageID = image.ID
		faces[i].CollectionID = collection.ID
	}
	if ok, err := repo.TransitionImageStatus(image.ID, []string{models.StatusPending}, models.StatusProcessing); err != nil || !ok {
		t.Fatalf("failed to transition image to processing: ok=%v err=%v", ok, err)
	}
	if err := repo.CompleteImageFaces(image.ID, faces); err != nil {
		t.Fatalf("failed to complete image: %v", err)
	}
	return image
}

func storedFace(t *testing.T, index int, embedding []float32) models.Face {
	t.Helper()
	face := models.Face{
		FaceIndex:    index,
		Confidence:   0.95,
		QualityScore: 0.7,
	}
	if err := face.SetEmbedding(embedding); err != nil {
		t.Fatalf("failed to set embedding: %v", err)
	}
	if err := face.SetBBox([]float64{0, 0, 100, 100}); err != nil {
		t.Fatalf("failed to set bbox: %v", err)
	}
	return face
}

func queryFace(index int, embedding []float32, quality float64) extractor.Face {
	return extractor.Face{
		Index:        index,
		BBox:         []float64{10, 10, 110, 110},
		Embedding:    embedding,
		Confidence:   0.95,
		QualityScore: quality,
	}
}

func TestQueryByImageUsesBestQualityFace(t *testing.T) {
	repo := newTestRepo(t)
	collection := newTestCollection(t, repo)

	// One stored identity per axis. The query image carries two faces;
	// only the higher-quality one may drive the scan.
	seedCompletedImage(t, repo, collection, "group.jpg", "fp-1", "", []models.Face{
		storedFace(t, 0, []float32{1, 0}),
		storedFace(t, 1, []float32{0, 1}),
	})

	ext := &fakeExtractor{faces: []extractor.Face{
		queryFace(0, []float32{1, 0}, 0.3),
		queryFace(1, []float32{0, 1}, 0.9),
	}}
	svc := NewService(repo, ext, t.TempDir())

	results, err := svc.QueryByImage(context.Background(), collection.ID, []byte("jpeg"), 0.6, 50)
	if err != nil {
		t.Fatalf("QueryByImage() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 match, got %d", len(results))
	}
	if results[0].FaceIndex != 1 {
		t.Errorf("matched face index %d, want 1 (stored face matching the best query face)", results[0].FaceIndex)
	}
}

func TestQueryByImageNoUsableFace(t *testing.T) {
	repo := newTestRepo(t)
	collection := newTestCollection(t, repo)
	svc := NewService(repo, &fakeExtractor{}, t.TempDir())

	_, err := svc.QueryByImage(context.Background(), collection.ID, []byte("jpeg"), 0.6, 50)
	if !errors.Is(err, ErrNoFacesInQuery) {
		t.Errorf("expected ErrNoFacesInQuery, got %v", err)
	}
}

func TestQueryByImageExtractorFailure(t *testing.T) {
	repo := newTestRepo(t)
	collection := newTestCollection(t, repo)
	svc := NewService(repo, &fakeExtractor{err: extractor.ErrDecodeFailure}, t.TempDir())

	_, err := svc.QueryByImage(context.Background(), collection.ID, []byte("not an image"), 0.6, 50)
	if !errors.Is(err, extractor.ErrDecodeFailure) {
		t.Errorf("expected wrapped ErrDecodeFailure, got %v", err)
	}
}

func TestQueryByImageScopedToCompletedImages(t *testing.T) {
	repo := newTestRepo(t)
	collection := newTestCollection(t, repo)

	seedCompletedImage(t, repo, collection, "good.jpg", "fp-good", "", []models.Face{
		storedFace(t, 0, []float32{1, 0}),
	})
	// A perfect match whose image later dropped out of the completed state.
	demoted := seedCompletedImage(t, repo, collection, "demoted.jpg", "fp-demoted", "", []models.Face{
		storedFace(t, 0, []float32{1, 0}),
	})
	if ok, err := repo.TransitionImageStatus(demoted.ID,
		[]string{models.StatusCompleted}, models.StatusFailed); err != nil || !ok {
		t.Fatalf("failed to demote image: ok=%v err=%v", ok, err)
	}

	ext := &fakeExtractor{faces: []extractor.Face{queryFace(0, []float32{1, 0}, 0.9)}}
	svc := NewService(repo, ext, t.TempDir())

	results, err := svc.QueryByImage(context.Background(), collection.ID, []byte("jpeg"), 0.6, 50)
	if err != nil {
		t.Fatalf("QueryByImage() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 match, got %d", len(results))
	}
	if results[0].ImageID == demoted.ID {
		t.Error("faces of non-completed images must never match")
	}
}

func TestQueryByImageSkipsUnreadableEmbedding(t *testing.T) {
	repo := newTestRepo(t)
	collection := newTestCollection(t, repo)

	corrupt := storedFace(t, 0, []float32{1, 0})
	corrupt.Embedding = datatypes.JSON([]byte("not json"))
	seedCompletedImage(t, repo, collection, "group.jpg", "fp-1", "", []models.Face{
		corrupt,
		storedFace(t, 1, []float32{1, 0}),
	})

	ext := &fakeExtractor{faces: []extractor.Face{queryFace(0, []float32{1, 0}, 0.9)}}
	svc := NewService(repo, ext, t.TempDir())

	// A threshold of -1 admits every readable candidate, so the corrupt
	// face can only be absent if it was dropped from the scan.
	results, err := svc.QueryByImage(context.Background(), collection.ID, []byte("jpeg"), -1, 50)
	if err != nil {
		t.Fatalf("QueryByImage() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 match, got %d", len(results))
	}
	if results[0].FaceIndex != 1 {
		t.Errorf("matched face index %d, want 1 (the readable face)", results[0].FaceIndex)
	}
}

func TestQueryByImagePublicURLs(t *testing.T) {
	repo := newTestRepo(t)
	collection := newTestCollection(t, repo)
	dataDir := t.TempDir()

	storagePath := filepath.Join(dataDir, collection.ID, "photo.jpg")
	seedCompletedImage(t, repo, collection, "photo.jpg", "fp-1", storagePath, []models.Face{
		storedFace(t, 0, []float32{1, 0}),
	})

	ext := &fakeExtractor{faces: []extractor.Face{queryFace(0, []float32{1, 0}, 0.9)}}
	svc := NewService(repo, ext, dataDir)

	results, err := svc.QueryByImage(context.Background(), collection.ID, []byte("jpeg"), 0.6, 50)
	if err != nil {
		t.Fatalf("QueryByImage() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 match, got %d", len(results))
	}

	want := "/images/" + collection.ID + "/photo.jpg"
	if results[0].ImageURL != want {
		t.Errorf("ImageURL = %q, want %q", results[0].ImageURL, want)
	}
	if strings.Contains(results[0].ImageURL, dataDir) {
		t.Error("public URL must not expose the server filesystem path")
	}
}
