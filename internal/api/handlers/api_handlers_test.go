package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlog "gorm.io/gorm/logger"

	"face-search-go/config"
	"face-search-go/internal/core/models"
	"face-search-go/internal/db/repository"
)

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

func newTestRouter(t *testing.T, repo repository.Repository) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewAPIHandler(&config.Config{}, repo, nil, nil, nil, nil, nil, nil, nil)
	router := gin.New()
	h.RegisterRoutes(router.Group("/api"))
	return router
}

func seedFace(t *testing.T, repo repository.Repository) *models.Face {
	t.Helper()

	collection := &models.Collection{Name: "wedding", Owner: "studio"}
	if err := repo.CreateCollection(collection); err != nil {
		t.Fatalf("failed to create collection: %v", err)
	}
	image := &models.Image{
		CollectionID: collection.ID,
		Filename:     "group.jpg",
		Fingerprint:  "fp-handler-test",
		Status:       models.StatusPending,
	}
	if err := repo.CreateImage(image); err != nil {
		t.Fatalf("failed to create image: %v", err)
	}

	face := models.Face{
		ImageID:      image.ID,
		CollectionID: collection.ID,
		FaceIndex:    0,
		Confidence:   0.95,
		QualityScore: 0.7,
	}
	if err := face.SetEmbedding([]float32{1, 0}); err != nil {
		t.Fatalf("failed to set embedding: %v", err)
	}
	if err := face.SetBBox([]float64{0, 0, 100, 100}); err != nil {
		t.Fatalf("failed to set bbox: %v", err)
	}

	if ok, err := repo.TransitionImageStatus(image.ID, []string{models.StatusPending}, models.StatusProcessing); err != nil || !ok {
		t.Fatalf("failed to transition image: ok=%v err=%v", ok, err)
	}
	if err := repo.CompleteImageFaces(image.ID, []models.Face{face}); err != nil {
		t.Fatalf("failed to complete image: %v", err)
	}

	faces, err := repo.ListFacesByImageID(image.ID)
	if err != nil || len(faces) != 1 {
		t.Fatalf("failed to load seeded face: %v", err)
	}
	return &faces[0]
}

func TestGetFaceReturnsFaceWithImage(t *testing.T) {
	repo := newTestRepo(t)
	router := newTestRouter(t, repo)
	face := seedFace(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/api/faces/"+face.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body struct {
		Face  *models.Face  `json:"face"`
		Image *models.Image `json:"image"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Face == nil || body.Face.ID != face.ID {
		t.Errorf("expected face %s in response", face.ID)
	}
	if body.Image == nil || body.Image.ID != face.ImageID {
		t.Errorf("expected image %s in response", face.ImageID)
	}
}

func TestGetFaceUnknownID(t *testing.T) {
	repo := newTestRepo(t)
	router := newTestRouter(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/api/faces/no-such-face", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
