package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"face-search-go/config"
	"face-search-go/internal/cache"
	"face-search-go/internal/core/clustering"
	"face-search-go/internal/core/models"
	"face-search-go/internal/core/processor"
	"face-search-go/internal/core/search"
	"face-search-go/internal/db/repository"
	"face-search-go/internal/integrations/insightface"
	"face-search-go/internal/storage"
)

// APIHandler serves the HTTP API.
type APIHandler struct {
	cfg         *config.Config
	repo        repository.Repository
	processor   *processor.ImageProcessor
	pool        *processor.WorkerPool
	search      *search.Service
	clustering  *clustering.Service
	resultCache *cache.ResultCache
	detector    *insightface.APIClient
	store       storage.Store
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(cfg *config.Config, repo repository.Repository, imageProcessor *processor.ImageProcessor,
	pool *processor.WorkerPool, searchSvc *search.Service, clusteringSvc *clustering.Service,
	resultCache *cache.ResultCache, detector *insightface.APIClient, store storage.Store) *APIHandler {
	return &APIHandler{
		cfg:         cfg,
		repo:        repo,
		processor:   imageProcessor,
		pool:        pool,
		search:      searchSvc,
		clustering:  clusteringSvc,
		resultCache: resultCache,
		detector:    detector,
		store:       store,
	}
}

// RegisterRoutes registers all API routes.
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Collection endpoints
	router.POST("/collections", h.CreateCollection)
	router.GET("/collections/:owner/:name", h.GetCollection)
	router.DELETE("/collections/:owner/:name", h.DeleteCollection)

	// Image endpoints
	router.POST("/collections/:owner/:name/images", h.UploadImages)
	router.GET("/collections/:owner/:name/images", h.ListImages)
	router.GET("/images/:id", h.GetImage)
	router.DELETE("/images/:id", h.DeleteImage)
	router.PATCH("/images/:id/order", h.UpdateImageOrder)
	router.GET("/images/:id/faces/cached", h.GetCachedFaces)
	router.GET("/faces/:id", h.GetFace)
	router.GET("/faces/:id/image", h.GetFaceImage)

	// Query endpoints
	router.POST("/collections/:owner/:name/search", h.SearchFaces)
	router.POST("/collections/:owner/:name/clusters", h.ClusterFaces)

	// Reprocessing endpoints
	router.POST("/images/:id/reprocess", h.ReprocessImage)
	router.POST("/collections/:owner/:name/reprocess", h.ReprocessCollection)

	// System endpoints
	router.GET("/health", h.GetHealth)
	router.GET("/status", h.GetStatus)
}

// collectionFromPath resolves the :owner/:name pair of the route. It writes
// the error response itself and returns nil when the collection is unknown.
func (h *APIHandler) collectionFromPath(c *gin.Context) *models.Collection {
	owner := c.Param("owner")
	name := c.Param("name")

	collection, err := h.repo.FindCollectionByNameOwner(name, owner)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to look up collection: %v", err)})
		return nil
	}
	if collection == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Collection not found"})
		return nil
	}
	return collection
}

type createCollectionRequest struct {
	Name        string `json:"name" binding:"required"`
	Owner       string `json:"owner" binding:"required"`
	Description string `json:"description"`
}

// CreateCollection creates a new collection.
func (h *APIHandler) CreateCollection(c *gin.Context) {
	var req createCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid collection data: %v", err)})
		return
	}

	existing, err := h.repo.FindCollectionByNameOwner(req.Name, req.Owner)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to look up collection: %v", err)})
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Collection with this name and owner already exists"})
		return
	}

	collection := &models.Collection{
		Name:        req.Name,
		Owner:       req.Owner,
		Description: req.Description,
	}
	if err := h.repo.CreateCollection(collection); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create collection: %v", err)})
		return
	}

	c.JSON(http.StatusCreated, collection)
}

// GetCollection returns a single collection.
func (h *APIHandler) GetCollection(c *gin.Context) {
	collection := h.collectionFromPath(c)
	if collection == nil {
		return
	}
	c.JSON(http.StatusOK, collection)
}

// DeleteCollection removes a collection with all its images and faces.
func (h *APIHandler) DeleteCollection(c *gin.Context) {
	collection := h.collectionFromPath(c)
	if collection == nil {
		return
	}

	images, _, err := h.repo.ListImages(collection.ID, "", -1, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to list collection images: %v", err)})
		return
	}

	if err := h.repo.DeleteCollection(collection.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to delete collection: %v", err)})
		return
	}

	for _, image := range images {
		h.removeImageFiles(&image)
		h.resultCache.Invalidate(image.ID)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Collection deleted successfully"})
}

type uploadFileResult struct {
	Filename string `json:"filename"`
	ImageID  string `json:"image_id,omitempty"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// UploadImages ingests one or more uploaded files into a collection. Each
// file is fingerprinted; duplicates report the existing record. Accepted
// files are processed in the background.
func (h *APIHandler) UploadImages(c *gin.Context) {
	collection := h.collectionFromPath(c)
	if collection == nil {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files uploaded or invalid form data"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files uploaded"})
		return
	}

	results := make([]uploadFileResult, 0, len(files))
	for _, fileHeader := range files {
		result := uploadFileResult{Filename: fileHeader.Filename}

		file, err := fileHeader.Open()
		if err != nil {
			result.Status = "error"
			result.Error = fmt.Sprintf("could not open upload: %v", err)
			results = append(results, result)
			continue
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			result.Status = "error"
			result.Error = fmt.Sprintf("could not read upload: %v", err)
			results = append(results, result)
			continue
		}

		ingest, err := h.processor.IngestImage(c.Request.Context(), collection, fileHeader.Filename, data, nil)
		if err != nil {
			log.Errorf("Ingest of %s failed: %v", fileHeader.Filename, err)
			result.Status = "error"
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		result.ImageID = ingest.Image.ID
		if ingest.Created {
			result.Status = "accepted"
			h.pool.Enqueue(ingest.Image)
		} else {
			result.Status = "duplicate"
		}
		results = append(results, result)
	}

	c.JSON(http.StatusAccepted, gin.H{
		"collection_id": collection.ID,
		"files":         results,
	})
}

// ListImages returns images of a collection with pagination and an
// optional status filter.
func (h *APIHandler) ListImages(c *gin.Context) {
	collection := h.collectionFromPath(c)
	if collection == nil {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}
	status := c.Query("status")

	images, total, err := h.repo.ListImages(collection.ID, status, pageSize, (page-1)*pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to fetch images: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"images": images,
		"pagination": gin.H{
			"page":      page,
			"page_size": pageSize,
			"total":     total,
		},
	})
}

// GetImage returns a single image with its faces.
func (h *APIHandler) GetImage(c *gin.Context) {
	image, err := h.repo.GetImageWithFaces(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to fetch image: %v", err)})
		return
	}
	if image == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
		return
	}

	c.JSON(http.StatusOK, image)
}

// DeleteImage removes an image, its faces and its stored files.
func (h *APIHandler) DeleteImage(c *gin.Context) {
	image, err := h.repo.GetImageByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to fetch image: %v", err)})
		return
	}
	if image == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
		return
	}

	if err := h.repo.DeleteImage(image.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to delete image: %v", err)})
		return
	}

	h.removeImageFiles(image)
	h.resultCache.Invalidate(image.ID)

	c.JSON(http.StatusOK, gin.H{"message": "Image deleted successfully"})
}

type updateOrderRequest struct {
	OrderNumber *int `json:"order_number" binding:"required"`
}

// UpdateImageOrder sets the manual gallery position of an image.
func (h *APIHandler) UpdateImageOrder(c *gin.Context) {
	var req updateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid order data: %v", err)})
		return
	}

	image, err := h.repo.GetImageByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to fetch image: %v", err)})
		return
	}
	if image == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
		return
	}

	if err := h.repo.UpdateImageOrder(image.ID, *req.OrderNumber); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to update order: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Order updated successfully"})
}

// GetFace returns a face together with the image record it was detected
// in.
func (h *APIHandler) GetFace(c *gin.Context) {
	face, err := h.repo.GetFaceByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to fetch face: %v", err)})
		return
	}
	if face == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Face not found"})
		return
	}

	image, err := h.repo.GetImageByID(face.ImageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to fetch image: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"face":  face,
		"image": image,
	})
}

// GetFaceImage serves the image a face was detected in, preferring the
// compressed rendition.
func (h *APIHandler) GetFaceImage(c *gin.Context) {
	face, err := h.repo.GetFaceByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to fetch face: %v", err)})
		return
	}
	if face == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Face not found"})
		return
	}

	image, err := h.repo.GetImageByID(face.ImageID)
	if err != nil || image == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
		return
	}

	path := image.CompressedPath
	if path == "" {
		path = image.StoragePath
	}
	if path == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Image file not available"})
		return
	}
	c.File(path)
}

func (h *APIHandler) removeImageFiles(image *models.Image) {
	if err := h.store.Remove(image.StoragePath); err != nil {
		log.Warnf("Failed to remove image file %s: %v", image.StoragePath, err)
	}
	if err := h.store.Remove(image.CompressedPath); err != nil {
		log.Warnf("Failed to remove compressed file %s: %v", image.CompressedPath, err)
	}
}
