package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"face-search-go/internal/core/extractor"
	"face-search-go/internal/core/processor"
	"face-search-go/internal/core/search"
)

// SearchFaces answers a point similarity query: the best face of the
// uploaded image against all completed faces of the collection.
func (h *APIHandler) SearchFaces(c *gin.Context) {
	collection := h.collectionFromPath(c)
	if collection == nil {
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded or invalid form data"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to read image data: %v", err)})
		return
	}

	threshold := h.cfg.Search.Threshold
	if raw := c.PostForm("threshold"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < -1 || parsed > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid threshold, must be a number in [-1, 1]"})
			return
		}
		threshold = parsed
	}

	maxResults := h.cfg.Search.MaxResults
	if raw := c.PostForm("max_results"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid max_results, must be a positive integer"})
			return
		}
		maxResults = parsed
	}

	results, err := h.search.QueryByImage(c.Request.Context(), collection.ID, data, threshold, maxResults)
	if err != nil {
		if errors.Is(err, search.ErrNoFacesInQuery) || errors.Is(err, extractor.ErrDecodeFailure) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No usable face in query image"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Search failed: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"collection_id": collection.ID,
		"threshold":     threshold,
		"max_results":   maxResults,
		"matches":       results,
	})
}

type clusterRequest struct {
	Eps            *float64 `json:"eps"`
	MinClusterSize *int     `json:"min_cluster_size"`
}

// ClusterFaces groups the completed faces of a collection into likely
// identities.
func (h *APIHandler) ClusterFaces(c *gin.Context) {
	collection := h.collectionFromPath(c)
	if collection == nil {
		return
	}

	var req clusterRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid clustering parameters: %v", err)})
			return
		}
	}

	eps := h.cfg.Clustering.Eps
	if req.Eps != nil {
		if *req.Eps <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid eps, must be positive"})
			return
		}
		eps = *req.Eps
	}

	minClusterSize := h.cfg.Clustering.MinClusterSize
	if req.MinClusterSize != nil {
		if *req.MinClusterSize < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid min_cluster_size, must be at least 1"})
			return
		}
		minClusterSize = *req.MinClusterSize
	}

	clusters, err := h.clustering.ClusterCollection(c.Request.Context(), collection.ID, eps, minClusterSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Clustering failed: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"collection_id":    collection.ID,
		"eps":              eps,
		"min_cluster_size": minClusterSize,
		"cluster_count":    len(clusters),
		"clusters":         clusters,
	})
}

// GetCachedFaces serves the cached extraction result of an image. A miss
// is reported distinctly so clients can fall back to the persisted faces.
func (h *APIHandler) GetCachedFaces(c *gin.Context) {
	imageID := c.Param("id")

	faces, ok := h.resultCache.GetFaces(imageID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"image_id": imageID,
			"cached":   false,
			"error":    "No cached result for this image",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"image_id": imageID,
		"cached":   true,
		"faces":    faces,
	})
}

// ReprocessImage retries extraction for a single image. Completed images
// are left untouched.
func (h *APIHandler) ReprocessImage(c *gin.Context) {
	reprocessed, err := h.processor.Reprocess(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, processor.ErrImageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Reprocessing failed: %v", err)})
		return
	}

	if !reprocessed {
		c.JSON(http.StatusOK, gin.H{"message": "Image not eligible for reprocessing", "reprocessed": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Image reprocessed successfully", "reprocessed": true})
}

// ReprocessCollection retries extraction for every non-completed image of
// a collection.
func (h *APIHandler) ReprocessCollection(c *gin.Context) {
	collection := h.collectionFromPath(c)
	if collection == nil {
		return
	}

	attempted, err := h.processor.ReprocessNonCompleted(c.Request.Context(), collection.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Reprocessing failed: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"collection_id": collection.ID,
		"attempted":     attempted,
	})
}
