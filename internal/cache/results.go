package cache

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"face-search-go/internal/core/extractor"
)

// ResultCache keeps recently extracted face sets in memory so clients can
// fetch detection results without re-running the pipeline.
type ResultCache struct {
	store *gocache.Cache
}

// NewResultCache creates a cache whose entries expire after ttl.
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		store: gocache.New(ttl, ttl/2),
	}
}

func facesKey(imageID string) string {
	return fmt.Sprintf("faces:%s", imageID)
}

// SetFaces stores the extraction result for an image for the configured TTL.
func (c *ResultCache) SetFaces(imageID string, faces []extractor.Face) {
	c.store.SetDefault(facesKey(imageID), faces)
}

// GetFaces returns the cached extraction result for an image, if present.
func (c *ResultCache) GetFaces(imageID string) ([]extractor.Face, bool) {
	v, ok := c.store.Get(facesKey(imageID))
	if !ok {
		return nil, false
	}
	faces, ok := v.([]extractor.Face)
	return faces, ok
}

// Invalidate drops the cached result for an image, typically after deletion
// or reprocessing.
func (c *ResultCache) Invalidate(imageID string) {
	c.store.Delete(facesKey(imageID))
}
