package cache

import (
	"testing"
	"time"

	"face-search-go/internal/core/extractor"
)

func TestResultCacheRoundTrip(t *testing.T) {
	c := NewResultCache(time.Minute)

	faces := []extractor.Face{
		{Index: 0, Confidence: 0.9, QualityScore: 0.7},
		{Index: 2, Confidence: 0.8, QualityScore: 0.5},
	}
	c.SetFaces("img-1", faces)

	got, ok := c.GetFaces("img-1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 2 || got[0].Index != 0 || got[1].Index != 2 {
		t.Errorf("unexpected cached faces: %+v", got)
	}
}

func TestResultCacheMiss(t *testing.T) {
	c := NewResultCache(time.Minute)

	if _, ok := c.GetFaces("missing"); ok {
		t.Error("expected cache miss for unknown image")
	}
}

func TestResultCacheInvalidate(t *testing.T) {
	c := NewResultCache(time.Minute)

	c.SetFaces("img-1", []extractor.Face{{Index: 0}})
	c.Invalidate("img-1")

	if _, ok := c.GetFaces("img-1"); ok {
		t.Error("expected entry to be gone after invalidation")
	}
}

func TestResultCacheExpiry(t *testing.T) {
	c := NewResultCache(10 * time.Millisecond)

	c.SetFaces("img-1", []extractor.Face{{Index: 0}})
	time.Sleep(30 * time.Millisecond)

	if _, ok := c.GetFaces("img-1"); ok {
		t.Error("expected entry to expire")
	}
}

func TestResultCacheEmptyResult(t *testing.T) {
	c := NewResultCache(time.Minute)

	// An image with zero faces is still a valid cached result.
	c.SetFaces("img-1", []extractor.Face{})

	got, ok := c.GetFaces("img-1")
	if !ok {
		t.Fatal("expected cache hit for empty face set")
	}
	if len(got) != 0 {
		t.Errorf("expected empty face set, got %+v", got)
	}
}
