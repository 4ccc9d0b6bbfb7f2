// Package processor drives images through the ingestion lifecycle:
// pending -> processing -> completed or failed.
package processor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"face-search-go/config"
	"face-search-go/internal/cache"
	"face-search-go/internal/core/extractor"
	"face-search-go/internal/core/models"
	"face-search-go/internal/db/repository"
	"face-search-go/internal/fingerprint"
	"face-search-go/internal/integrations/mqtt"
	"face-search-go/internal/media"
	"face-search-go/internal/storage"
)

// ErrImageNotFound is returned when a reprocess request names an unknown image.
var ErrImageNotFound = errors.New("image not found")

// Extractor produces scored face candidates from raw image bytes.
type Extractor interface {
	Extract(ctx context.Context, imageData []byte) ([]extractor.Face, error)
}

// IngestResult reports the outcome of an upload. Created is false when the
// content was already known and the existing record is returned instead.
type IngestResult struct {
	Image   *models.Image
	Created bool
}

// ImageProcessor owns ingestion and reprocessing of images.
type ImageProcessor struct {
	repo      repository.Repository
	store     storage.Store
	extractor Extractor
	cache     *cache.ResultCache
	publisher *mqtt.Publisher
	cfg       config.ProcessingConfig
}

func NewImageProcessor(repo repository.Repository, store storage.Store, ext Extractor,
	resultCache *cache.ResultCache, publisher *mqtt.Publisher, cfg config.ProcessingConfig) *ImageProcessor {
	return &ImageProcessor{
		repo:      repo,
		store:     store,
		extractor: ext,
		cache:     resultCache,
		publisher: publisher,
		cfg:       cfg,
	}
}

// IngestImage registers uploaded content in a collection. Identical content
// (by fingerprint) short-circuits to the existing record without touching
// storage. The returned image is in the pending state; callers hand it to
// the worker pool for processing.
func (p *ImageProcessor) IngestImage(ctx context.Context, collection *models.Collection,
	filename string, data []byte, orderNumber *int) (*IngestResult, error) {

	fp := fingerprint.Compute(data)

	existing, err := p.repo.FindImageByFingerprint(fp)
	if err != nil {
		return nil, fmt.Errorf("fingerprint lookup: %w", err)
	}
	if existing != nil {
		log.WithFields(log.Fields{
			"image_id":    existing.ID,
			"fingerprint": fp,
		}).Debug("Duplicate content, returning existing image")
		return &IngestResult{Image: existing, Created: false}, nil
	}

	image := &models.Image{
		CollectionID: collection.ID,
		Filename:     filepath.Base(filename),
		Fingerprint:  fp,
		Status:       models.StatusPending,
		OrderNumber:  orderNumber,
	}
	// The ID doubles as the storage filename stem, so assign it before
	// the record exists.
	image.ID = uuid.NewString()

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".jpg"
	}

	storagePath, err := p.store.Save(collection.ID, image.ID+ext, data)
	if err != nil {
		return nil, fmt.Errorf("storing original: %w", err)
	}
	image.StoragePath = storagePath

	// A failed rendition never blocks ingestion; extraction decides
	// whether the bytes are usable.
	if compressed, err := media.Compress(data, p.cfg.CompressedMaxSize, p.cfg.CompressedQuality); err != nil {
		log.WithField("image_id", image.ID).Warnf("Could not create compressed rendition: %v", err)
	} else {
		compressedPath, err := p.store.Save(collection.ID, image.ID+"_compressed.jpg", compressed)
		if err != nil {
			return nil, fmt.Errorf("storing compressed rendition: %w", err)
		}
		image.CompressedPath = compressedPath
	}

	if err := p.repo.CreateImage(image); err != nil {
		if errors.Is(err, repository.ErrDuplicateFingerprint) {
			// Lost the race against a concurrent upload of the same
			// content. The constraint is the authority; drop our copy
			// and return the winner.
			p.cleanupStoredFiles(image)
			winner, lookupErr := p.repo.FindImageByFingerprint(fp)
			if lookupErr != nil {
				return nil, fmt.Errorf("resolving duplicate: %w", lookupErr)
			}
			if winner == nil {
				return nil, fmt.Errorf("duplicate fingerprint %s but no record found", fp)
			}
			return &IngestResult{Image: winner, Created: false}, nil
		}
		p.cleanupStoredFiles(image)
		return nil, fmt.Errorf("creating image record: %w", err)
	}

	log.WithFields(log.Fields{
		"image_id":      image.ID,
		"collection_id": collection.ID,
		"filename":      image.Filename,
	}).Info("Image ingested")

	return &IngestResult{Image: image, Created: true}, nil
}

// Process runs extraction for one image. Only pending and failed images are
// picked up; anything else (in-flight elsewhere, already completed) is left
// alone, reported by the claimed return. A detection failure moves the
// image to failed without persisting any faces.
func (p *ImageProcessor) Process(ctx context.Context, image *models.Image) (bool, error) {
	ok, err := p.repo.TransitionImageStatus(image.ID,
		[]string{models.StatusPending, models.StatusFailed}, models.StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("claiming image %s: %w", image.ID, err)
	}
	if !ok {
		log.WithField("image_id", image.ID).Debug("Image not claimable, skipping")
		return false, nil
	}

	data, err := p.store.Load(ctx, image.StoragePath)
	if err != nil {
		return true, p.fail(image, fmt.Errorf("loading image bytes: %w", err))
	}

	faces, err := p.extractor.Extract(ctx, data)
	if err != nil {
		return true, p.fail(image, fmt.Errorf("extraction: %w", err))
	}

	records := make([]models.Face, 0, len(faces))
	for _, f := range faces {
		record := models.Face{
			ImageID:      image.ID,
			CollectionID: image.CollectionID,
			FaceIndex:    f.Index,
			Confidence:   f.Confidence,
			QualityScore: f.QualityScore,
		}
		if err := record.SetEmbedding(f.Embedding); err != nil {
			return true, p.fail(image, fmt.Errorf("encoding embedding: %w", err))
		}
		if err := record.SetBBox(f.BBox); err != nil {
			return true, p.fail(image, fmt.Errorf("encoding bbox: %w", err))
		}
		if err := record.SetLandmarks(f.Landmarks); err != nil {
			return true, p.fail(image, fmt.Errorf("encoding landmarks: %w", err))
		}
		records = append(records, record)
	}

	if err := p.repo.CompleteImageFaces(image.ID, records); err != nil {
		return true, p.fail(image, fmt.Errorf("persisting faces: %w", err))
	}

	p.cache.SetFaces(image.ID, faces)

	log.WithFields(log.Fields{
		"image_id":   image.ID,
		"face_count": len(faces),
	}).Info("Image processing completed")

	p.publisher.PublishImageEvent(mqtt.ImageEvent{
		ImageID:      image.ID,
		CollectionID: image.CollectionID,
		Filename:     image.Filename,
		Status:       models.StatusCompleted,
		FaceCount:    len(faces),
	})

	return true, nil
}

func (p *ImageProcessor) fail(image *models.Image, cause error) error {
	log.WithField("image_id", image.ID).Errorf("Image processing failed: %v", cause)

	if err := p.repo.MarkImageFailed(image.ID); err != nil {
		log.WithField("image_id", image.ID).Errorf("Could not mark image failed: %v", err)
	}

	p.publisher.PublishImageEvent(mqtt.ImageEvent{
		ImageID:      image.ID,
		CollectionID: image.CollectionID,
		Filename:     image.Filename,
		Status:       models.StatusFailed,
		Error:        cause.Error(),
	})

	return cause
}

// Reprocess retries extraction for a single image. Completed images and
// images claimed by another worker are left untouched and reported as
// not reprocessed.
func (p *ImageProcessor) Reprocess(ctx context.Context, imageID string) (bool, error) {
	image, err := p.repo.GetImageByID(imageID)
	if err != nil {
		return false, err
	}
	if image == nil {
		return false, ErrImageNotFound
	}
	if image.Status == models.StatusCompleted {
		log.WithField("image_id", imageID).Debug("Image already completed, reprocess is a no-op")
		return false, nil
	}

	return p.Process(ctx, image)
}

// ReprocessNonCompleted retries every image of a collection that has not
// reached the completed state. Returns the number of images attempted.
func (p *ImageProcessor) ReprocessNonCompleted(ctx context.Context, collectionID string) (int, error) {
	images, err := p.repo.ListNonCompletedImages(collectionID)
	if err != nil {
		return 0, err
	}

	for i := range images {
		if _, err := p.Process(ctx, &images[i]); err != nil {
			log.WithField("image_id", images[i].ID).Warnf("Reprocess attempt failed: %v", err)
		}
	}
	return len(images), nil
}

func (p *ImageProcessor) cleanupStoredFiles(image *models.Image) {
	if err := p.store.Remove(image.StoragePath); err != nil {
		log.Warnf("Could not remove stored file: %v", err)
	}
	if err := p.store.Remove(image.CompressedPath); err != nil {
		log.Warnf("Could not remove compressed file: %v", err)
	}
}
