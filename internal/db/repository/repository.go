package repository

import (
	"errors"
	"strings"

	"face-search-go/internal/core/models"

	"gorm.io/gorm"
)

// ErrDuplicateFingerprint is returned when an image insert collides with
// the unique fingerprint index. The storage constraint is the dedup
// authority; callers resolve the existing record instead of retrying.
var ErrDuplicateFingerprint = errors.New("image with this fingerprint already exists")

// Repository defines the persistence operations of the face pipeline.
type Repository interface {
	// Collection methods
	CreateCollection(collection *models.Collection) error
	GetCollectionByID(id string) (*models.Collection, error)
	FindCollectionByNameOwner(name, owner string) (*models.Collection, error)
	DeleteCollection(id string) error

	// Image methods
	CreateImage(image *models.Image) error
	GetImageByID(id string) (*models.Image, error)
	GetImageWithFaces(id string) (*models.Image, error)
	FindImageByFingerprint(fingerprint string) (*models.Image, error)
	ListImages(collectionID, status string, limit, offset int) ([]models.Image, int64, error)
	ListNonCompletedImages(collectionID string) ([]models.Image, error)
	UpdateImageOrder(id string, orderNumber int) error
	DeleteImage(id string) error

	// Lifecycle methods
	TransitionImageStatus(id string, from []string, to string) (bool, error)
	MarkImageFailed(id string) error
	CompleteImageFaces(imageID string, faces []models.Face) error

	// Face methods
	GetFaceByID(id string) (*models.Face, error)
	ListFacesByImageID(imageID string) ([]models.Face, error)
	ListCompletedFaces(collectionID string) ([]models.Face, error)

	// Statistics
	GetStatistics() (models.Statistics, error)
}

// GormRepository implements Repository on top of GORM/SQLite.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new repository instance.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Collection methods

// CreateCollection persists a new collection.
func (r *GormRepository) CreateCollection(collection *models.Collection) error {
	return r.db.Create(collection).Error
}

// GetCollectionByID fetches a collection by its ID, nil when not found.
func (r *GormRepository) GetCollectionByID(id string) (*models.Collection, error) {
	var collection models.Collection
	result := r.db.First(&collection, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &collection, nil
}

// FindCollectionByNameOwner looks a collection up by its external
// identity pair, nil when not found.
func (r *GormRepository) FindCollectionByNameOwner(name, owner string) (*models.Collection, error) {
	var collection models.Collection
	result := r.db.Where("name = ? AND owner = ?", name, owner).First(&collection)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &collection, nil
}

// DeleteCollection removes a collection together with its images and faces.
func (r *GormRepository) DeleteCollection(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection_id = ?", id).Delete(&models.Face{}).Error; err != nil {
			return err
		}
		if err := tx.Where("collection_id = ?", id).Delete(&models.Image{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Collection{}, "id = ?", id).Error
	})
}

// Image methods

// CreateImage persists a new image record. A collision on the unique
// fingerprint index is reported as ErrDuplicateFingerprint.
func (r *GormRepository) CreateImage(image *models.Image) error {
	if err := r.db.Create(image).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateFingerprint
		}
		return err
	}
	return nil
}

// GetImageByID fetches an image by its ID, nil when not found.
func (r *GormRepository) GetImageByID(id string) (*models.Image, error) {
	var image models.Image
	result := r.db.First(&image, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &image, nil
}

// GetImageWithFaces fetches an image with its faces preloaded.
func (r *GormRepository) GetImageWithFaces(id string) (*models.Image, error) {
	var image models.Image
	result := r.db.Preload("Faces", func(db *gorm.DB) *gorm.DB {
		return db.Order("face_index ASC")
	}).First(&image, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &image, nil
}

// FindImageByFingerprint fetches an image by its content fingerprint,
// nil when not found.
func (r *GormRepository) FindImageByFingerprint(fingerprint string) (*models.Image, error) {
	var image models.Image
	result := r.db.Where("fingerprint = ?", fingerprint).First(&image)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &image, nil
}

// ListImages returns images of a collection with pagination and an
// optional status filter, ordered by manual order number (nulls last)
// and upload time.
func (r *GormRepository) ListImages(collectionID, status string, limit, offset int) ([]models.Image, int64, error) {
	query := r.db.Model(&models.Image{}).Where("collection_id = ?", collectionID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var images []models.Image
	result := query.
		Preload("Faces", func(db *gorm.DB) *gorm.DB {
			return db.Order("face_index ASC")
		}).
		Order("order_number IS NULL, order_number ASC, created_at ASC").
		Limit(limit).Offset(offset).
		Find(&images)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return images, total, nil
}

// ListNonCompletedImages returns all images of a collection that are not
// in the completed state, for bulk reprocessing.
func (r *GormRepository) ListNonCompletedImages(collectionID string) ([]models.Image, error) {
	var images []models.Image
	result := r.db.
		Where("collection_id = ? AND status != ?", collectionID, models.StatusCompleted).
		Order("created_at ASC").
		Find(&images)
	if result.Error != nil {
		return nil, result.Error
	}
	return images, nil
}

// UpdateImageOrder sets the manual gallery order number.
func (r *GormRepository) UpdateImageOrder(id string, orderNumber int) error {
	return r.db.Model(&models.Image{}).Where("id = ?", id).
		Update("order_number", orderNumber).Error
}

// DeleteImage removes an image together with its faces.
func (r *GormRepository) DeleteImage(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("image_id = ?", id).Delete(&models.Face{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Image{}, "id = ?", id).Error
	})
}

// Lifecycle methods

// TransitionImageStatus moves an image into the target state only if it
// currently is in one of the given states. Returns false when another
// worker owns the record or the state changed concurrently.
func (r *GormRepository) TransitionImageStatus(id string, from []string, to string) (bool, error) {
	result := r.db.Model(&models.Image{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkImageFailed moves an image into the failed state regardless of its
// current state.
func (r *GormRepository) MarkImageFailed(id string) error {
	return r.db.Model(&models.Image{}).Where("id = ?", id).
		Update("status", models.StatusFailed).Error
}

// CompleteImageFaces atomically replaces the faces of an image, sets the
// face count and transitions the record from processing to completed.
// Stale faces from a previous failed attempt are cleared in the same
// transaction, so partial writes never coexist with fresh results. The
// conditional transition fails the commit when ownership of the record
// was lost to a concurrent worker.
func (r *GormRepository) CompleteImageFaces(imageID string, faces []models.Face) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("image_id = ?", imageID).Delete(&models.Face{}).Error; err != nil {
			return err
		}
		if len(faces) > 0 {
			if err := tx.Create(&faces).Error; err != nil {
				return err
			}
		}
		result := tx.Model(&models.Image{}).
			Where("id = ? AND status = ?", imageID, models.StatusProcessing).
			Updates(map[string]interface{}{
				"status":     models.StatusCompleted,
				"face_count": len(faces),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errors.New("image is no longer in processing state")
		}
		return nil
	})
}

// Face methods

// GetFaceByID fetches a face by its ID, nil when not found.
func (r *GormRepository) GetFaceByID(id string) (*models.Face, error) {
	var face models.Face
	result := r.db.First(&face, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &face, nil
}

// ListFacesByImageID returns all faces of one image in index order.
func (r *GormRepository) ListFacesByImageID(imageID string) ([]models.Face, error) {
	var faces []models.Face
	result := r.db.Where("image_id = ?", imageID).Order("face_index ASC").Find(&faces)
	if result.Error != nil {
		return nil, result.Error
	}
	return faces, nil
}

// ListCompletedFaces returns every face of a collection whose owning
// image is completed, in a fixed scan order (creation time, then ID).
// Faces of in-flight or failed images never appear here.
func (r *GormRepository) ListCompletedFaces(collectionID string) ([]models.Face, error) {
	var faces []models.Face
	result := r.db.
		Joins("JOIN images ON images.id = faces.image_id").
		Where("faces.collection_id = ? AND images.status = ?", collectionID, models.StatusCompleted).
		Order("faces.created_at ASC, faces.id ASC").
		Find(&faces)
	if result.Error != nil {
		return nil, result.Error
	}
	return faces, nil
}

// GetStatistics summarizes stored images and faces.
func (r *GormRepository) GetStatistics() (models.Statistics, error) {
	var stats models.Statistics

	if err := r.db.Model(&models.Collection{}).Count(&stats.TotalCollections).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.Image{}).Count(&stats.TotalImages).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.Image{}).Where("status = ?", models.StatusCompleted).
		Count(&stats.CompletedImages).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.Image{}).Where("status = ?", models.StatusFailed).
		Count(&stats.FailedImages).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.Face{}).Count(&stats.TotalFaces).Error; err != nil {
		return stats, err
	}

	var latest models.Image
	if err := r.db.Order("created_at DESC").First(&latest).Error; err == nil {
		stats.LatestImage = latest.CreatedAt
	}

	return stats, nil
}

// isUniqueViolation reports whether the error is a unique constraint
// violation, either translated by GORM or raw from the SQLite driver.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
