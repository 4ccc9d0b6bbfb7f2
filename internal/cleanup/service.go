// Package cleanup removes stored files whose image records no longer
// exist. Ingestion writes files before the database row, so a crash in
// between leaves orphans behind; deletions that fail to remove a file
// leave orphans too.
package cleanup

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"face-search-go/config"
	"face-search-go/internal/db/repository"
)

// Service periodically sweeps the data directory for orphaned files.
type Service struct {
	repo     repository.Repository
	dataDir  string
	interval time.Duration
	minAge   time.Duration
	stopChan chan struct{}
}

// NewService creates a cleanup service. Returns nil when the sweeper is
// disabled (interval_hours <= 0), which callers treat as a no-op.
func NewService(repo repository.Repository, dataDir string, cfg config.CleanupConfig) *Service {
	if cfg.IntervalHours <= 0 {
		log.Info("Orphaned-file cleanup disabled (interval_hours <= 0).")
		return nil
	}
	if dataDir == "" {
		log.Error("Cannot initialize cleanup service: data directory is empty")
		return nil
	}

	log.Infof("Initializing cleanup service: Interval=%dh, MinAge=%dm", cfg.IntervalHours, cfg.MinAgeMinutes)
	return &Service{
		repo:     repo,
		dataDir:  dataDir,
		interval: time.Duration(cfg.IntervalHours) * time.Hour,
		minAge:   time.Duration(cfg.MinAgeMinutes) * time.Minute,
		stopChan: make(chan struct{}),
	}
}

// StartBackgroundCleanup starts a goroutine that periodically runs a sweep.
func (s *Service) StartBackgroundCleanup() {
	if s == nil {
		return
	}
	log.Info("Starting background cleanup routine...")

	go func() {
		log.Info("Running initial cleanup sweep on startup...")
		s.RunCleanupCycle()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				log.Info("Running scheduled cleanup sweep...")
				s.RunCleanupCycle()
			case <-s.stopChan:
				log.Info("Stopping background cleanup routine.")
				return
			}
		}
	}()
}

// StopBackgroundCleanup signals the background routine to stop.
func (s *Service) StopBackgroundCleanup() {
	if s == nil || s.stopChan == nil {
		return
	}
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
}

// RunCleanupCycle performs one sweep over the data directory.
func (s *Service) RunCleanupCycle() {
	if s == nil {
		return
	}

	removed := 0
	cutoff := time.Now().Add(-s.minAge)

	err := filepath.Walk(s.dataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Warnf("Cleanup: error visiting %s: %v", path, err)
			return nil
		}
		if info.IsDir() {
			return nil
		}
		// In-flight ingests have written their files but may not have
		// committed the database row yet.
		if info.ModTime().After(cutoff) {
			return nil
		}

		imageID := imageIDFromFilename(info.Name())
		if imageID == "" {
			return nil
		}

		image, err := s.repo.GetImageByID(imageID)
		if err != nil {
			log.Warnf("Cleanup: lookup for %s failed: %v", imageID, err)
			return nil
		}
		if image != nil {
			return nil
		}

		if err := os.Remove(path); err != nil {
			log.Warnf("Cleanup: failed to remove orphaned file %s: %v", path, err)
			return nil
		}
		log.Debugf("Cleanup: removed orphaned file %s", path)
		removed++
		return nil
	})
	if err != nil {
		log.Errorf("Cleanup sweep failed: %v", err)
		return
	}

	if removed > 0 {
		log.Infof("Cleanup sweep finished, removed %d orphaned file(s)", removed)
	} else {
		log.Debug("Cleanup sweep finished, nothing to remove")
	}
}

// imageIDFromFilename recovers the image ID from a stored filename of the
// form <id><ext> or <id>_compressed.jpg.
func imageIDFromFilename(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return strings.TrimSuffix(stem, "_compressed")
}
