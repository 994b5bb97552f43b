package service

import (
	"context"
	"time"

	"tgcord/internal/constants"
	"tgcord/internal/metrics"

	"github.com/sirupsen/logrus"
)

// TempCleaner removes stale files from the media work directory
type TempCleaner interface {
	CleanupOldFiles(maxAge time.Duration) (int, error)
}

// Scheduler runs the media work-dir janitor. Acquisition removes its own
// files, so this only catches leftovers from crashes and killed encodes.
type Scheduler struct {
	cleaner  TempCleaner
	maxAge   time.Duration
	interval time.Duration
	logger   *logrus.Logger
	stopCh   chan struct{}
}

func NewScheduler(cleaner TempCleaner, maxAgeHours int, interval time.Duration, logger *logrus.Logger) *Scheduler {
	if maxAgeHours <= 0 {
		maxAgeHours = constants.DefaultMediaMaxAgeHours
	}
	if interval <= 0 {
		interval = constants.DefaultMediaCleanupIntervalHr * time.Hour
	}
	return &Scheduler{
		cleaner:  cleaner,
		maxAge:   time.Duration(maxAgeHours) * time.Hour,
		interval: interval,
		logger:   defaultLogger(logger),
		stopCh:   make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Starting media cleanup scheduler")

	s.runCleanup()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) runCleanup() {
	removed, err := s.cleaner.CleanupOldFiles(s.maxAge)
	if err != nil {
		s.logger.WithError(err).Error("Failed to clean up media work directory")
		return
	}
	if removed > 0 {
		metrics.AddToCounter("media_files_cleaned_total", float64(removed), nil, "Stale media files removed from the work directory")
		s.logger.WithFields(logrus.Fields{
			LogFieldCount: removed,
			"max_age":     s.maxAge.String(),
		}).Info("Removed stale media files")
	}
}
