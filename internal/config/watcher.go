package config

import (
	"context"
	"os"
	"reflect"
	"slices"
	"sync"
	"time"

	"tgcord/internal/constants"
	"tgcord/internal/models"

	"github.com/sirupsen/logrus"
)

// RouteApplier installs a reloaded routing table. Returning an error keeps
// the previous table.
type RouteApplier func(cfg *models.Config) error

// RouteWatcher polls the configuration file and hot-swaps the routing table.
// Routes and the default webhook are the only settings applied live; any
// other change is reported as needing a restart.
type RouteWatcher struct {
	path     string
	interval time.Duration
	apply    RouteApplier
	logger   *logrus.Logger

	mu      sync.Mutex
	current *models.Config
	modTime time.Time
	size    int64
}

// NewRouteWatcher starts from the configuration the process booted with.
func NewRouteWatcher(path string, initial *models.Config, apply RouteApplier, logger *logrus.Logger) *RouteWatcher {
	if logger == nil {
		logger = logrus.New()
	}
	w := &RouteWatcher{
		path:     path,
		interval: constants.DefaultConfigWatchIntervalSec * time.Second,
		apply:    apply,
		logger:   logger,
		current:  initial,
	}
	if stat, err := os.Stat(path); err == nil {
		w.modTime, w.size = stat.ModTime(), stat.Size()
	}
	return w
}

// WithInterval overrides the polling interval.
func (w *RouteWatcher) WithInterval(d time.Duration) *RouteWatcher {
	if d > 0 {
		w.interval = d
	}
	return w
}

// Run polls until ctx is cancelled.
func (w *RouteWatcher) Run(ctx context.Context) error {
	if _, err := os.Stat(w.path); err != nil {
		return err
	}
	w.logger.WithFields(logrus.Fields{
		"path":     w.path,
		"interval": w.interval.String(),
	}).Info("Route watcher started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Check(); err != nil {
				w.logger.WithError(err).Warn("Route reload failed, keeping previous table")
			}
		}
	}
}

// Check stats the file once and reloads it when it changed. It reports
// whether a new routing table was applied.
func (w *RouteWatcher) Check() (bool, error) {
	stat, err := os.Stat(w.path)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if stat.ModTime().Equal(w.modTime) && stat.Size() == w.size {
		return false, nil
	}
	// an unparseable edit is not retried until the file changes again
	w.modTime, w.size = stat.ModTime(), stat.Size()

	next, err := LoadConfig(w.path)
	if err != nil {
		return false, err
	}

	if w.current != nil && restartOnlyChanged(w.current, next) {
		w.logger.Warn("Configuration changed outside the routing table; restart to apply")
	}
	if w.current != nil && sameRoutes(w.current, next) {
		w.current = next
		return false, nil
	}

	if err := w.apply(next); err != nil {
		return false, err
	}
	w.logger.WithField("routes", len(next.Discord.Routes)).Info("Routing table reloaded")
	w.current = next
	return true, nil
}

// Current returns the last configuration whose routes were applied.
func (w *RouteWatcher) Current() *models.Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func sameRoutes(a, b *models.Config) bool {
	return a.Discord.DefaultWebhookURL == b.Discord.DefaultWebhookURL &&
		slices.Equal(a.Discord.Routes, b.Discord.Routes)
}

func restartOnlyChanged(a, b *models.Config) bool {
	x, y := *a, *b
	x.Discord.Routes, y.Discord.Routes = nil, nil
	x.Discord.DefaultWebhookURL, y.Discord.DefaultWebhookURL = "", ""
	return !reflect.DeepEqual(x, y)
}
