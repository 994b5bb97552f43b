package service

import (
	"context"
	"fmt"
	"html"
	"sync"
	"time"

	"tgcord/internal/constants"
	"tgcord/internal/models"
	"tgcord/internal/tracing"
	"tgcord/pkg/discord"
	"tgcord/pkg/userclient"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// MessageReader re-reads source messages through the user session
type MessageReader interface {
	GetMessage(ctx context.Context, chatID, messageID int64) (*userclient.Message, error)
}

// AccessChecker reports whether the user session can read a chat
type AccessChecker interface {
	HasAccess(chatID int64) bool
}

// Composer renders source HTML the way the relay posted it and serializes
// work on one source message with the relay's own handling
type Composer interface {
	Compose(html string, author *models.Author) (body, content string)
	Lock(key models.MessageKey) (unlock func())
}

// ReconcileStats summarizes one pass
type ReconcileStats struct {
	Checked int
	Edited  int
	Deleted int
	Skipped int
}

// Reconciler periodically re-reads recently relayed messages and applies any
// edit or deletion the live paths missed.
type Reconciler struct {
	reader   MessageReader
	access   AccessChecker
	composer Composer
	mirror   *mirror
	chatID   int64
	interval time.Duration
	limit    int
	logger   *logrus.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

func NewReconciler(store MappingStore, delivery discord.Client, reader MessageReader, access AccessChecker,
	composer Composer, cfg models.ReconcileConfig, sourceChatID int64, logger *logrus.Logger) *Reconciler {
	logger = defaultLogger(logger)
	return &Reconciler{
		reader:   reader,
		access:   access,
		composer: composer,
		mirror:   &mirror{store: store, delivery: delivery, logger: logger},
		chatID:   sourceChatID,
		interval: ClampReconcileInterval(cfg.IntervalSec),
		limit:    reconcileLimit(cfg.Limit),
		logger:   logger,
	}
}

// ClampReconcileInterval bounds the tick to 10..180 seconds, 10 by default.
func ClampReconcileInterval(sec int) time.Duration {
	if sec <= 0 {
		sec = constants.DefaultReconcileIntervalSec
	}
	sec = max(sec, constants.MinReconcileIntervalSec)
	sec = min(sec, constants.MaxReconcileIntervalSec)
	return time.Duration(sec) * time.Second
}

func reconcileLimit(limit int) int {
	if limit <= 0 {
		return constants.DefaultReconcileLimit
	}
	return limit
}

// Start launches the background loop
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("reconciler is already running")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	r.running = true

	r.wg.Add(1)
	go r.loop()

	r.logger.WithFields(logrus.Fields{
		"interval": r.interval.String(),
		"limit":    r.limit,
	}).Info("Reconciler started")
	return nil
}

// Stop gracefully stops the loop
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	r.cancel()
	r.wg.Wait()
	r.running = false
	r.logger.Info("Reconciler stopped")
}

// IsRunning returns whether the loop is active
func (r *Reconciler) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *Reconciler) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReconcileOnce(r.ctx); err != nil {
				r.logger.WithError(err).Warn("Reconcile pass failed")
			}
		}
	}
}

// ReconcileOnce checks the most recent mappings once. Without read access
// the pass is skipped; it never triggers a join. Errors on one entry are
// logged and do not stop the pass.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats

	if !r.access.HasAccess(r.chatID) {
		r.logger.Debug("Skipping reconcile: user session has no access to the source chat")
		return stats, nil
	}

	ctx, span := tracing.StartSpan(ctx, "reconcile.tick")
	defer span.End()

	recent, err := r.mirror.store.RecentMappings(ctx, r.chatID, r.limit)
	if err != nil {
		return stats, fmt.Errorf("failed to load recent mappings: %w", err)
	}

	for _, m := range recent {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++
		r.reconcileEntry(ctx, m, &stats)
	}

	span.SetAttributes(
		attribute.Int("reconcile.checked", stats.Checked),
		attribute.Int("reconcile.edited", stats.Edited),
		attribute.Int("reconcile.deleted", stats.Deleted),
	)
	if stats.Edited > 0 || stats.Deleted > 0 {
		r.logger.WithFields(logrus.Fields{
			LogFieldCount: stats.Checked,
			"edited":      stats.Edited,
			"deleted":     stats.Deleted,
		}).Info("Reconcile pass applied changes")
	}
	return stats, nil
}

func (r *Reconciler) reconcileEntry(ctx context.Context, m *models.MessageMapping, stats *ReconcileStats) {
	unlock := r.composer.Lock(m.Key())
	defer unlock()

	logger := r.logger.WithFields(logrus.Fields{
		LogFieldMessageID:     m.SourceMessageID,
		LogFieldDestMessageID: m.DestinationMessageID,
	})

	msg, err := r.reader.GetMessage(ctx, m.SourceChatID, m.SourceMessageID)
	switch {
	case userclient.IsNotFound(err):
		if err := r.mirror.syncDelete(ctx, m); err != nil {
			logger.WithError(err).Warn("Failed to mirror source deletion")
			stats.Skipped++
			return
		}
		stats.Deleted++
	case err != nil:
		logger.WithError(err).Debug("Skipping entry: source message unreadable this tick")
		stats.Skipped++
	default:
		result, err := applySourceMessage(ctx, r.mirror, r.composer, m, msg)
		if err != nil {
			logger.WithError(err).Warn("Failed to mirror source edit")
			stats.Skipped++
			return
		}
		if result == SyncEdited {
			stats.Edited++
		}
	}
}

// applySourceMessage compares a freshly read source message against the
// stored mapping and edits the destination copy when it drifted.
func applySourceMessage(ctx context.Context, mr *mirror, composer Composer, m *models.MessageMapping, msg *userclient.Message) (SyncResult, error) {
	return mr.syncEdit(ctx, m, composeSourceMessage(composer, msg), msg.Timestamp())
}

func composeSourceMessage(composer Composer, msg *userclient.Message) string {
	var author *models.Author
	if msg.Author != nil {
		author = &models.Author{Name: msg.Author.Name, Username: msg.Author.Username}
	}
	src := msg.HTML
	if src == "" {
		src = html.EscapeString(msg.Text)
	}
	_, content := composer.Compose(src, author)
	return content
}
