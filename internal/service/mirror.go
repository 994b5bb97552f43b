package service

import (
	"context"
	"fmt"
	"strings"

	"tgcord/internal/metrics"
	"tgcord/internal/models"
	"tgcord/pkg/discord"

	"github.com/sirupsen/logrus"
)

// MappingStore persists the source to destination correlation
type MappingStore interface {
	UpsertMapping(ctx context.Context, m *models.MessageMapping) error
	GetMapping(ctx context.Context, chatID, messageID int64) (*models.MessageMapping, error)
	RecentMappings(ctx context.Context, chatID int64, limit int) ([]*models.MessageMapping, error)
	MarkDeleted(ctx context.Context, chatID, messageID int64) error
	UpdateEdit(ctx context.Context, chatID, messageID, timestamp int64, snapshot string) error
}

// SyncResult reports what an edit sync did
type SyncResult int

const (
	SyncUnchanged SyncResult = iota
	SyncTimestampOnly
	SyncEdited
	// SyncStale means the change predates what the destination already shows
	SyncStale
)

// mirror applies source edits and deletes to an existing destination copy.
// The relay, the reconciler and the live event handler share it so the
// store sees the same transitions whichever path noticed the change.
type mirror struct {
	store    MappingStore
	delivery discord.Client
	logger   *logrus.Logger
}

// syncEventEdit applies an edit notification. Notifications can arrive out
// of order, so one older than the stored edit is dropped.
func (m *mirror) syncEventEdit(ctx context.Context, mapping *models.MessageMapping, content string, timestamp int64) (SyncResult, error) {
	if timestamp < mapping.LastEditTimestamp {
		m.logger.WithFields(logrus.Fields{
			LogFieldMessageID: mapping.SourceMessageID,
			"event_ts":        timestamp,
			"stored_ts":       mapping.LastEditTimestamp,
		}).Debug("Dropping stale edit")
		metrics.IncrementCounter("stale_edits_total", nil, "Edit notifications older than the relayed copy")
		return SyncStale, nil
	}
	return m.syncEdit(ctx, mapping, content, timestamp)
}

// syncEdit brings the destination copy in line with content observed at
// timestamp. Blank content never overwrites a relayed message. Callers pass
// the current source state, so an older timestamp does not block the edit.
func (m *mirror) syncEdit(ctx context.Context, mapping *models.MessageMapping, content string, timestamp int64) (SyncResult, error) {
	snapshot := discord.TruncateContent(content)
	changed := strings.TrimSpace(content) != "" && snapshot != mapping.LastContentSnapshot

	if !changed {
		if timestamp <= mapping.LastEditTimestamp {
			return SyncUnchanged, nil
		}
		if err := m.store.UpdateEdit(ctx, mapping.SourceChatID, mapping.SourceMessageID, timestamp, mapping.LastContentSnapshot); err != nil {
			return SyncUnchanged, fmt.Errorf("failed to record edit timestamp: %w", err)
		}
		mapping.LastEditTimestamp = timestamp
		return SyncTimestampOnly, nil
	}

	if err := m.delivery.EditMessage(ctx, mapping.DestinationEndpoint, mapping.DestinationMessageID, content, mapping.DestinationThreadID); err != nil {
		return SyncUnchanged, fmt.Errorf("failed to edit relayed message: %w", err)
	}
	if timestamp < mapping.LastEditTimestamp {
		timestamp = mapping.LastEditTimestamp
	}
	if err := m.store.UpdateEdit(ctx, mapping.SourceChatID, mapping.SourceMessageID, timestamp, snapshot); err != nil {
		return SyncEdited, fmt.Errorf("failed to record edit: %w", err)
	}
	mapping.LastEditTimestamp = timestamp
	mapping.LastContentSnapshot = snapshot

	metrics.IncrementCounter("reconcile_edits_total", nil, "Relayed messages edited to follow the source")
	m.logger.WithFields(logrus.Fields{
		LogFieldMessageID:     mapping.SourceMessageID,
		LogFieldDestMessageID: mapping.DestinationMessageID,
	}).Info("Relayed edit")
	return SyncEdited, nil
}

// syncDelete removes the destination copy and soft-deletes the row. Rows
// already marked deleted are left alone.
func (m *mirror) syncDelete(ctx context.Context, mapping *models.MessageMapping) error {
	if mapping.Deleted {
		return nil
	}
	if err := m.delivery.DeleteMessage(ctx, mapping.DestinationEndpoint, mapping.DestinationMessageID, mapping.DestinationThreadID); err != nil {
		return fmt.Errorf("failed to delete relayed message: %w", err)
	}
	if err := m.store.MarkDeleted(ctx, mapping.SourceChatID, mapping.SourceMessageID); err != nil {
		return fmt.Errorf("failed to mark mapping deleted: %w", err)
	}
	mapping.Deleted = true

	metrics.IncrementCounter("reconcile_deletes_total", nil, "Relayed messages removed after the source disappeared")
	m.logger.WithFields(logrus.Fields{
		LogFieldMessageID:     mapping.SourceMessageID,
		LogFieldDestMessageID: mapping.DestinationMessageID,
	}).Info("Deleted relayed message")
	return nil
}
