package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"tgcord/internal/constants"
	"tgcord/internal/migrations"
	"tgcord/internal/models"
	"tgcord/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// ErrMappingNotFound is returned by updates addressed to a key with no row.
var ErrMappingNotFound = errors.New("message mapping not found")

// Database is the durable source↔destination mapping store.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	closeWith := func(err error, what string) error {
		if closeErr := db.Close(); closeErr != nil {
			return fmt.Errorf("failed to %s: %w (close error: %v)", what, err, closeErr)
		}
		return fmt.Errorf("failed to %s: %w", what, err)
	}

	if err := db.Ping(); err != nil {
		return nil, closeWith(err, "ping database")
	}

	if _, err := migrations.Apply(context.Background(), db); err != nil {
		return nil, closeWith(err, "initialize schema")
	}

	encryptor, err := NewEncryptor()
	if err != nil {
		return nil, closeWith(err, "initialize encryptor")
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks the connection for health reporting.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// UpsertMapping inserts or replaces the row for the mapping's key. The
// deleted flag is always cleared and the edit timestamp never moves back.
func (d *Database) UpsertMapping(ctx context.Context, m *models.MessageMapping) error {
	endpoint, err := d.encryptor.Encrypt(m.DestinationEndpoint)
	if err != nil {
		return fmt.Errorf("failed to encrypt destination endpoint: %w", err)
	}

	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, UpsertMappingQuery,
			m.SourceChatID,
			m.SourceMessageID,
			m.LastEditTimestamp,
			m.DestinationMessageID,
			endpoint,
			TruncateSnapshot(m.LastContentSnapshot),
			nullString(m.DestinationChannelID),
			nullString(m.DestinationThreadID),
		)
		return err
	}, "upsert message mapping")
}

// GetMapping returns the row for a key, or nil when none exists.
func (d *Database) GetMapping(ctx context.Context, chatID, messageID int64) (*models.MessageMapping, error) {
	row := d.db.QueryRowContext(ctx, SelectMappingQuery, chatID, messageID)
	m, err := d.scanMapping(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message mapping: %w", err)
	}
	return m, nil
}

// RecentMappings returns up to limit non-deleted rows for a chat, newest
// source message first.
func (d *Database) RecentMappings(ctx context.Context, chatID int64, limit int) ([]*models.MessageMapping, error) {
	rows, err := d.db.QueryContext(ctx, SelectRecentMappingsQuery, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent mappings: %w", err)
	}
	defer rows.Close()

	var out []*models.MessageMapping
	for rows.Next() {
		m, err := d.scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mappings: %w", err)
	}
	return out, nil
}

// MarkDeleted soft-deletes a row. Marking an absent key is a no-op.
func (d *Database) MarkDeleted(ctx context.Context, chatID, messageID int64) error {
	return retryableDBOperationNoReturn(ctx, func() error {
		_, err := d.db.ExecContext(ctx, MarkDeletedQuery, chatID, messageID)
		return err
	}, "mark mapping deleted")
}

// UpdateEdit records a re-synced edit. The stored timestamp only advances.
func (d *Database) UpdateEdit(ctx context.Context, chatID, messageID, timestamp int64, snapshot string) error {
	var affected int64
	err := retryableDBOperationNoReturn(ctx, func() error {
		res, err := d.db.ExecContext(ctx, UpdateEditQuery, timestamp, TruncateSnapshot(snapshot), chatID, messageID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	}, "update mapping edit")
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrMappingNotFound
	}
	return nil
}

// CountMappings returns the total and soft-deleted row counts.
func (d *Database) CountMappings(ctx context.Context) (total, deleted int64, err error) {
	if err := d.db.QueryRowContext(ctx, CountMappingsQuery).Scan(&total, &deleted); err != nil {
		return 0, 0, fmt.Errorf("failed to count mappings: %w", err)
	}
	return total, deleted, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (d *Database) scanMapping(row rowScanner) (*models.MessageMapping, error) {
	var (
		m         models.MessageMapping
		endpoint  string
		deleted   int
		channelID sql.NullString
		threadID  sql.NullString
		createdAt sql.NullTime
		updatedAt sql.NullTime
	)

	if err := row.Scan(
		&m.SourceChatID,
		&m.SourceMessageID,
		&m.LastEditTimestamp,
		&m.DestinationMessageID,
		&endpoint,
		&m.LastContentSnapshot,
		&deleted,
		&channelID,
		&threadID,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	plain, err := d.encryptor.Decrypt(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt destination endpoint: %w", err)
	}
	m.DestinationEndpoint = plain
	m.Deleted = deleted != 0
	m.DestinationChannelID = channelID.String
	m.DestinationThreadID = threadID.String
	if createdAt.Valid {
		m.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		m.UpdatedAt = updatedAt.Time
	} else {
		m.UpdatedAt = m.CreatedAt
	}
	return &m, nil
}

// TruncateSnapshot bounds stored content to the destination's message
// length, counted in characters.
func TruncateSnapshot(s string) string {
	if len(s) <= constants.MaxSnapshotChars {
		return s
	}
	runes := []rune(s)
	if len(runes) <= constants.MaxSnapshotChars {
		return s
	}
	return string(runes[:constants.MaxSnapshotChars])
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
