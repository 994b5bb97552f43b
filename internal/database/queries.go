package database

// Message map queries
const (
	UpsertMappingQuery = `
		INSERT INTO message_map (
			source_chat_id, source_message_id, last_edit_timestamp,
			destination_message_id, destination_endpoint, last_content_snapshot,
			deleted, destination_channel_id, destination_thread_id
		) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(source_chat_id, source_message_id) DO UPDATE SET
			last_edit_timestamp = MAX(message_map.last_edit_timestamp, excluded.last_edit_timestamp),
			destination_message_id = excluded.destination_message_id,
			destination_endpoint = excluded.destination_endpoint,
			last_content_snapshot = excluded.last_content_snapshot,
			deleted = 0,
			destination_channel_id = excluded.destination_channel_id,
			destination_thread_id = excluded.destination_thread_id
	`

	selectMappingColumns = `
		SELECT source_chat_id, source_message_id, last_edit_timestamp,
		       destination_message_id, destination_endpoint, last_content_snapshot,
		       deleted, destination_channel_id, destination_thread_id,
		       created_at, updated_at
		FROM message_map
	`

	SelectMappingQuery = selectMappingColumns + `
		WHERE source_chat_id = ? AND source_message_id = ?
	`

	SelectRecentMappingsQuery = selectMappingColumns + `
		WHERE source_chat_id = ? AND deleted = 0
		ORDER BY source_message_id DESC
		LIMIT ?
	`

	MarkDeletedQuery = `
		UPDATE message_map SET deleted = 1
		WHERE source_chat_id = ? AND source_message_id = ?
	`

	UpdateEditQuery = `
		UPDATE message_map
		SET last_edit_timestamp = MAX(last_edit_timestamp, ?),
		    last_content_snapshot = ?
		WHERE source_chat_id = ? AND source_message_id = ?
	`

	CountMappingsQuery = `
		SELECT COUNT(*), COALESCE(SUM(deleted), 0) FROM message_map
	`
)
