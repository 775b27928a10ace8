package store

import (
	"context"
	"encoding/json"
	"fmt"
)

func (s *PostgresStore) InsertActivityLog(ctx context.Context, entry ActivityLog) error {
	level := entry.Level
	if level == "" {
		level = LogLevelInfo
	}
	var metadata any
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("encode activity metadata: %w", err)
		}
		metadata = string(encoded)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_logs (
			level, category, message, description, metadata, ip_address, user_agent, user_id, target_user_id, listing_id
		) VALUES (
			$1, $2, NULLIF($3, ''), NULLIF($4, ''), $5::jsonb, NULLIF($6, ''), NULLIF($7, ''),
			NULLIF($8, '')::uuid, NULLIF($9, '')::uuid, NULLIF($10, '')::uuid
		)
	`, level, entry.Category, entry.Message, entry.Description, metadata, entry.IPAddress, entry.UserAgent,
		entry.UserID, entry.TargetUserID, entry.ListingID)
	if err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}
	return nil
}

// ListActivityLogs returns the audit trail of one listing, newest first.
func (s *PostgresStore) ListActivityLogs(ctx context.Context, listingID string, limit int) ([]ActivityLog, error) {
	if !validID(listingID) {
		return []ActivityLog{}, nil
	}
	limit, _ = pageBounds(limit, 0)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, level, category, COALESCE(message, ''), COALESCE(description, ''), metadata,
			COALESCE(ip_address, ''), COALESCE(user_agent, ''), COALESCE(user_id::text, ''),
			COALESCE(target_user_id::text, ''), COALESCE(listing_id::text, ''), created_at
		FROM activity_logs
		WHERE listing_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, listingID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity logs: %w", err)
	}
	defer rows.Close()

	entries := make([]ActivityLog, 0)
	for rows.Next() {
		var (
			entry    ActivityLog
			metadata []byte
		)
		if err := rows.Scan(
			&entry.ID, &entry.Level, &entry.Category, &entry.Message, &entry.Description, &metadata,
			&entry.IPAddress, &entry.UserAgent, &entry.UserID, &entry.TargetUserID, &entry.ListingID, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan activity log: %w", err)
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &entry.Metadata)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity logs: %w", err)
	}
	return entries, nil
}
