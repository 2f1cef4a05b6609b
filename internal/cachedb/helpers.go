package cachedb

import (
	"database/sql"
	"errors"
	"time"

	"tunes/internal/attributes"
)

const recordColumns = "id, kind, token_kind, token_id, indexed, content_type, cache_mask, created_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id          string
		kind        string
		tokenKind   sql.NullString
		tokenID     sql.NullString
		indexed     sql.NullInt64
		contentType sql.NullString
		cacheMask   sql.NullInt64
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&kind,
		&tokenKind,
		&tokenID,
		&indexed,
		&contentType,
		&cacheMask,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:          id,
		Kind:        Kind(kind),
		Token:       TokenRef{Kind: tokenKind.String, ID: tokenID.String},
		Indexed:     indexed.Valid && indexed.Int64 != 0,
		ContentType: contentType.String,
		CacheMask:   attributes.ContentMask(cacheMask.Int64),
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		rec.UpdatedAt = updated
	}
	return rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
