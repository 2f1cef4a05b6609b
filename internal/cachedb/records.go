package cachedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tunes/internal/attributes"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetRecord returns the record with id, or ErrNotFound.
func (s *Store) GetRecord(ctx context.Context, id string) (*Record, error) {
	return getRecord(ensureContext(ctx), s.db, id)
}

// FindByToken returns the record backed by token, or nil when none exists.
func (s *Store) FindByToken(ctx context.Context, token TokenRef) (*Record, error) {
	return findByToken(ensureContext(ctx), s.db, token)
}

// GetRecords returns the records with the given ids, skipping unknown ones.
func (s *Store) GetRecords(ctx context.Context, ids []string) ([]*Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx = ensureContext(ctx)
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM records WHERE id IN (%s)", recordColumns, makePlaceholders(len(ids))),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Record, len(ids))
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		byID[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	out := make([]*Record, 0, len(byID))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ListRecords returns every record of kind, or every record when kind is
// empty, oldest first.
func (s *Store) ListRecords(ctx context.Context, kind Kind) ([]*Record, error) {
	ctx = ensureContext(ctx)
	query := fmt.Sprintf("SELECT %s FROM records", recordColumns)
	var args []any
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// LoadSnapshot returns the persisted snapshot of id. Every entry is Valid;
// keys never stored are Missing. Keys the schema no longer declares are
// skipped.
func (s *Store) LoadSnapshot(ctx context.Context, id string, schema *attributes.Schema) (attributes.Snapshot, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value_json, version FROM record_attributes WHERE record_id = ?", id)
	if err != nil {
		return attributes.Snapshot{}, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	defer rows.Close()

	entries := make(map[attributes.Key]attributes.Entry)
	for rows.Next() {
		key, entry, ok, err := scanAttribute(rows, schema)
		if err != nil {
			return attributes.Snapshot{}, fmt.Errorf("load snapshot %s: %w", id, err)
		}
		if ok {
			entries[key] = entry
		}
	}
	if err := rows.Err(); err != nil {
		return attributes.Snapshot{}, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	return attributes.NewSnapshot(entries), nil
}

// LoadSnapshots returns the persisted snapshot of every record of kind.
func (s *Store) LoadSnapshots(ctx context.Context, kind Kind, schema *attributes.Schema) (map[string]attributes.Snapshot, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.record_id, a.key, a.value_json, a.version
		FROM record_attributes a
		JOIN records r ON r.id = a.record_id
		WHERE r.kind = ?`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("load %s snapshots: %w", kind, err)
	}
	defer rows.Close()

	byRecord := make(map[string]map[attributes.Key]attributes.Entry)
	for rows.Next() {
		var (
			recordID string
			key      string
			raw      sql.NullString
			version  string
		)
		if err := rows.Scan(&recordID, &key, &raw, &version); err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		if !schema.Has(attributes.Key(key)) {
			continue
		}
		value, err := schema.Decode(attributes.Key(key), []byte(raw.String))
		if err != nil {
			return nil, err
		}
		entries, ok := byRecord[recordID]
		if !ok {
			entries = make(map[attributes.Key]attributes.Entry)
			byRecord[recordID] = entries
		}
		entries[attributes.Key(key)] = attributes.Entry{Value: value, State: attributes.Valid(attributes.Version(version))}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attributes: %w", err)
	}

	out := make(map[string]attributes.Snapshot, len(byRecord))
	for id, entries := range byRecord {
		out[id] = attributes.NewSnapshot(entries)
	}
	return out, nil
}

func scanAttribute(rows *sql.Rows, schema *attributes.Schema) (attributes.Key, attributes.Entry, bool, error) {
	var (
		key     string
		raw     sql.NullString
		version string
	)
	if err := rows.Scan(&key, &raw, &version); err != nil {
		return "", attributes.Entry{}, false, err
	}
	k := attributes.Key(key)
	if !schema.Has(k) {
		return k, attributes.Entry{}, false, nil
	}
	value, err := schema.Decode(k, []byte(raw.String))
	if err != nil {
		return k, attributes.Entry{}, false, err
	}
	return k, attributes.Entry{Value: value, State: attributes.Valid(attributes.Version(version))}, true, nil
}

func getRecord(ctx context.Context, q queryer, id string) (*Record, error) {
	row := q.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM records WHERE id = ?", recordColumns), id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get record %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	secondaries, err := listSecondaries(ctx, q, id)
	if err != nil {
		return nil, err
	}
	rec.Secondaries = secondaries
	return rec, nil
}

func findByToken(ctx context.Context, q queryer, token TokenRef) (*Record, error) {
	if token.IsZero() {
		return nil, nil
	}
	row := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM records WHERE token_kind = ? AND token_id = ?", recordColumns),
		token.Kind, token.ID,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find record by token: %w", err)
	}
	secondaries, err := listSecondaries(ctx, q, rec.ID)
	if err != nil {
		return nil, err
	}
	rec.Secondaries = secondaries
	return rec, nil
}

func listSecondaries(ctx context.Context, q queryer, id string) ([]TokenRef, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT token_kind, token_id FROM record_secondaries WHERE record_id = ? ORDER BY position", id)
	if err != nil {
		return nil, fmt.Errorf("list secondaries %s: %w", id, err)
	}
	defer rows.Close()

	var out []TokenRef
	for rows.Next() {
		var ref TokenRef
		if err := rows.Scan(&ref.Kind, &ref.ID); err != nil {
			return nil, fmt.Errorf("scan secondary: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}
