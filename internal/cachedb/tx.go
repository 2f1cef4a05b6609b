package cachedb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tunes/internal/attributes"
)

// Tx is a write transaction handed to Store.Update. It must not be used
// after the callback returns.
type Tx struct {
	ctx context.Context
	tx  *sql.Tx
	now time.Time
}

// GetRecord returns the record with id as seen by the transaction.
func (t *Tx) GetRecord(id string) (*Record, error) {
	return getRecord(t.ctx, t.tx, id)
}

// FindByToken returns the record backed by token, or nil.
func (t *Tx) FindByToken(token TokenRef) (*Record, error) {
	return findByToken(t.ctx, t.tx, token)
}

// InsertRecord stores a new record. An empty ID is replaced by a new UUID.
func (t *Tx) InsertRecord(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("insert record: record is nil")
	}
	if rec.Kind != KindTrack && rec.Kind != KindPlaylist {
		return fmt.Errorf("insert record: unsupported kind %q", rec.Kind)
	}
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = t.now
	rec.UpdatedAt = t.now

	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO records (id, kind, token_kind, token_id, indexed, content_type, cache_mask, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		string(rec.Kind),
		nullableString(rec.Token.Kind),
		nullableString(rec.Token.ID),
		boolToInt(rec.Indexed),
		nullableString(rec.ContentType),
		int64(rec.CacheMask),
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	for i, ref := range rec.Secondaries {
		if err := t.insertSecondary(rec.ID, ref, i); err != nil {
			return err
		}
	}
	return nil
}

// StoreSnapshot persists every Valid entry of snap for record id. Storing the
// same snapshot twice leaves the database unchanged apart from timestamps.
func (t *Tx) StoreSnapshot(id string, snap attributes.Snapshot, schema *attributes.Schema) error {
	var storeErr error
	snap.OnlyValid().Range(func(k attributes.Key, e attributes.Entry) bool {
		if !schema.Has(k) {
			return true
		}
		raw, err := schema.Encode(k, e.Value)
		if err != nil {
			storeErr = err
			return false
		}
		_, err = t.tx.ExecContext(t.ctx,
			`INSERT INTO record_attributes (record_id, key, value_json, version, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(record_id, key) DO UPDATE SET
			     value_json = excluded.value_json,
			     version = excluded.version,
			     updated_at = excluded.updated_at`,
			id, string(k), string(raw), string(e.State.Version), formatTime(t.now),
		)
		if err != nil {
			storeErr = fmt.Errorf("store attribute %s.%s: %w", id, k, err)
			return false
		}
		return true
	})
	if storeErr != nil {
		return storeErr
	}
	return t.touch(id)
}

// UpdateCacheMask sets and clears bits of the record's content mask and
// returns the resulting mask.
func (t *Tx) UpdateCacheMask(id string, set, clear attributes.ContentMask) (attributes.ContentMask, error) {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE records SET cache_mask = ((cache_mask | ?) & ~?), updated_at = ? WHERE id = ?",
		int64(set), int64(clear), formatTime(t.now), id,
	)
	if err != nil {
		return 0, fmt.Errorf("update cache mask %s: %w", id, err)
	}
	if err := requireRow(res, id); err != nil {
		return 0, err
	}
	var mask int64
	if err := t.tx.QueryRowContext(t.ctx, "SELECT cache_mask FROM records WHERE id = ?", id).Scan(&mask); err != nil {
		return 0, fmt.Errorf("read cache mask %s: %w", id, err)
	}
	return attributes.ContentMask(mask), nil
}

// AddSecondary appends a secondary backend token to record id.
func (t *Tx) AddSecondary(id string, ref TokenRef) error {
	var next int
	if err := t.tx.QueryRowContext(t.ctx,
		"SELECT COALESCE(MAX(position) + 1, 0) FROM record_secondaries WHERE record_id = ?", id,
	).Scan(&next); err != nil {
		return fmt.Errorf("next secondary position: %w", err)
	}
	if err := t.insertSecondary(id, ref, next); err != nil {
		return err
	}
	return t.touch(id)
}

// RemoveSecondary drops a secondary backend token from record id. It
// reports ErrNotFound when the token is not linked to the record.
func (t *Tx) RemoveSecondary(id string, ref TokenRef) error {
	res, err := t.tx.ExecContext(t.ctx,
		"DELETE FROM record_secondaries WHERE record_id = ? AND token_kind = ? AND token_id = ?",
		id, ref.Kind, ref.ID,
	)
	if err != nil {
		return fmt.Errorf("remove secondary: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("secondary %s:%s of %s: %w", ref.Kind, ref.ID, id, ErrNotFound)
	}
	return t.touch(id)
}

// DeleteRecord removes record id together with its attributes.
func (t *Tx) DeleteRecord(id string) error {
	res, err := t.tx.ExecContext(t.ctx, "DELETE FROM records WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return requireRow(res, id)
}

func (t *Tx) insertSecondary(id string, ref TokenRef, position int) error {
	if ref.IsZero() {
		return fmt.Errorf("add secondary: empty token")
	}
	if _, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO record_secondaries (record_id, token_kind, token_id, position)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(record_id, token_kind, token_id) DO NOTHING`,
		id, ref.Kind, ref.ID, position,
	); err != nil {
		return fmt.Errorf("add secondary: %w", err)
	}
	return nil
}

func (t *Tx) touch(id string) error {
	res, err := t.tx.ExecContext(t.ctx, "UPDATE records SET updated_at = ? WHERE id = ?", formatTime(t.now), id)
	if err != nil {
		return fmt.Errorf("touch record %s: %w", id, err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	return nil
}

// StoreSnapshot persists every Valid entry of snap in its own transaction.
func (s *Store) StoreSnapshot(ctx context.Context, id string, snap attributes.Snapshot, schema *attributes.Schema) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.StoreSnapshot(id, snap, schema)
	})
}

// Delete removes the persisted record id.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.DeleteRecord(id)
	})
}
