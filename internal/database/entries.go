package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"atelier/internal/catalog"
)

// iterateChunk is the keyset page size used by IterateAll.
const iterateChunk = 500

const tagSeparator = "\x1f"

const entryColumns = `
	e.id, e.mount_id, e.relative_path, e.filename, e.source_kind, e.source_ref,
	e.favorite, e.title_override, e.thumbnail, e.duration_sec, e.added_at,
	e.last_played_at, e.play_count,
	(SELECT group_concat(t.tag, char(31)) FROM entry_tags t WHERE t.entry_id = e.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (catalog.Entry, error) {
	var (
		e             catalog.Entry
		mountID       sql.NullString
		relativePath  sql.NullString
		sourceKind    string
		sourceRef     sql.NullString
		favorite      int
		titleOverride sql.NullString
		thumbnail     sql.NullString
		duration      sql.NullFloat64
		lastPlayed    sql.NullInt64
		tags          sql.NullString
	)

	err := row.Scan(
		&e.ID, &mountID, &relativePath, &e.Filename, &sourceKind, &sourceRef,
		&favorite, &titleOverride, &thumbnail, &duration, &e.AddedAt,
		&lastPlayed, &e.PlayCount, &tags,
	)
	if err != nil {
		return catalog.Entry{}, err
	}

	e.MountID = mountID.String
	e.RelativePath = relativePath.String
	e.SourceKind = catalog.SourceKind(sourceKind)
	e.SourceRef = sourceRef.String
	e.Favorite = favorite != 0
	e.TitleOverride = titleOverride.String
	e.Thumbnail = thumbnail.String
	if duration.Valid {
		v := duration.Float64
		e.DurationSec = &v
	}
	if lastPlayed.Valid {
		v := lastPlayed.Int64
		e.LastPlayedAt = &v
	}
	e.Tags = []string{}
	if tags.Valid && tags.String != "" {
		e.Tags = strings.Split(tags.String, tagSeparator)
		sort.Strings(e.Tags)
	}
	return e, nil
}

func collectEntries(rows *sql.Rows) ([]catalog.Entry, error) {
	var out []catalog.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Get retrieves a single entry by id.
func (d *Database) Get(ctx context.Context, id string) (catalog.Entry, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_entry", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries e WHERE e.id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return catalog.Entry{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("failed to get entry %s: %w", id, err)
	}
	return e, nil
}

// GetMany returns the entries present among ids, keyed by id.
func (d *Database) GetMany(ctx context.Context, ids []string) (map[string]catalog.Entry, error) {
	out := make(map[string]catalog.Entry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("get_many_entries", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	// SQLite limits bound parameters; stay well under it.
	const chunk = 500
	for i := 0; i < len(ids); i += chunk {
		end := min(i+chunk, len(ids))
		part := ids[i:end]

		args := make([]any, len(part))
		for j, id := range part {
			args[j] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(part)), ",")

		var rows *sql.Rows
		rows, err = d.db.QueryContext(ctx,
			`SELECT `+entryColumns+` FROM entries e WHERE e.id IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to load entries: %w", err)
		}
		var entries []catalog.Entry
		entries, err = collectEntries(rows)
		_ = rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to scan entries: %w", err)
		}
		for _, e := range entries {
			out[e.ID] = e
		}
	}
	return out, nil
}

// QueryRange returns one mount's entries ordered by (added_at, id).
func (d *Database) QueryRange(ctx context.Context, mountID string) ([]catalog.Entry, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("query_range", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM entries e INDEXED BY idx_entries_mount_added
		WHERE e.mount_id = ?
		ORDER BY e.added_at, e.id
	`, mountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mount %s: %w", mountID, err)
	}
	defer rows.Close()

	entries, err := collectEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan mount %s: %w", mountID, err)
	}
	return entries, nil
}

// IterateAll visits every entry ordered by (added_at, id). Rows are read in
// keyset pages so fn runs without holding the database lock.
func (d *Database) IterateAll(ctx context.Context, fn func(catalog.Entry) error) error {
	var (
		lastAdded int64
		lastID    string
		first     = true
	)
	for {
		page, err := d.iteratePage(ctx, first, lastAdded, lastID)
		if err != nil {
			return err
		}
		for _, e := range page {
			if err := fn(e); err != nil {
				return err
			}
		}
		if len(page) < iterateChunk {
			return nil
		}
		last := page[len(page)-1]
		lastAdded, lastID, first = last.AddedAt, last.ID, false
	}
}

func (d *Database) iteratePage(ctx context.Context, first bool, lastAdded int64, lastID string) ([]catalog.Entry, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("iterate_entries", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var rows *sql.Rows
	if first {
		rows, err = d.db.QueryContext(ctx, `
			SELECT `+entryColumns+`
			FROM entries e
			ORDER BY e.added_at, e.id
			LIMIT ?
		`, iterateChunk)
	} else {
		rows, err = d.db.QueryContext(ctx, `
			SELECT `+entryColumns+`
			FROM entries e
			WHERE (e.added_at, e.id) > (?, ?)
			ORDER BY e.added_at, e.id
			LIMIT ?
		`, lastAdded, lastID, iterateChunk)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	defer rows.Close()

	entries, err := collectEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan entries: %w", err)
	}
	return entries, nil
}

// Put writes one entry.
func (d *Database) Put(ctx context.Context, e catalog.Entry) error {
	return d.BulkPut(ctx, []catalog.Entry{e})
}

// BulkPut writes entries in a single transaction.
func (d *Database) BulkPut(ctx context.Context, entries []catalog.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("bulk_put", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	err = d.withTx(ctx, func(tx *sql.Tx) error {
		upsert, err := tx.PrepareContext(ctx, `
			INSERT INTO entries (id, mount_id, relative_path, filename, source_kind, source_ref,
				favorite, title_override, thumbnail, duration_sec, added_at, last_played_at, play_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				mount_id = excluded.mount_id,
				relative_path = excluded.relative_path,
				filename = excluded.filename,
				source_kind = excluded.source_kind,
				source_ref = excluded.source_ref,
				favorite = excluded.favorite,
				title_override = excluded.title_override,
				thumbnail = excluded.thumbnail,
				duration_sec = excluded.duration_sec,
				added_at = excluded.added_at,
				last_played_at = excluded.last_played_at,
				play_count = excluded.play_count
		`)
		if err != nil {
			return err
		}
		defer upsert.Close()

		for _, e := range entries {
			if e.ID == "" {
				return errors.New("entry id is required")
			}
			var duration sql.NullFloat64
			if e.DurationSec != nil {
				duration = sql.NullFloat64{Float64: *e.DurationSec, Valid: true}
			}
			var lastPlayed sql.NullInt64
			if e.LastPlayedAt != nil {
				lastPlayed = sql.NullInt64{Int64: *e.LastPlayedAt, Valid: true}
			}

			if _, err := upsert.ExecContext(ctx,
				e.ID, nullString(e.MountID), nullString(e.RelativePath), e.Filename,
				string(e.SourceKind), nullString(e.SourceRef), boolInt(e.Favorite),
				nullString(e.TitleOverride), nullString(e.Thumbnail), duration,
				e.AddedAt, lastPlayed, e.PlayCount,
			); err != nil {
				return fmt.Errorf("failed to write entry %s: %w", e.ID, translateError(err))
			}
			if err := replaceTags(ctx, tx, e.ID, e.Tags); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.Bump()
	return nil
}

func replaceTags(ctx context.Context, tx *sql.Tx, id string, tags []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM entry_tags WHERE entry_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear tags of %s: %w", id, err)
	}
	for _, tag := range catalog.NormalizeTags(tags) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entry_tags (entry_id, tag) VALUES (?, ?)`, id, tag); err != nil {
			return fmt.Errorf("failed to tag %s: %w", id, err)
		}
	}
	return nil
}

// Delete removes one entry and its tags.
func (d *Database) Delete(ctx context.Context, id string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_entry", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var affected int64
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete entry %s: %w", id, err)
	}
	if affected == 0 {
		return catalog.ErrNotFound
	}

	d.Bump()
	return nil
}

// UpsertPaths inserts new entries and, for ids already present, refreshes
// only the source and path columns. The batch commits as one transaction.
func (d *Database) UpsertPaths(ctx context.Context, entries []catalog.Entry) (catalog.UpsertResult, error) {
	var res catalog.UpsertResult
	if len(entries) == 0 {
		return res, nil
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_paths", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	err = d.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := tx.PrepareContext(ctx, `SELECT 1 FROM entries WHERE id = ?`)
		if err != nil {
			return err
		}
		defer exists.Close()

		upsert, err := tx.PrepareContext(ctx, `
			INSERT INTO entries (id, mount_id, relative_path, filename, source_kind, source_ref,
				favorite, added_at, play_count)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?, 0)
			ON CONFLICT(id) DO UPDATE SET
				mount_id = excluded.mount_id,
				relative_path = excluded.relative_path,
				filename = excluded.filename,
				source_kind = excluded.source_kind,
				source_ref = excluded.source_ref
		`)
		if err != nil {
			return err
		}
		defer upsert.Close()

		for _, e := range entries {
			var one int
			found := true
			if err := exists.QueryRowContext(ctx, e.ID).Scan(&one); err != nil {
				if !errors.Is(err, sql.ErrNoRows) {
					return err
				}
				found = false
			}

			if _, err := upsert.ExecContext(ctx,
				e.ID, nullString(e.MountID), nullString(e.RelativePath), e.Filename,
				string(e.SourceKind), nullString(e.SourceRef), e.AddedAt,
			); err != nil {
				return fmt.Errorf("failed to upsert entry %s: %w", e.ID, translateError(err))
			}

			if found {
				res.Updated = append(res.Updated, e.ID)
				continue
			}
			if len(e.Tags) > 0 {
				if err := replaceTags(ctx, tx, e.ID, e.Tags); err != nil {
					return err
				}
			}
			res.Added = append(res.Added, e.ID)
		}
		return nil
	})
	if err != nil {
		return catalog.UpsertResult{}, err
	}

	d.Bump()
	return res, nil
}
