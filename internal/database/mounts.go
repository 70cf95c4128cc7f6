package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"atelier/internal/catalog"
)

const mountColumns = `id, name, color, source_kind, root, base_url, include_subdirs, extensions, ignore_globs, added_at`

func scanMount(row rowScanner) (catalog.Mount, error) {
	var (
		m              catalog.Mount
		sourceKind     string
		root, baseURL  sql.NullString
		includeSubdirs int
		exts, globs    string
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Color, &sourceKind, &root, &baseURL,
		&includeSubdirs, &exts, &globs, &m.AddedAt); err != nil {
		return catalog.Mount{}, err
	}
	m.SourceKind = catalog.SourceKind(sourceKind)
	m.Root = root.String
	m.BaseURL = baseURL.String
	m.IncludeSubdirs = includeSubdirs != 0
	if err := json.Unmarshal([]byte(exts), &m.Extensions); err != nil {
		return catalog.Mount{}, fmt.Errorf("mount %s has malformed extensions: %w", m.ID, err)
	}
	if err := json.Unmarshal([]byte(globs), &m.IgnoreGlobs); err != nil {
		return catalog.Mount{}, fmt.Errorf("mount %s has malformed ignore globs: %w", m.ID, err)
	}
	return m, nil
}

// GetMount returns one mount.
func (d *Database) GetMount(ctx context.Context, id string) (catalog.Mount, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_mount", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	m, err := scanMount(d.db.QueryRowContext(ctx, `SELECT `+mountColumns+` FROM mounts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return catalog.Mount{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Mount{}, fmt.Errorf("failed to get mount %s: %w", id, err)
	}
	return m, nil
}

// PutMount creates or replaces a mount.
func (d *Database) PutMount(ctx context.Context, m catalog.Mount) error {
	if m.ID == "" {
		return errors.New("mount id is required")
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("put_mount", start, err) }()

	exts, err := json.Marshal(nonNil(m.Extensions))
	if err != nil {
		return err
	}
	globs, err := json.Marshal(nonNil(m.IgnoreGlobs))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err = d.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO mounts (`+mountColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				color = excluded.color,
				source_kind = excluded.source_kind,
				root = excluded.root,
				base_url = excluded.base_url,
				include_subdirs = excluded.include_subdirs,
				extensions = excluded.extensions,
				ignore_globs = excluded.ignore_globs
		`, m.ID, m.Name, m.Color, string(m.SourceKind), nullString(m.Root), nullString(m.BaseURL),
			boolInt(m.IncludeSubdirs), string(exts), string(globs), m.AddedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save mount %s: %w", m.ID, err)
	}

	d.Bump()
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// DeleteMount removes a mount record. Its entries are left in place.
func (d *Database) DeleteMount(ctx context.Context, id string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_mount", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var affected int64
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM mounts WHERE id = ?`, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete mount %s: %w", id, err)
	}
	if affected == 0 {
		return catalog.ErrNotFound
	}

	d.Bump()
	return nil
}

// ListMounts returns every mount ordered by (added_at, id).
func (d *Database) ListMounts(ctx context.Context) ([]catalog.Mount, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_mounts", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `SELECT `+mountColumns+` FROM mounts ORDER BY added_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list mounts: %w", err)
	}
	defer rows.Close()

	mounts := []catalog.Mount{}
	for rows.Next() {
		var m catalog.Mount
		m, err = scanMount(rows)
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, m)
	}
	err = rows.Err()
	return mounts, err
}
