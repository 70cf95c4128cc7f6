package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"atelier/internal/catalog"
	"atelier/internal/metrics"
)

// GetMeta returns the value stored under key.
func (d *Database) GetMeta(ctx context.Context, key string) (string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_meta", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value sql.NullString
	err = d.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return "", catalog.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value.String, nil
}

// SetMeta stores value under key.
func (d *Database) SetMeta(ctx context.Context, key, value string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_meta", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err = d.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO metadata (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value)
		return err
	})
	return err
}

// Stats counts entries, mounts, favorites and distinct tags.
func (d *Database) Stats(ctx context.Context) (catalog.Stats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var st catalog.Stats
	err = d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM entries),
			(SELECT COUNT(*) FROM mounts),
			(SELECT COUNT(*) FROM entries WHERE favorite = 1),
			(SELECT COUNT(DISTINCT tag) FROM entry_tags)
	`).Scan(&st.TotalEntries, &st.TotalMounts, &st.TotalFavorites, &st.TotalTags)
	return st, err
}

// CollectStats adapts Stats for the metrics collector.
func (d *Database) CollectStats(ctx context.Context) (metrics.Stats, error) {
	st, err := d.Stats(ctx)
	if err != nil {
		return metrics.Stats{}, err
	}
	return metrics.Stats{
		TotalEntries:   st.TotalEntries,
		TotalMounts:    st.TotalMounts,
		TotalFavorites: st.TotalFavorites,
		TotalTags:      st.TotalTags,
	}, nil
}
