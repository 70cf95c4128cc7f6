package probe

import (
	"context"
	"errors"
	"sync/atomic"

	"atelier/internal/catalog"
	"atelier/internal/logging"
	"atelier/internal/metrics"
	"atelier/internal/workers"
)

// FillResult counts what Fill did.
type FillResult struct {
	Candidates int `json:"candidates"`
	Updated    int `json:"updated"`
	NoDuration int `json:"noDuration"`
	Failed     int `json:"failed"`
}

// Fill probes every directory entry in entries that has no duration yet and
// records what it finds. URL entries and entries that already carry a
// duration are not touched. A failed probe is counted and skipped; only a
// missing binary, a store error or cancellation stops the run.
func (p *Prober) Fill(ctx context.Context, store catalog.EntryStore, entries []catalog.Entry) (FillResult, error) {
	var todo []catalog.Entry
	for _, e := range entries {
		if e.SourceKind == catalog.SourceHandle && e.DurationSec == nil && e.SourceRef != "" {
			todo = append(todo, e)
		}
	}
	res := FillResult{Candidates: len(todo)}
	if len(todo) == 0 {
		return res, nil
	}
	if !p.Available() {
		return res, ErrUnavailable
	}

	var updated, noDuration, failed atomic.Int64
	err := workers.Each(ctx, workers.ForMixed(p.cfg.Workers), todo, func(ctx context.Context, e catalog.Entry) error {
		info, err := p.Probe(ctx, e.SourceRef)
		switch {
		case errors.Is(err, ErrNoDuration):
			metrics.ProbesTotal.WithLabelValues("no_duration").Inc()
			noDuration.Add(1)
			return nil
		case errors.Is(err, ErrUnavailable):
			return err
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.ProbesTotal.WithLabelValues("error").Inc()
			logging.Debug("probe %s: %v", e.ID, err)
			failed.Add(1)
			return nil
		}

		secs := info.Duration
		if _, err := catalog.Update(ctx, store, e.ID, func(cur *catalog.Entry) {
			if cur.DurationSec == nil {
				cur.DurationSec = &secs
			}
		}); err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return nil
			}
			return err
		}
		metrics.ProbesTotal.WithLabelValues("ok").Inc()
		updated.Add(1)
		return nil
	})

	res.Updated = int(updated.Load())
	res.NoDuration = int(noDuration.Load())
	res.Failed = int(failed.Load())
	if err == nil {
		logging.Info("Probed %d entries: %d durations recorded, %d without duration, %d failed",
			res.Candidates, res.Updated, res.NoDuration, res.Failed)
	}
	return res, err
}
