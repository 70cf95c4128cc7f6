package memory

import (
	"context"
	"runtime"
	"sync"
	"time"

	"atelier/internal/logging"
	"atelier/internal/metrics"
)

// Config holds memory management configuration.
type Config struct {
	// LimitBytes is the container memory limit; 0 relies on GOMEMLIMIT.
	LimitBytes int64 `mapstructure:"limit_bytes" yaml:"limit_bytes"`
	// Ratio is the share of LimitBytes given to the Go heap.
	Ratio float64 `mapstructure:"ratio" yaml:"ratio"`
	// HighWaterMark is the usage below which a paused gate reopens.
	HighWaterMark float64 `mapstructure:"high_water_mark" yaml:"high_water_mark"`
	// CriticalWaterMark is the usage at which the gate closes.
	CriticalWaterMark float64       `mapstructure:"critical_water_mark" yaml:"critical_water_mark"`
	CheckInterval     time.Duration `mapstructure:"check_interval" yaml:"check_interval"`
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Ratio:             DefaultRatio,
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     5 * time.Second,
	}
}

// Monitor samples heap usage and closes a gate under memory pressure.
type Monitor struct {
	cfg   Config
	limit int64
	read  func() uint64

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	mu      sync.RWMutex
	current uint64
	paused  bool
	resume  chan struct{}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc
}

// NewMonitor creates a monitor against limit bytes, or against the
// runtime's soft limit when limit is 0. Without any limit the gate never
// closes.
func NewMonitor(cfg Config, limit int64) *Monitor {
	def := DefaultConfig()
	if cfg.HighWaterMark <= 0 || cfg.HighWaterMark >= 1 {
		cfg.HighWaterMark = def.HighWaterMark
	}
	if cfg.CriticalWaterMark <= cfg.HighWaterMark || cfg.CriticalWaterMark > 1 {
		cfg.CriticalWaterMark = max(def.CriticalWaterMark, cfg.HighWaterMark)
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if limit <= 0 {
		limit = CurrentLimit()
	}
	if limit == 0 {
		logging.Debug("Memory monitor: no memory limit configured, backpressure disabled")
	}
	return &Monitor{
		cfg:    cfg,
		limit:  limit,
		read:   heapAlloc,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		resume: make(chan struct{}),
	}
}

// Start begins sampling. It does nothing without a limit and must not be
// called twice.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	m.started = true
	go m.loop()
}

// Stop ends sampling and releases every waiter.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	if m.started {
		<-m.done
	}

	m.mu.Lock()
	if m.paused {
		m.paused = false
		close(m.resume)
		m.resume = make(chan struct{})
	}
	m.mu.Unlock()
}

func (m *Monitor) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.stop:
			return
		}
	}
}

// check takes one sample and opens or closes the gate.
func (m *Monitor) check() {
	alloc := m.read()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = alloc
	if m.limit == 0 {
		return
	}
	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	switch {
	case usage >= m.cfg.CriticalWaterMark && !m.paused:
		logging.Warn("Memory critical (%.1f%% of %s), pausing scans", usage*100, FormatBytes(m.limit))
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryPausesTotal.Inc()
		go runtime.GC()
	case usage < m.cfg.HighWaterMark && m.paused:
		logging.Info("Memory recovered (%.1f%% of %s), resuming scans", usage*100, FormatBytes(m.limit))
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resume)
		m.resume = make(chan struct{})
	}
}

// Wait blocks while the gate is closed. It returns ctx's error if ctx ends
// first.
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.RLock()
	paused, resume := m.paused, m.resume
	m.mu.RUnlock()
	if !paused {
		return ctx.Err()
	}

	logging.Debug("Waiting for memory pressure to ease")
	select {
	case <-resume:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Paused reports whether the gate is closed.
func (m *Monitor) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// Usage returns the last sample as a share of the limit, or 0 without one.
func (m *Monitor) Usage() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.limit == 0 {
		return 0
	}
	return float64(m.current) / float64(m.limit)
}
