package memory

import (
	"context"
	"errors"
	"runtime/debug"
	"sync/atomic"
	"testing"
	"time"
)

// newTestMonitor returns a monitor over limit bytes whose samples come
// from alloc.
func newTestMonitor(limit int64, alloc *atomic.Uint64) *Monitor {
	m := NewMonitor(Config{HighWaterMark: 0.5, CriticalWaterMark: 0.8, CheckInterval: time.Millisecond}, limit)
	m.read = alloc.Load
	return m
}

func TestNewMonitorDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		cfg          Config
		wantHigh     float64
		wantCritical float64
	}{
		{"zero config", Config{}, 0.7, 0.85},
		{"valid marks kept", Config{HighWaterMark: 0.6, CriticalWaterMark: 0.9}, 0.6, 0.9},
		{"critical below high", Config{HighWaterMark: 0.6, CriticalWaterMark: 0.5}, 0.6, 0.85},
		{"high out of range", Config{HighWaterMark: 1.5, CriticalWaterMark: 0.9}, 0.7, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewMonitor(tt.cfg, 1<<30)
			if m.cfg.HighWaterMark != tt.wantHigh || m.cfg.CriticalWaterMark != tt.wantCritical {
				t.Errorf("marks = %v/%v, want %v/%v", m.cfg.HighWaterMark, m.cfg.CriticalWaterMark, tt.wantHigh, tt.wantCritical)
			}
			if m.cfg.CheckInterval != 5*time.Second {
				t.Errorf("CheckInterval = %v, want 5s", m.cfg.CheckInterval)
			}
		})
	}
}

func TestGateClosesAndReopens(t *testing.T) {
	t.Parallel()

	var alloc atomic.Uint64
	m := newTestMonitor(1000, &alloc)

	alloc.Store(100)
	m.check()
	if m.Paused() {
		t.Fatal("paused at 10% usage")
	}
	if err := m.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() on open gate = %v", err)
	}

	alloc.Store(850)
	m.check()
	if !m.Paused() {
		t.Fatal("not paused at 85% usage")
	}
	if got := m.Usage(); got != 0.85 {
		t.Errorf("Usage() = %v, want 0.85", got)
	}

	released := make(chan error, 1)
	go func() { released <- m.Wait(context.Background()) }()

	// between the marks the gate stays closed
	alloc.Store(600)
	m.check()
	select {
	case err := <-released:
		t.Fatalf("Wait returned %v while usage was above the high water mark", err)
	case <-time.After(20 * time.Millisecond):
	}

	alloc.Store(400)
	m.check()
	select {
	case err := <-released:
		if err != nil {
			t.Errorf("Wait() = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after usage dropped")
	}
	if m.Paused() {
		t.Error("still paused after recovery")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()

	var alloc atomic.Uint64
	alloc.Store(900)
	m := newTestMonitor(1000, &alloc)
	m.check()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := m.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want DeadlineExceeded", err)
	}
}

func TestStopReleasesWaiters(t *testing.T) {
	t.Parallel()

	var alloc atomic.Uint64
	alloc.Store(900)
	m := newTestMonitor(1000, &alloc)
	m.Start()

	deadline := time.Now().Add(time.Second)
	for !m.Paused() {
		if time.Now().After(deadline) {
			t.Fatal("monitor never sampled")
		}
		time.Sleep(time.Millisecond)
	}

	released := make(chan error, 1)
	go func() { released <- m.Wait(context.Background()) }()

	m.Stop()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("Stop did not release the waiter")
	}
	// a second Stop is harmless
	m.Stop()
}

func TestStartWithoutLimit(t *testing.T) {
	t.Parallel()

	m := NewMonitor(DefaultConfig(), 0)
	m.limit = 0
	m.Start()
	m.check()
	if m.Paused() || m.Usage() != 0 {
		t.Error("a monitor without a limit must never pause")
	}
	m.Stop()
}

func TestApplyLimit(t *testing.T) {
	t.Setenv("GOMEMLIMIT", "")

	res := ApplyLimit(0, 0)
	if res.Source != "none" {
		t.Errorf("Source = %q, want none", res.Source)
	}

	prev := debug.SetMemoryLimit(-1)
	t.Cleanup(func() { debug.SetMemoryLimit(prev) })

	res = ApplyLimit(1<<30, 0.5)
	if res.Source != "config" || res.GoMemLimit != 1<<29 || res.Ratio != 0.5 {
		t.Errorf("ApplyLimit = %+v", res)
	}
	if got := CurrentLimit(); got != 1<<29 {
		t.Errorf("CurrentLimit() = %d, want %d", got, 1<<29)
	}

	res = ApplyLimit(1<<40, 2)
	if res.Ratio != DefaultRatio {
		t.Errorf("out-of-range ratio gave %v, want %v", res.Ratio, DefaultRatio)
	}
}

func TestFormatBytes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 30, "1.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
