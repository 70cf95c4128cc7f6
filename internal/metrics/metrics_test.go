package metrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMetricNamesArePrefixed(t *testing.T) {
	InitializeMetrics()
	SetAppInfo("test", "abc123", "go1.25")

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	want := map[string]bool{
		"atelier_scans_total":                       false,
		"atelier_scan_files_total":                  false,
		"atelier_query_duration_seconds":            false,
		"atelier_thumbnails_stored_total":           false,
		"atelier_filesystem_retry_attempts_total":   false,
		"atelier_filesystem_operation_errors_total": false,
		"atelier_probes_total":                      false,
		"atelier_app_info":                          false,
	}
	for _, mf := range families {
		name := mf.GetName()
		if _, ok := want[name]; ok {
			want[name] = true
		}
		if !hasAnyPrefix(name, "atelier_", "go_", "process_", "promhttp_") {
			t.Errorf("unexpected metric family %q", name)
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("metric %q not exported after InitializeMetrics", name)
		}
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func TestInitializeMetricsIsIdempotent(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("InitializeMetrics() panicked on second call: %v", r)
		}
	}()
	InitializeMetrics()
	InitializeMetrics()
}

func TestFilesystemObserver(t *testing.T) {
	obs := NewFilesystemObserver()

	tests := []struct {
		name    string
		counter prometheus.Counter
		record  func()
	}{
		{
			name:    "operation error",
			counter: FilesystemOperationErrors.WithLabelValues("library", "readdir"),
			record:  func() { obs.ObserveOperation("library", "readdir", 0.01, errors.New("stale")) },
		},
		{
			name:    "retry attempt",
			counter: FilesystemRetryAttempts.WithLabelValues("stat", "library"),
			record:  func() { obs.ObserveRetryAttempt("stat", "library") },
		},
		{
			name:    "retry success",
			counter: FilesystemRetrySuccess.WithLabelValues("stat", "library"),
			record:  func() { obs.ObserveRetrySuccess("stat", "library") },
		},
		{
			name:    "retry failure",
			counter: FilesystemRetryFailures.WithLabelValues("open", "cache"),
			record:  func() { obs.ObserveRetryFailure("open", "cache") },
		},
		{
			name:    "stale error",
			counter: FilesystemStaleErrors.WithLabelValues("open", "library"),
			record:  func() { obs.ObserveStaleError("open", "library") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := counterValue(t, tt.counter)
			tt.record()
			if got := counterValue(t, tt.counter); got != before+1 {
				t.Errorf("counter = %v, want %v", got, before+1)
			}
		})
	}
}

func TestObserveOperationWithoutErrorDoesNotCountFailure(t *testing.T) {
	obs := NewFilesystemObserver()
	errs := FilesystemOperationErrors.WithLabelValues("unknown", "stat")

	before := counterValue(t, errs)
	obs.ObserveOperation("unknown", "stat", 0.001, nil)
	if got := counterValue(t, errs); got != before {
		t.Errorf("error counter = %v, want unchanged %v", got, before)
	}
}
