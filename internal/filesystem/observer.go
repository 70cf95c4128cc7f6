package filesystem

import "sync/atomic"

// Observer records filesystem operation metrics. The metrics package
// provides the implementation so this package stays free of Prometheus.
type Observer interface {
	// ObserveOperation records one completed operation ("stat", "readdir", "open").
	ObserveOperation(volume, operation string, durationSeconds float64, err error)
	ObserveRetryAttempt(operation, volume string)
	ObserveRetrySuccess(operation, volume string)
	ObserveRetryFailure(operation, volume string)
	ObserveStaleError(operation, volume string)
}

type observerHolder struct{ Observer }

var defaultObserver atomic.Pointer[observerHolder]

// SetObserver sets the package-level metrics observer.
func SetObserver(o Observer) {
	defaultObserver.Store(&observerHolder{o})
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, float64, error) {}
func (nopObserver) ObserveRetryAttempt(string, string)              {}
func (nopObserver) ObserveRetrySuccess(string, string)              {}
func (nopObserver) ObserveRetryFailure(string, string)              {}
func (nopObserver) ObserveStaleError(string, string)                {}

func observe() Observer {
	if h := defaultObserver.Load(); h != nil && h.Observer != nil {
		return h.Observer
	}
	return nopObserver{}
}
