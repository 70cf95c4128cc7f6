package streaming

import (
	"context"
	"errors"
	"net/http"
	"time"

	"atelier/internal/metrics"
)

// Sentinel errors for streaming operations.
var (
	// ErrMaxDuration indicates the response ran past Config.MaxDuration.
	ErrMaxDuration = errors.New("stream exceeded maximum duration")

	// ErrClientGone indicates the client disconnected before the response
	// completed.
	ErrClientGone = errors.New("client disconnected")
)

const defaultChunkSize = 64 << 10

// Config configures deadline handling.
type Config struct {
	// WriteTimeout bounds each chunk written to the client.
	WriteTimeout time.Duration
	// MaxDuration caps the whole response; 0 means unlimited.
	MaxDuration time.Duration
	// ChunkSize is the most written under one deadline.
	ChunkSize int
}

// DefaultConfig returns the defaults used for media files.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 30 * time.Second,
		ChunkSize:    defaultChunkSize,
	}
}

// Writer is an http.ResponseWriter that renews the write deadline before
// every chunk.
type Writer struct {
	http.ResponseWriter
	ctx       context.Context
	rc        *http.ResponseController
	cfg       Config
	start     time.Time
	written   int64
	deadlines bool
	now       func() time.Time
}

// NewWriter wraps w for the request whose context is ctx.
func NewWriter(ctx context.Context, w http.ResponseWriter, cfg Config) *Writer {
	def := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	return &Writer{
		ResponseWriter: w,
		ctx:            ctx,
		rc:             http.NewResponseController(w),
		cfg:            cfg,
		start:          time.Now(),
		deadlines:      true,
		now:            time.Now,
	}
}

func (sw *Writer) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		if err := sw.check(); err != nil {
			return total, err
		}
		chunk := p[:min(len(p), sw.cfg.ChunkSize)]
		sw.renewDeadline()

		n, err := sw.ResponseWriter.Write(chunk)
		total += n
		sw.written += int64(n)
		metrics.StreamBytesTotal.Add(float64(n))
		if err != nil {
			if sw.ctx.Err() != nil {
				return total, ErrClientGone
			}
			if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
				metrics.StreamTimeoutsTotal.Inc()
			}
			return total, err
		}
		p = p[n:]
	}
	return total, nil
}

func (sw *Writer) check() error {
	if sw.ctx.Err() != nil {
		return ErrClientGone
	}
	if sw.cfg.MaxDuration > 0 && sw.now().Sub(sw.start) > sw.cfg.MaxDuration {
		metrics.StreamTimeoutsTotal.Inc()
		return ErrMaxDuration
	}
	return nil
}

func (sw *Writer) renewDeadline() {
	if !sw.deadlines {
		return
	}
	if err := sw.rc.SetWriteDeadline(sw.now().Add(sw.cfg.WriteTimeout)); err != nil {
		// not supported by this writer chain; stop trying
		sw.deadlines = false
	}
}

// Flush sends buffered data to the client.
func (sw *Writer) Flush() {
	_ = sw.rc.Flush()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (sw *Writer) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// Written returns the number of body bytes written so far.
func (sw *Writer) Written() int64 {
	return sw.written
}

// Close clears the write deadline so the connection can be reused.
func (sw *Writer) Close() error {
	if !sw.deadlines {
		return nil
	}
	return sw.rc.SetWriteDeadline(time.Time{})
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
