package streaming

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWriterPassesThroughInChunks(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	sw := NewWriter(context.Background(), rec, Config{ChunkSize: 4})
	body := []byte("0123456789")

	n, err := sw.Write(body)
	if err != nil || n != len(body) {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if rec.Body.String() != string(body) {
		t.Errorf("body = %q", rec.Body.String())
	}
	if sw.Written() != int64(len(body)) {
		t.Errorf("Written() = %d", sw.Written())
	}
	// a recorder cannot take deadlines; the writer degrades quietly
	if sw.deadlines {
		t.Error("deadlines should be disabled for a recorder")
	}
	if err := sw.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestWriterDefaults(t *testing.T) {
	t.Parallel()
	sw := NewWriter(context.Background(), httptest.NewRecorder(), Config{})
	if sw.cfg.WriteTimeout != 30*time.Second || sw.cfg.ChunkSize != defaultChunkSize {
		t.Errorf("cfg = %+v", sw.cfg)
	}
}

func TestWriterClientGone(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sw := NewWriter(ctx, httptest.NewRecorder(), DefaultConfig())
	if _, err := sw.Write([]byte("x")); !errors.Is(err, ErrClientGone) {
		t.Errorf("Write() error = %v, want ErrClientGone", err)
	}
}

func TestWriterMaxDuration(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	sw := NewWriter(context.Background(), rec, Config{MaxDuration: time.Minute, ChunkSize: 2})
	now := sw.start
	sw.now = func() time.Time { return now }

	if _, err := sw.Write([]byte("ab")); err != nil {
		t.Fatalf("Write() = %v", err)
	}
	now = now.Add(2 * time.Minute)
	n, err := sw.Write([]byte("cd"))
	if !errors.Is(err, ErrMaxDuration) || n != 0 {
		t.Errorf("Write() = %d, %v, want ErrMaxDuration", n, err)
	}
	if rec.Body.String() != "ab" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestWriterOverRealConnection(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("media"), 50_000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := NewWriter(r.Context(), w, Config{WriteTimeout: 5 * time.Second, ChunkSize: 8 << 10})
		defer sw.Close()
		http.ServeContent(sw, r, "clip.mp4", time.Time{}, bytes.NewReader(payload))
		if !sw.deadlines {
			t.Error("a real connection should accept write deadlines")
		}
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("received %d bytes, want %d", len(got), len(payload))
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("Range", "bytes=5-9")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	part, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusPartialContent || !strings.EqualFold(string(part), "media") {
		t.Errorf("range response = %d %q", resp.StatusCode, part)
	}
}
