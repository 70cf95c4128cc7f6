package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"atelier/internal/metrics"
)

var (
	// ErrUnavailable is returned when the ffprobe binary cannot be run.
	ErrUnavailable = errors.New("ffprobe is not available")

	// ErrNoDuration is returned for files ffprobe reads but cannot time.
	ErrNoDuration = errors.New("no duration reported")
)

// Config selects the ffprobe binary and bounds each run.
type Config struct {
	Binary  string        `mapstructure:"binary" yaml:"binary"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Workers int           `mapstructure:"workers" yaml:"workers"`
}

// DefaultConfig looks ffprobe up on PATH and gives each file 30 seconds.
func DefaultConfig() Config {
	return Config{
		Binary:  "ffprobe",
		Timeout: 30 * time.Second,
	}
}

// Info is what a probe learns about one file.
type Info struct {
	Duration float64 `json:"duration"`
	Codec    string  `json:"codec,omitempty"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
}

// Prober runs ffprobe.
type Prober struct {
	cfg Config
}

// New returns a prober. Zero fields take their defaults.
func New(cfg Config) *Prober {
	d := DefaultConfig()
	if cfg.Binary == "" {
		cfg.Binary = d.Binary
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	return &Prober{cfg: cfg}
}

// Available reports whether the configured binary can be found.
func (p *Prober) Available() bool {
	_, err := exec.LookPath(p.cfg.Binary)
	return err == nil
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe on path. The container duration wins; a stream
// duration is used when the container has none.
func (p *Prober) Probe(ctx context.Context, path string) (Info, error) {
	start := time.Now()
	defer func() { metrics.ProbeDuration.Observe(time.Since(start).Seconds()) }()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.cfg.Binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return Info{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Info{}, fmt.Errorf("ffprobe %s: %w", path, ctxErr)
		}
		return Info{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return parse(stdout.Bytes())
}

func parse(data []byte) (Info, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, fmt.Errorf("failed to decode ffprobe output: %w", err)
	}

	var info Info
	durations := []string{out.Format.Duration}
	for _, s := range out.Streams {
		if info.Codec == "" && (s.CodecType == "video" || s.CodecType == "audio" || s.CodecType == "") {
			info.Codec = s.CodecName
			info.Width, info.Height = s.Width, s.Height
		}
		durations = append(durations, s.Duration)
	}
	for _, d := range durations {
		secs, err := strconv.ParseFloat(strings.TrimSpace(d), 64)
		if err == nil && secs > 0 && !math.IsInf(secs, 0) {
			info.Duration = secs
			return info, nil
		}
	}
	return info, ErrNoDuration
}
