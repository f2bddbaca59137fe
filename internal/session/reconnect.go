package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/vocalis/pkg/audio"
)

// ErrReconnectFailed is returned by [Reconnector.Reopen] when every attempt
// failed.
var ErrReconnectFailed = errors.New("session: audio source reconnection failed")

// Opener opens the capture device.
type Opener func(ctx context.Context) (audio.Source, error)

// ReconnectorConfig configures a [Reconnector]. Zero fields take defaults.
type ReconnectorConfig struct {
	// Open creates a new source. Required.
	Open Opener

	// MaxRetries bounds the attempts of one Reopen call. Default: 10.
	MaxRetries int

	// Backoff is the wait after the first failed attempt. It doubles after
	// every further failure, capped at MaxBackoff. Defaults: 1s and 30s.
	Backoff    time.Duration
	MaxBackoff time.Duration

	// OnReconnect receives every reopened source. Optional.
	OnReconnect func(audio.Source)

	Logger *slog.Logger
}

func (c *ReconnectorConfig) setDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 10
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.MaxBackoff < c.Backoff {
		c.MaxBackoff = c.Backoff
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Reconnector owns the capture [audio.Source] and reopens it after a read
// error, e.g. when a USB microphone was unplugged and plugged back in.
//
// The capture loop takes the first source from [Reconnector.Connect] and
// calls [Reconnector.Reopen] whenever a read fails. All methods are safe for
// concurrent use.
type Reconnector struct {
	cfg ReconnectorConfig

	mu      sync.Mutex
	src     audio.Source
	stopped chan struct{}
	stop    sync.Once
}

// NewReconnector returns a Reconnector with no source open yet.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	cfg.setDefaults()
	return &Reconnector{cfg: cfg, stopped: make(chan struct{})}
}

// Connect opens the initial source.
func (r *Reconnector) Connect(ctx context.Context) (audio.Source, error) {
	if r.cfg.Open == nil {
		return nil, errors.New("session: reconnector has no opener")
	}
	src, err := r.cfg.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: open audio source: %w", err)
	}
	r.swap(src)
	return src, nil
}

// Reopen closes the current source and opens a new one with exponential
// backoff between attempts. It fails with ctx's error, with
// [audio.ErrClosed] after Stop, or with [ErrReconnectFailed] once
// MaxRetries attempts failed.
func (r *Reconnector) Reopen(ctx context.Context) (audio.Source, error) {
	// The device must be released before it can be claimed again.
	if old := r.swap(nil); old != nil {
		_ = old.Close()
	}

	var lastErr error
	for attempt, wait := range r.schedule() {
		if err := r.interrupted(ctx); err != nil {
			return nil, err
		}
		src, err := r.cfg.Open(ctx)
		if err == nil {
			r.swap(src)
			r.cfg.Logger.Info("audio source reopened", "attempt", attempt)
			if r.cfg.OnReconnect != nil {
				r.cfg.OnReconnect(src)
			}
			return src, nil
		}
		lastErr = err
		r.cfg.Logger.Warn("reopen audio source failed", "attempt", attempt, "retry_in", wait, "err", err)
		if attempt == r.cfg.MaxRetries {
			break
		}
		if err := r.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	r.cfg.Logger.Error("giving up on audio source", "attempts", r.cfg.MaxRetries)
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrReconnectFailed, r.cfg.MaxRetries, lastErr)
}

// schedule yields each attempt number with the wait that follows it.
func (r *Reconnector) schedule() iter.Seq2[int, time.Duration] {
	return func(yield func(int, time.Duration) bool) {
		wait := r.cfg.Backoff
		for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
			if !yield(attempt, wait) {
				return
			}
			wait = min(2*wait, r.cfg.MaxBackoff)
		}
	}
}

func (r *Reconnector) interrupted(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return audio.ErrClosed
	default:
		return nil
	}
}

func (r *Reconnector) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return audio.ErrClosed
	case <-t.C:
		return nil
	}
}

// swap installs src and returns the previous source.
func (r *Reconnector) swap(src audio.Source) audio.Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.src
	r.src = src
	return old
}

// Source returns the current source, or nil while reopening.
func (r *Reconnector) Source() audio.Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src
}

// Stop aborts a running Reopen and closes the current source. Further
// calls are no-ops.
func (r *Reconnector) Stop() error {
	r.stop.Do(func() { close(r.stopped) })
	if src := r.swap(nil); src != nil {
		return src.Close()
	}
	return nil
}
