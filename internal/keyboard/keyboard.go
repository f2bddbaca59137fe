// Package keyboard turns terminal key presses into session control.
//
// ESC cancels whatever the active session is doing. The terminal is put into
// raw mode while a [Listener] runs, which swallows the SIGINT that Ctrl+C
// would normally raise, so Ctrl+C is delivered to an interrupt callback
// instead.
package keyboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	term "github.com/eiannone/keyboard"
)

const keyBuffer = 16

// Source yields key events. The default reads the process terminal.
type Source interface {
	Keys(bufferSize int) (<-chan term.KeyEvent, error)
	Close() error
}

type terminal struct{}

func (terminal) Keys(n int) (<-chan term.KeyEvent, error) { return term.GetKeys(n) }
func (terminal) Close() error                              { return term.Close() }

// Option configures a [Listener].
type Option func(*Listener)

// WithSource replaces the terminal key source.
func WithSource(src Source) Option {
	return func(l *Listener) { l.src = src }
}

// WithInterrupt sets the callback for Ctrl+C.
func WithInterrupt(fn func()) Option {
	return func(l *Listener) { l.interrupt = fn }
}

// WithLogger overrides the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(l *Listener) { l.log = log }
}

// Listener dispatches ESC to the bound cancel target.
type Listener struct {
	src       Source
	interrupt func()
	log       *slog.Logger

	mu     sync.Mutex
	target func()
	bound  *func()
}

// New returns a Listener reading the terminal unless [WithSource] is given.
func New(opts ...Option) *Listener {
	l := &Listener{src: terminal{}, log: slog.Default()}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Bind makes fn the target of the next ESC press, replacing any previous
// target. The returned func unbinds fn if it is still the target.
func (l *Listener) Bind(fn func()) (unbind func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.target = fn
	id := &fn
	l.bound = id
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.bound == id {
			l.target = nil
			l.bound = nil
		}
	}
}

// Run reads keys until ctx is done or the source closes its channel.
func (l *Listener) Run(ctx context.Context) error {
	events, err := l.src.Keys(keyBuffer)
	if err != nil {
		return fmt.Errorf("keyboard: open: %w", err)
	}
	defer func() {
		if err := l.src.Close(); err != nil {
			l.log.Warn("keyboard: close failed", "err", err)
		}
	}()
	l.log.Info("press ESC to cancel")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Err != nil {
				if errors.Is(ev.Err, context.Canceled) {
					return nil
				}
				l.log.Warn("keyboard: read key failed", "err", ev.Err)
				continue
			}
			l.dispatch(ev.Key)
		}
	}
}

func (l *Listener) dispatch(key term.Key) {
	switch key {
	case term.KeyEsc:
		l.mu.Lock()
		fn := l.target
		l.mu.Unlock()
		if fn == nil {
			l.log.Debug("keyboard: ESC with no active session")
			return
		}
		l.log.Info("keyboard: ESC pressed, cancelling")
		fn()
	case term.KeyCtrlC:
		if l.interrupt != nil {
			l.interrupt()
		}
	}
}
