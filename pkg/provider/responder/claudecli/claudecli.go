// Package claudecli answers prompts by running the claude command-line tool.
//
// Each prompt is one subprocess:
//
//	claude --print --output-format json [--resume <id>] <prompt>
//
// run inside a context directory. The session ID from the JSON result is
// written to <dir>/.session_id so the next prompt (or the next process) can
// resume the conversation. On cancellation the subprocess gets SIGTERM and,
// after a grace period, SIGKILL.
package claudecli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/MrWong99/vocalis/pkg/provider/responder"
)

const (
	defaultBinary     = "claude"
	defaultContextDir = ".context"
	defaultKillGrace  = 2 * time.Second

	sessionFileName = ".session_id"
)

var _ responder.Responder = (*Responder)(nil)

// Option configures a Responder.
type Option func(*Responder)

// WithBinary sets the executable name or path. Defaults to "claude".
func WithBinary(path string) Option {
	return func(r *Responder) { r.binary = path }
}

// WithContextDir sets the working directory holding .session_id and any
// CLAUDE.md profile. Defaults to ".context".
func WithContextDir(dir string) Option {
	return func(r *Responder) { r.dir = dir }
}

// WithArgs appends extra flags before the prompt (e.g., "--model", "sonnet").
func WithArgs(args ...string) Option {
	return func(r *Responder) { r.args = append(r.args, args...) }
}

// WithKillGrace sets how long a cancelled subprocess may take to exit after
// SIGTERM before it is killed. Defaults to 2 s.
func WithKillGrace(d time.Duration) Option {
	return func(r *Responder) { r.grace = d }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(r *Responder) { r.log = l }
}

// WithFs sets the filesystem holding the session file. Defaults to the OS
// filesystem. The subprocess always runs in the context directory on disk.
func WithFs(fsys afero.Fs) Option {
	return func(r *Responder) { r.fs = fsys }
}

// Responder runs the claude CLI. Prompts are serialised: the CLI keeps its
// own per-session state on disk and concurrent resumes of one session race.
type Responder struct {
	binary string
	dir    string
	args   []string
	grace  time.Duration
	fs     afero.Fs
	log    *slog.Logger

	mu sync.Mutex
}

// New returns a Responder.
func New(opts ...Option) *Responder {
	r := &Responder{
		binary: defaultBinary,
		dir:    defaultContextDir,
		grace:  defaultKillGrace,
		fs:     afero.NewOsFs(),
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With("component", "claudecli")
	return r
}

// result is the subset of the CLI's JSON output we use.
type result struct {
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
	IsError   bool   `json:"is_error"`
}

// Respond implements [responder.Responder].
func (r *Responder) Respond(ctx context.Context, text string, sc responder.SessionContext) (responder.Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return responder.Reply{Context: sc}, errors.New("claudecli: empty prompt")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.fs.MkdirAll(r.dir, 0o755); err != nil {
		return responder.Reply{Context: sc}, fmt.Errorf("claudecli: create context dir: %w", err)
	}
	sessionFile := filepath.Join(r.dir, sessionFileName)

	id := sc.ID
	if sc.Reset {
		id = ""
		if err := r.fs.Remove(sessionFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			r.log.Warn("remove session file", "path", sessionFile, "err", err)
		}
	} else if id == "" {
		if b, err := afero.ReadFile(r.fs, sessionFile); err == nil {
			id = strings.TrimSpace(string(b))
		}
	}

	args := []string{"--print", "--output-format", "json"}
	args = append(args, r.args...)
	if id != "" {
		args = append(args, "--resume", id)
		r.log.Debug("resuming session", "session_id", id)
	} else {
		r.log.Debug("starting new session")
	}
	args = append(args, text)

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = r.dir
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = r.grace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	keep := responder.SessionContext{ID: id}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return responder.Reply{Context: keep}, fmt.Errorf("%w: %w", responder.ErrCancelled, ctxErr)
	}
	if runErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "unknown error"
		}
		return responder.Reply{Context: keep}, fmt.Errorf("claudecli: %s: %w", msg, runErr)
	}

	out := strings.TrimSpace(stdout.String())
	var res result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		// Older CLI versions print plain text.
		if out == "" {
			return responder.Reply{Context: keep}, responder.ErrEmptyReply
		}
		return responder.Reply{Text: out, Context: keep}, nil
	}
	if res.IsError {
		return responder.Reply{Context: keep}, fmt.Errorf("claudecli: %s", strings.TrimSpace(res.Result))
	}

	if res.SessionID != "" {
		if err := afero.WriteFile(r.fs, sessionFile, []byte(res.SessionID), 0o600); err != nil {
			r.log.Warn("persist session id", "path", sessionFile, "err", err)
		}
		keep.ID = res.SessionID
	}

	reply := strings.TrimSpace(res.Result)
	if reply == "" {
		return responder.Reply{Context: keep}, responder.ErrEmptyReply
	}
	return responder.Reply{Text: reply, Context: keep}, nil
}
