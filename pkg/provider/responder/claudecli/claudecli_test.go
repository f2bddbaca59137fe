package claudecli_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/MrWong99/vocalis/pkg/provider/responder"
	"github.com/MrWong99/vocalis/pkg/provider/responder/claudecli"
)

// fakeCLI writes an executable shell script standing in for the claude
// binary. Every invocation appends its arguments, one per line followed by a
// "--" separator, to args.log in the working directory.
func fakeCLI(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "claude")
	script := "#!/bin/sh\nfor a in \"$@\"; do echo \"$a\" >> args.log; done\necho -- >> args.log\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake cli: %v", err)
	}
	return path
}

// invocations splits args.log into one argument list per call.
func invocations(t *testing.T, dir string) [][]string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, "args.log"))
	if err != nil {
		t.Fatalf("read args.log: %v", err)
	}
	var out [][]string
	var cur []string
	for _, line := range strings.Split(strings.TrimRight(string(b), "\n"), "\n") {
		if line == "--" {
			out = append(out, cur)
			cur = nil
			continue
		}
		cur = append(cur, line)
	}
	return out
}

func contains(args []string, want ...string) bool {
	for i := 0; i+len(want) <= len(args); i++ {
		match := true
		for j, w := range want {
			if args[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func TestRespond_NewSessionThenResume(t *testing.T) {
	t.Parallel()
	bin := fakeCLI(t, `echo '{"type":"result","result":"  It is noon. ","session_id":"abc-123"}'`)
	dir := t.TempDir()
	r := claudecli.New(claudecli.WithBinary(bin), claudecli.WithContextDir(dir))

	reply, err := r.Respond(context.Background(), "what time is it", responder.SessionContext{})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Text != "It is noon." {
		t.Errorf("Text = %q, want %q", reply.Text, "It is noon.")
	}
	if reply.Context.ID != "abc-123" {
		t.Errorf("Context.ID = %q, want abc-123", reply.Context.ID)
	}
	saved, _ := os.ReadFile(filepath.Join(dir, ".session_id"))
	if string(saved) != "abc-123" {
		t.Errorf(".session_id = %q, want abc-123", saved)
	}

	// A fresh responder picks the persisted id up from disk.
	r2 := claudecli.New(claudecli.WithBinary(bin), claudecli.WithContextDir(dir), claudecli.WithArgs("--model", "sonnet"))
	if _, err := r2.Respond(context.Background(), "and tomorrow?", responder.SessionContext{}); err != nil {
		t.Fatalf("second Respond: %v", err)
	}

	calls := invocations(t, dir)
	if len(calls) != 2 {
		t.Fatalf("invocations = %d, want 2", len(calls))
	}
	if !contains(calls[0], "--print", "--output-format", "json") || contains(calls[0], "--resume") {
		t.Errorf("first call args = %q", calls[0])
	}
	if calls[0][len(calls[0])-1] != "what time is it" {
		t.Errorf("prompt must be the last argument: %q", calls[0])
	}
	if !contains(calls[1], "--resume", "abc-123") || !contains(calls[1], "--model", "sonnet") {
		t.Errorf("second call args = %q", calls[1])
	}
}

func TestRespond_ResetDropsSession(t *testing.T) {
	t.Parallel()
	bin := fakeCLI(t, `echo '{"result":"Fresh start.","session_id":"new-id"}'`)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".session_id"), []byte("old-id"), 0o600); err != nil {
		t.Fatal(err)
	}
	r := claudecli.New(claudecli.WithBinary(bin), claudecli.WithContextDir(dir))

	reply, err := r.Respond(context.Background(), "hello", responder.SessionContext{ID: "old-id", Reset: true})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Context.ID != "new-id" || reply.Context.Reset {
		t.Errorf("Context = %+v, want ID new-id without Reset", reply.Context)
	}
	if calls := invocations(t, dir); contains(calls[0], "--resume") {
		t.Errorf("reset call must not resume: %q", calls[0])
	}
}

func TestRespond_PlainTextOutput(t *testing.T) {
	t.Parallel()
	bin := fakeCLI(t, `echo 'Just text.'`)
	r := claudecli.New(claudecli.WithBinary(bin), claudecli.WithContextDir(t.TempDir()))
	reply, err := r.Respond(context.Background(), "hi", responder.SessionContext{ID: "keep"})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Text != "Just text." || reply.Context.ID != "keep" {
		t.Errorf("reply = %+v", reply)
	}
}

func TestRespond_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		body    string
		wantErr error
		wantMsg string
	}{
		{"non-zero exit", "echo 'not logged in' >&2; exit 3", nil, "not logged in"},
		{"error result", `echo '{"result":"rate limited","is_error":true}'`, nil, "rate limited"},
		{"empty result", `echo '{"result":"","session_id":"x"}'`, responder.ErrEmptyReply, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			bin := fakeCLI(t, tt.body)
			r := claudecli.New(claudecli.WithBinary(bin), claudecli.WithContextDir(t.TempDir()))
			_, err := r.Respond(context.Background(), "hi", responder.SessionContext{})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("err = %v, want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestRespond_EmptyPrompt(t *testing.T) {
	t.Parallel()
	r := claudecli.New(claudecli.WithBinary("/nonexistent"), claudecli.WithContextDir(t.TempDir()))
	if _, err := r.Respond(context.Background(), "   ", responder.SessionContext{}); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestRespond_CancelTerminatesProcess(t *testing.T) {
	t.Parallel()
	bin := fakeCLI(t, "exec sleep 30")
	r := claudecli.New(
		claudecli.WithBinary(bin),
		claudecli.WithContextDir(t.TempDir()),
		claudecli.WithKillGrace(500*time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	reply, err := r.Respond(ctx, "tell me a long story", responder.SessionContext{ID: "s-1"})
	if !errors.Is(err, responder.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want it to wrap the context error", err)
	}
	if reply.Context.ID != "s-1" {
		t.Errorf("cancelled reply must keep the session: %+v", reply.Context)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Respond took %v after cancellation", elapsed)
	}
}

func TestRespond_SessionFileOnFs(t *testing.T) {
	t.Parallel()
	bin := fakeCLI(t, `echo '{"result":"Hi.","session_id":"mem-id"}'`)
	dir := t.TempDir()
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, filepath.Join(dir, ".session_id"), []byte("stored-id\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	r := claudecli.New(claudecli.WithBinary(bin), claudecli.WithContextDir(dir), claudecli.WithFs(fsys))

	reply, err := r.Respond(context.Background(), "hello", responder.SessionContext{})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Context.ID != "mem-id" {
		t.Errorf("Context.ID = %q, want mem-id", reply.Context.ID)
	}
	if calls := invocations(t, dir); !contains(calls[0], "--resume", "stored-id") {
		t.Errorf("args = %q, want resume of the stored id", calls[0])
	}
	if saved, _ := afero.ReadFile(fsys, filepath.Join(dir, ".session_id")); string(saved) != "mem-id" {
		t.Errorf("session file on fs = %q, want mem-id", saved)
	}
	if _, err := os.Stat(filepath.Join(dir, ".session_id")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("session file written to disk: %v", err)
	}

	if _, err := r.Respond(context.Background(), "again", responder.SessionContext{Reset: true}); err != nil {
		t.Fatalf("reset Respond: %v", err)
	}
	if calls := invocations(t, dir); contains(calls[1], "--resume") {
		t.Errorf("reset call must not resume: %q", calls[1])
	}
}
