package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/stt"
)

// TranscriberFallback implements [stt.Transcriber] with failover across
// several speech-to-text backends.
//
// [stt.ErrEmptyTranscript] is an answer, not an outage: it is returned as-is
// and does not move on to the next backend.
type TranscriberFallback struct {
	group[stt.Transcriber]
}

var _ stt.Transcriber = (*TranscriberFallback)(nil)

// NewTranscriberFallback creates a [TranscriberFallback] with primary as the
// preferred backend.
func NewTranscriberFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	cfg.CircuitBreaker.IsFailure = notAnswer(cfg.CircuitBreaker.IsFailure, stt.ErrEmptyTranscript)
	return &TranscriberFallback{group[stt.Transcriber]{NewFallbackGroup(primary, primaryName, cfg)}}
}

// Transcribe returns the text of u from the first healthy backend.
func (f *TranscriberFallback) Transcribe(ctx context.Context, u *audio.Utterance) (string, error) {
	return ExecuteWithResult(f.fg, func(t stt.Transcriber) (string, error) {
		return t.Transcribe(ctx, u)
	})
}

// notAnswer extends isFailure so that errors matching any of answers are
// treated like results rather than failures.
func notAnswer(isFailure func(error) bool, answers ...error) func(error) bool {
	if isFailure == nil {
		isFailure = func(err error) bool { return !CallerAborted(err) }
	}
	return func(err error) bool {
		for _, a := range answers {
			if errors.Is(err, a) {
				return false
			}
		}
		return isFailure(err)
	}
}
