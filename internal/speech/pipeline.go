// Package speech turns reply text into audible speech.
//
// [Split] breaks a reply into sentence [Unit]s. A [Pipeline] synthesises
// those units on a bounded pool of workers and plays them back through one
// sequencer in strict index order, so the first sentence can play while
// later ones are still being synthesised.
//
//	units --> producer --sem--> workers --publish--> readyQueue --> sequencer --> sink
//
// Units may come from a finished reply ([Pipeline.Speak]) or arrive while
// the reply is still being generated ([Pipeline.SpeakStream],
// [Pipeline.SpeakDeltas]); the producer closes the stream with an end marker
// queued after the last unit.
//
// The semaphore slot taken for a unit is only returned once the sequencer
// has consumed that unit, which bounds in-flight plus ready-but-unplayed
// audio to the worker budget.
package speech

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/vocalis/internal/observe"
	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/tts"
)

// DefaultWorkers is the default synthesis worker budget.
const DefaultWorkers = 3

// Outcome summarises one Speak call.
type Outcome struct {
	// Played is the number of units the sink finished playing.
	Played int
	// Skipped is the number of units dropped because synthesis or playback
	// failed.
	Skipped int
	// Cancelled is true when the call stopped before every unit was
	// handled.
	Cancelled bool
}

// PipelineOption configures a [Pipeline].
type PipelineOption func(*Pipeline)

// WithWorkers sets the maximum number of units synthesised or waiting for
// playback at once. Values below 1 are ignored. Default: 3.
func WithWorkers(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithSentenceGap inserts silence between consecutive units.
func WithSentenceGap(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.gap = d }
}

// WithHardStop makes cancellation interrupt the buffer currently playing
// (via [audio.Sink.Stop] and a cancelled play context) instead of letting it
// finish.
func WithHardStop() PipelineOption {
	return func(p *Pipeline) { p.hardStop = true }
}

// WithVoice sets the voice passed to the synthesizer.
func WithVoice(v tts.VoiceProfile) PipelineOption {
	return func(p *Pipeline) { p.voice = v }
}

// WithMetrics records synthesis latency, time-to-first-audio and skipped
// units to m.
func WithMetrics(m *observe.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger overrides the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = l }
}

// Pipeline overlaps synthesis with ordered playback. It owns the sink for
// the duration of a Speak call. A Pipeline may be reused for successive
// replies but runs only one Speak at a time.
type Pipeline struct {
	synth    tts.Synthesizer
	sink     audio.Sink
	workers  int
	gap      time.Duration
	hardStop bool
	voice    tts.VoiceProfile
	metrics  *observe.Metrics
	log      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc // non-nil while Speak runs
}

// NewPipeline returns a pipeline that synthesises with synth and plays
// through sink.
func NewPipeline(synth tts.Synthesizer, sink audio.Sink, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		synth:   synth,
		sink:    sink,
		workers: DefaultWorkers,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SetVoice replaces the voice used for subsequent Speak calls.
func (p *Pipeline) SetVoice(v tts.VoiceProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voice = v
}

// SpeakText preprocesses and splits text, then speaks the units.
func (p *Pipeline) SpeakText(ctx context.Context, text string) (Outcome, error) {
	return p.Speak(ctx, Split(Preprocess(text)))
}

// Cancel stops the running Speak call, if any. The unit currently playing
// finishes unless [WithHardStop] was set; nothing after it is played and all
// pending synthesis is discarded. Calling Cancel more than once, or with
// nothing running, is harmless.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if p.hardStop {
		p.sink.Stop()
	}
}

// Speak synthesises units concurrently and plays them in order. It returns
// when every unit was played or skipped, or when the call is cancelled by
// [Pipeline.Cancel] or ctx. Synthesis and playback failures skip the unit
// and never abort the reply. The returned error is non-nil only when ctx
// ended the call or another Speak is running.
func (p *Pipeline) Speak(ctx context.Context, units []Unit) (Outcome, error) {
	if len(units) == 0 {
		return Outcome{}, nil
	}
	ch := make(chan Unit, len(units))
	for _, u := range units {
		ch <- u
	}
	close(ch)
	return p.SpeakStream(ctx, ch)
}

// SpeakDeltas speaks text that arrives in pieces on deltas, starting with
// the first complete sentence while later ones are still being written. It
// returns once deltas is closed and everything was played, or on
// cancellation. The caller must close deltas; pieces sent after an early
// return are drained and dropped.
func (p *Pipeline) SpeakDeltas(ctx context.Context, deltas <-chan string) (Outcome, error) {
	segCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	units := make(chan Unit)
	go func() {
		defer close(units)
		var seg Segmenter
		send := func(us []Unit) bool {
			for _, u := range us {
				select {
				case units <- u:
				case <-segCtx.Done():
					return false
				}
			}
			return true
		}
		for d := range deltas {
			if !send(seg.Feed(d)) {
				for range deltas {
				}
				return
			}
		}
		send(seg.Flush())
	}()
	return p.SpeakStream(ctx, units)
}

// SpeakStream is [Pipeline.Speak] for units that are not all known yet. Units
// are played in arrival order; the call ends when units is closed and
// everything received was handled.
func (p *Pipeline) SpeakStream(ctx context.Context, units <-chan Unit) (Outcome, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return Outcome{}, ErrBusy
	}
	p.cancel = cancel
	voice := p.voice
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.cancel = nil
		p.mu.Unlock()
	}()

	runCtx, span := observe.StartSpan(runCtx, "speech.speak")
	defer span.End()

	queue := newReadyQueue(p.workers)
	sem := semaphore.NewWeighted(int64(p.workers))

	produced := 0
	var g errgroup.Group
	g.Go(func() error {
		complete := false
		defer func() { queue.publish(job{seq: produced, end: true, complete: complete}) }()
		for {
			var (
				u  Unit
				ok bool
			)
			select {
			case u, ok = <-units:
			case <-runCtx.Done():
				return nil
			}
			if !ok {
				complete = true
				return nil
			}
			if err := sem.Acquire(runCtx, 1); err != nil {
				return nil
			}
			seq := produced
			g.Go(func() error {
				queue.publish(p.synthesize(runCtx, seq, u, voice))
				return nil
			})
			produced++
		}
	})

	out := p.sequence(runCtx, queue, sem)

	// Stop the producer and any in-flight synthesis, then drop their
	// results.
	cancel()
	_ = g.Wait()
	if n := queue.discard(); n > 0 {
		p.log.Debug("speech: discarded pending units", "count", n)
	}

	span.SetAttributes(
		attribute.Int("speech.units", produced),
		attribute.Int("speech.played", out.Played),
		attribute.Int("speech.skipped", out.Skipped),
		attribute.Bool("speech.cancelled", out.Cancelled),
	)
	if out.Cancelled && ctx.Err() != nil {
		return out, ctx.Err()
	}
	return out, nil
}

// synthesize runs one synthesis call and wraps the result as a job.
func (p *Pipeline) synthesize(ctx context.Context, seq int, u Unit, voice tts.VoiceProfile) job {
	start := time.Now()
	buf, err := p.synth.Synthesize(ctx, u.Text, voice)
	if p.metrics != nil && err == nil {
		p.metrics.TTSDuration.Record(ctx, observe.Since(start))
	}
	if err == nil && buf.Empty() {
		err = tts.ErrEmptyText
	}
	return job{seq: seq, unit: u, audio: buf, err: err}
}

// sequence plays jobs in order until the producer's end marker or until ctx
// ends.
func (p *Pipeline) sequence(ctx context.Context, queue *readyQueue, sem *semaphore.Weighted) Outcome {
	var out Outcome
	start := time.Now()
	heard := false

	for seq := 0; ; seq++ {
		j, ok := queue.wait(seq, ctx.Done())
		if !ok {
			out.Cancelled = true
			return out
		}
		if j.end {
			out.Cancelled = !j.complete
			return out
		}
		sem.Release(1)

		if j.err != nil {
			if ctx.Err() != nil {
				out.Cancelled = true
				return out
			}
			out.Skipped++
			p.skip(ctx, "synthesis", &SynthesisError{Unit: j.unit, Err: j.err})
			continue
		}
		if ctx.Err() != nil {
			out.Cancelled = true
			return out
		}

		if p.gap > 0 && heard {
			t := time.NewTimer(p.gap)
			select {
			case <-ctx.Done():
				t.Stop()
				out.Cancelled = true
				return out
			case <-t.C:
			}
		}

		if !heard && p.metrics != nil {
			p.metrics.TimeToFirstAudio.Record(ctx, observe.Since(start))
		}
		heard = true

		playCtx := context.WithoutCancel(ctx)
		if p.hardStop {
			playCtx = ctx
		}
		if err := p.sink.Play(playCtx, j.audio); err != nil {
			if ctx.Err() != nil {
				out.Cancelled = true
				return out
			}
			out.Skipped++
			p.skip(ctx, "playback", &PlaybackError{Unit: j.unit, Err: err})
			continue
		}
		out.Played++

		if ctx.Err() != nil {
			// Cancelled during the last unit: the reply was still heard in full.
			next, ok := queue.take(seq + 1)
			out.Cancelled = !ok || !next.end || !next.complete
			return out
		}
	}
}

func (p *Pipeline) skip(ctx context.Context, reason string, err error) {
	p.log.Warn("speech: skipping unit", "reason", reason, "err", err)
	if p.metrics != nil {
		p.metrics.RecordSkippedUnit(ctx, reason)
	}
}
