// Package listen turns a stream of scored audio frames into utterance
// boundaries.
//
// The [Detector] is a hysteresis state machine with three states:
//
//	Silence --prob>=start--> Onset --speech confirmed--> Speaking
//	   ^                       |                            |
//	   +------ silence run -----+------ silence run ---------+
//
// Onset is a tentative Speaking state. It holds the seeded utterance until
// enough speech frames arrive to report UtteranceStarted; an utterance that
// never leaves Onset is discarded without any event, so every
// UtteranceStarted is followed by exactly one UtteranceEnded.
//
// A ring of the last PreBufferSize frames is kept at all times so utterances
// include the audio immediately preceding the threshold crossing.
//
// The detector performs no I/O and is not safe for concurrent use; the
// capture loop owns it.
package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/vocalis/internal/observe"
	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/vad"
)

// ErrInvalidFrameSize is returned by [Detector.Feed] and [Detector.Process]
// when a frame does not hold exactly Config.FrameSize samples.
var ErrInvalidFrameSize = errors.New("listen: invalid frame size")

// ErrNoModel is returned by [Detector.Process] when the detector was built
// without [WithModel].
var ErrNoModel = errors.New("listen: no speech probability model configured")

// State is the detector's hysteresis state.
type State int

const (
	// StateSilence means no utterance is open.
	StateSilence State = iota
	// StateOnset means an utterance was seeded but not yet confirmed.
	StateOnset
	// StateSpeaking means UtteranceStarted has been reported.
	StateSpeaking
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StateSilence:
		return "silence"
	case StateOnset:
		return "onset"
	case StateSpeaking:
		return "speaking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EventKind classifies a detector [Event].
type EventKind int

const (
	// EventNone means the frame did not change utterance boundaries.
	EventNone EventKind = iota
	// EventUtteranceStarted is reported once per utterance when speech is
	// confirmed.
	EventUtteranceStarted
	// EventUtteranceEnded carries the sealed utterance.
	EventUtteranceEnded
)

// String implements [fmt.Stringer].
func (k EventKind) String() string {
	switch k {
	case EventNone:
		return "none"
	case EventUtteranceStarted:
		return "utterance_started"
	case EventUtteranceEnded:
		return "utterance_ended"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is the result of feeding one frame.
type Event struct {
	Kind EventKind

	// Utterance is set only for EventUtteranceEnded. It is sealed: the
	// detector never touches it again.
	Utterance *audio.Utterance
}

// Option configures a [Detector].
type Option func(*Detector)

// WithModel sets the speech probability model used by [Detector.Process].
func WithModel(m vad.Model) Option {
	return func(d *Detector) { d.model = m }
}

// WithMetrics records utterance outcomes to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

// WithLogger overrides the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.log = l }
}

// Detector is the streaming utterance detector. Create one with
// [NewDetector].
type Detector struct {
	cfg           Config
	silenceFrames int

	model   vad.Model
	metrics *observe.Metrics
	log     *slog.Logger

	state State
	ring  *audio.FrameRing

	// open utterance
	frames     []audio.Frame
	preRoll    int
	speech     int // frames >= continue threshold, trigger included
	lastSpeech int // index into frames of the newest speech frame
	below      int // consecutive frames < continue threshold
}

// NewDetector validates cfg and returns a detector in [StateSilence].
func NewDetector(cfg Config, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("listen: invalid config: %w", err)
	}
	d := &Detector{
		cfg:           cfg,
		silenceFrames: cfg.SilenceFrames(),
		log:           slog.Default(),
		ring:          audio.NewFrameRing(cfg.PreBufferSize),
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Config returns the detector's configuration.
func (d *Detector) Config() Config { return d.cfg }

// State returns the current hysteresis state.
func (d *Detector) State() State { return d.state }

// Process scores frame with the configured model and feeds the result.
func (d *Detector) Process(ctx context.Context, frame audio.Frame) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if d.model == nil {
		return Event{}, ErrNoModel
	}
	if err := d.checkFrame(frame); err != nil {
		return Event{}, err
	}
	prob, err := d.model.Probability(frame)
	if err != nil {
		return Event{}, fmt.Errorf("listen: score frame: %w", err)
	}
	return d.Feed(frame, prob)
}

// Feed advances the state machine by one frame with the given speech
// probability. Thresholds are inclusive: a probability equal to a threshold
// meets it.
func (d *Detector) Feed(frame audio.Frame, prob float64) (Event, error) {
	if err := d.checkFrame(frame); err != nil {
		return Event{}, err
	}

	if d.state == StateSilence {
		if prob < d.cfg.StartThreshold {
			d.ring.Push(frame)
			return Event{}, nil
		}
		d.open(frame)
		return d.confirm(), nil
	}

	d.ring.Push(frame)
	d.frames = append(d.frames, frame)

	if prob >= d.cfg.ContinueThreshold {
		d.below = 0
		d.speech++
		d.lastSpeech = len(d.frames) - 1
		if d.state == StateOnset {
			return d.confirm(), nil
		}
		return Event{}, nil
	}

	d.below++
	if d.below < d.silenceFrames {
		return Event{}, nil
	}
	return d.seal(), nil
}

// Reset drops any open utterance and the pre-roll, returning to
// [StateSilence]. The model's smoothing state is reset too.
func (d *Detector) Reset() {
	d.clearUtterance()
	d.ring.Clear()
	if d.model != nil {
		d.model.Reset()
	}
}

func (d *Detector) checkFrame(frame audio.Frame) error {
	if len(frame.Samples) != d.cfg.FrameSize {
		return fmt.Errorf("%w: got %d samples, want %d", ErrInvalidFrameSize, len(frame.Samples), d.cfg.FrameSize)
	}
	return nil
}

// open seeds a new utterance from the ring followed by the trigger frame.
func (d *Detector) open(trigger audio.Frame) {
	pre := d.ring.Snapshot()
	d.ring.Push(trigger)

	d.frames = append(pre, trigger)
	d.preRoll = len(pre)
	d.speech = 1
	d.lastSpeech = len(d.frames) - 1
	d.below = 0
	d.state = StateOnset
}

// confirm promotes Onset to Speaking once enough speech has accumulated and
// the utterance is long enough to survive sealing.
func (d *Detector) confirm() Event {
	if d.speech < d.cfg.MinSpeechFrames || len(d.frames) < d.cfg.PreBufferSize+1 {
		return Event{}
	}
	d.state = StateSpeaking
	d.log.Debug("utterance started", "pre_roll", d.preRoll, "start", d.frames[0].Timestamp)
	return Event{Kind: EventUtteranceStarted}
}

// seal closes the open utterance after a full silence run.
func (d *Detector) seal() Event {
	defer d.clearUtterance()

	if d.state != StateSpeaking {
		d.log.Debug("utterance discarded", "frames", len(d.frames), "speech_frames", d.speech)
		if d.metrics != nil {
			d.metrics.RecordUtterance(context.Background(), false, 0)
		}
		return Event{}
	}

	end := min(len(d.frames), d.lastSpeech+1+d.cfg.TrailingSilence)
	frames := make([]audio.Frame, end)
	copy(frames, d.frames[:end])

	u := &audio.Utterance{
		Frames:     frames,
		PreRoll:    d.preRoll,
		SampleRate: d.cfg.SampleRate,
		Start:      frames[0].Timestamp,
	}
	d.log.Debug("utterance ended", "frames", u.Len(), "duration", u.Duration().Round(time.Millisecond))
	if d.metrics != nil {
		d.metrics.RecordUtterance(context.Background(), true, u.Duration())
	}
	return Event{Kind: EventUtteranceEnded, Utterance: u}
}

func (d *Detector) clearUtterance() {
	d.frames = nil
	d.preRoll = 0
	d.speech = 0
	d.lastSpeech = 0
	d.below = 0
	d.state = StateSilence
}
