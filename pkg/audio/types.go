package audio

import (
	"encoding/binary"
	"time"
)

// Frame is a fixed-length block of signed 16-bit mono samples as delivered by
// a [Source]. Frames are the atomic unit of capture: the VAD scores them one
// at a time and an [Utterance] is an ordered run of them.
//
// A Frame is treated as immutable once captured. Stages hand frames down the
// pipeline without copying, so nobody may write to Samples after Read returns.
type Frame struct {
	// Samples holds mono int16 PCM.
	Samples []int16

	// SampleRate in Hz (16000 or 48000 in practice).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// PCM returns the frame as little-endian int16 bytes.
func (f Frame) PCM() []byte {
	return SamplesToPCM(f.Samples)
}

// Buffer is a block of synthesized audio ready for an [Sink].
type Buffer struct {
	// PCM is little-endian int16 audio.
	PCM []byte

	// SampleRate in Hz of PCM.
	SampleRate int

	// Channels is 1 for mono, 2 for interleaved stereo.
	Channels int
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	samples := len(b.PCM) / 2 / b.Channels
	return time.Duration(samples) * time.Second / time.Duration(b.SampleRate)
}

// Empty reports whether the buffer carries no audio.
func (b Buffer) Empty() bool { return len(b.PCM) < 2 }

// Utterance is one contiguous span of detected speech: the pre-roll frames
// captured just before the speech onset followed by every frame recorded
// until the trailing silence sealed it.
//
// An Utterance is sealed when the detector emits it; consumers must not
// append to or modify Frames.
type Utterance struct {
	// Frames in capture order. The first PreRoll frames came from the
	// pre-buffer.
	Frames []Frame

	// PreRoll is the number of leading frames taken from the pre-buffer.
	PreRoll int

	// SampleRate of every frame in Frames.
	SampleRate int

	// Start is the capture timestamp of the first frame.
	Start time.Duration
}

// Len returns the number of frames.
func (u *Utterance) Len() int { return len(u.Frames) }

// Samples concatenates all frames into one sample slice.
func (u *Utterance) Samples() []int16 {
	n := 0
	for _, f := range u.Frames {
		n += len(f.Samples)
	}
	out := make([]int16, 0, n)
	for _, f := range u.Frames {
		out = append(out, f.Samples...)
	}
	return out
}

// PCM returns the utterance as little-endian int16 bytes.
func (u *Utterance) PCM() []byte {
	return SamplesToPCM(u.Samples())
}

// Duration returns the total audio length of the utterance.
func (u *Utterance) Duration() time.Duration {
	var d time.Duration
	for _, f := range u.Frames {
		d += f.Duration()
	}
	return d
}

// SamplesToPCM encodes int16 samples as little-endian bytes.
func SamplesToPCM(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// PCMToSamples decodes little-endian int16 bytes. A trailing odd byte is
// ignored.
func PCMToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}
