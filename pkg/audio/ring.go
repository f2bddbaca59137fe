package audio

// FrameRing is a fixed-capacity ring of the most recent frames. Pushing into
// a full ring overwrites the oldest frame. The zero value is unusable; create
// one with [NewFrameRing].
//
// FrameRing is not safe for concurrent use.
type FrameRing struct {
	buf  []Frame
	head int // next write position
	n    int // frames currently held
}

// NewFrameRing returns an empty ring holding at most capacity frames. A
// capacity below zero is treated as zero.
func NewFrameRing(capacity int) *FrameRing {
	return &FrameRing{buf: make([]Frame, max(capacity, 0))}
}

// Push appends f, evicting the oldest frame when the ring is full.
func (r *FrameRing) Push(f Frame) {
	if len(r.buf) == 0 {
		return
	}
	r.buf[r.head] = f
	r.head = (r.head + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

// Snapshot returns the held frames oldest first. The returned slice is a
// copy; later pushes do not affect it.
func (r *FrameRing) Snapshot() []Frame {
	out := make([]Frame, r.n)
	start := (r.head - r.n + len(r.buf)) % max(len(r.buf), 1)
	for i := range r.n {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// Len reports how many frames the ring holds.
func (r *FrameRing) Len() int { return r.n }

// Cap reports the ring capacity.
func (r *FrameRing) Cap() int { return len(r.buf) }

// Clear drops all held frames.
func (r *FrameRing) Clear() {
	clear(r.buf)
	r.head, r.n = 0, 0
}
