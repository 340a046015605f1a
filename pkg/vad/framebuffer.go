package vad

import "time"

// Frame is one frame-aligned slice produced by a [FrameBuffer].
type Frame struct {
	Data      []byte
	Timestamp time.Duration
}

// FrameBuffer accumulates arbitrarily sized PCM chunks and hands out whole
// frames, so that callers whose transport does not respect frame boundaries
// can still feed a [Detector].
type FrameBuffer struct {
	frameBytes int
	frameDur   time.Duration

	pending []byte
	next    time.Duration
}

// NewFrameBuffer creates a buffer producing frames sized for cfg.
func NewFrameBuffer(cfg Config) *FrameBuffer {
	return &FrameBuffer{
		frameBytes: cfg.FrameBytes(),
		frameDur:   cfg.FrameDuration(),
	}
}

// Write appends data captured at ts and returns every frame that is now
// complete. Frame timestamps continue from the first byte still pending; ts
// only takes effect when nothing is pending. The returned frames do not alias
// data.
func (b *FrameBuffer) Write(data []byte, ts time.Duration) []Frame {
	if len(b.pending) == 0 {
		b.next = ts
	}
	b.pending = append(b.pending, data...)

	n := len(b.pending) / b.frameBytes
	if n == 0 {
		return nil
	}
	frames := make([]Frame, n)
	whole := make([]byte, n*b.frameBytes)
	copy(whole, b.pending)
	for i := range frames {
		frames[i] = Frame{
			Data:      whole[i*b.frameBytes : (i+1)*b.frameBytes : (i+1)*b.frameBytes],
			Timestamp: b.next,
		}
		b.next += b.frameDur
	}
	b.pending = append(b.pending[:0], b.pending[n*b.frameBytes:]...)
	return frames
}

// Pending returns the number of buffered bytes short of a whole frame.
func (b *FrameBuffer) Pending() int { return len(b.pending) }

// Reset drops any pending bytes.
func (b *FrameBuffer) Reset() {
	b.pending = b.pending[:0]
	b.next = 0
}
