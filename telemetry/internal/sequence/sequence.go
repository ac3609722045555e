package sequence

import (
	"encoding/json"
)

// Kind tags which variant a Frame carries.
type Kind int

const (
	KindTargetWeight Kind = iota
	KindSample
	KindFinalize
)

// Frame is one unit of telemetry. Exactly one variant is populated, selected
// by Kind; MarshalJSON emits only that variant's keys.
type Frame struct {
	Kind         Kind
	TargetWeight float64
	Seconds      int
	Weight       float64
}

// TargetWeight returns the frame that opens a grind graph.
func TargetWeight(v float64) Frame {
	return Frame{Kind: KindTargetWeight, TargetWeight: v}
}

// Sample returns a single (seconds, weight) reading.
func Sample(seconds int, weight float64) Frame {
	return Frame{Kind: KindSample, Seconds: seconds, Weight: weight}
}

// Finalize returns the frame that closes a grind graph.
func Finalize() Frame {
	return Frame{Kind: KindFinalize}
}

type targetWeightWire struct {
	TargetWeight float64 `json:"target_weight"`
}

type sampleWire struct {
	Seconds int     `json:"seconds"`
	Weight  float64 `json:"weight"`
}

type finalizeWire struct {
	Finalize bool `json:"finalize"`
}

// MarshalJSON implements json.Marshaler.
func (f Frame) MarshalJSON() ([]byte, error) {
	switch f.Kind {
	case KindTargetWeight:
		return json.Marshal(targetWeightWire{TargetWeight: f.TargetWeight})
	case KindSample:
		return json.Marshal(sampleWire{Seconds: f.Seconds, Weight: f.Weight})
	default:
		return json.Marshal(finalizeWire{Finalize: true})
	}
}

// Sequence is an ordered, read-only list of frames.
type Sequence struct {
	frames []Frame
}

// Default returns the 13-frame grind: target 9.5g, samples 0..10 with
// weight == seconds, then finalize.
func Default() *Sequence {
	frames := make([]Frame, 0, 13)
	frames = append(frames, TargetWeight(9.5))
	for s := 0; s <= 10; s++ {
		frames = append(frames, Sample(s, float64(s)))
	}
	frames = append(frames, Finalize())
	return &Sequence{frames: frames}
}

// Len returns the number of frames in the sequence.
func (s *Sequence) Len() int { return len(s.frames) }

// At returns the frame at index i.
func (s *Sequence) At(i int) Frame { return s.frames[i] }

// Frames returns a copy of the frames in order.
func (s *Sequence) Frames() []Frame {
	out := make([]Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// Cursor walks a Sequence, wrapping to the start after the last frame.
// A Cursor is owned by one connection and is not safe for concurrent use.
type Cursor struct {
	seq *Sequence
	pos int
}

// NewCursor returns a cursor positioned at the first frame of seq.
func NewCursor(seq *Sequence) *Cursor {
	return &Cursor{seq: seq}
}

// Current returns the frame under the cursor.
func (c *Cursor) Current() Frame { return c.seq.At(c.pos) }

// Pos returns the current index.
func (c *Cursor) Pos() int { return c.pos }

// Advance moves to the next frame and reports whether the cursor wrapped
// back to index 0.
func (c *Cursor) Advance() (wrapped bool) {
	c.pos = (c.pos + 1) % c.seq.Len()
	return c.pos == 0
}
