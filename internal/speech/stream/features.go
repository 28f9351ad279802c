package stream

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrFramesUnavailable is returned when a read reaches past the frames
	// accepted so far.
	ErrFramesUnavailable = errors.New("feature frames not available")
	// ErrInputFinished is returned when frames arrive after InputFinished.
	ErrInputFinished = errors.New("input already finished")
)

// FeatureSource is the per-stream feature buffer filled by the feature
// extractor. Frame indices are absolute from the start of the stream.
type FeatureSource interface {
	FeatureDim() int
	FramesReady() int
	// Frames returns count frames starting at start, flattened row-major.
	Frames(start, count int) ([]float32, error)
	IsFinished() bool
}

// FeatureBuffer is an append-only in-memory FeatureSource. It is safe for
// one writer and concurrent readers.
type FeatureBuffer struct {
	dim int

	mu       sync.RWMutex
	data     []float32
	finished bool
}

var _ FeatureSource = (*FeatureBuffer)(nil)

// NewFeatureBuffer creates an empty buffer of dim-wide frames.
func NewFeatureBuffer(dim int) *FeatureBuffer {
	return &FeatureBuffer{dim: dim}
}

// FeatureDim returns the width of one frame.
func (b *FeatureBuffer) FeatureDim() int { return b.dim }

// AcceptFrames appends whole frames.
func (b *FeatureBuffer) AcceptFrames(frames []float32) error {
	if b.dim <= 0 || len(frames)%b.dim != 0 {
		return fmt.Errorf("got %d values, not a multiple of feature dim %d", len(frames), b.dim)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished {
		return ErrInputFinished
	}
	b.data = append(b.data, frames...)
	return nil
}

// InputFinished marks the end of the input. Later AcceptFrames calls fail.
func (b *FeatureBuffer) InputFinished() {
	b.mu.Lock()
	b.finished = true
	b.mu.Unlock()
}

// PadTail appends n zero frames once the input has finished, so the last
// partial chunk can be decoded. It returns false before InputFinished.
func (b *FeatureBuffer) PadTail(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.finished {
		return false
	}
	if n > 0 {
		b.data = append(b.data, make([]float32, n*b.dim)...)
	}
	return true
}

// IsFinished reports whether InputFinished has been called.
func (b *FeatureBuffer) IsFinished() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.finished
}

// FramesReady counts the whole frames buffered so far.
func (b *FeatureBuffer) FramesReady() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.dim <= 0 {
		return 0
	}
	return len(b.data) / b.dim
}

// Frames copies count frames starting at start.
func (b *FeatureBuffer) Frames(start, count int) ([]float32, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if start < 0 || count < 0 || (start+count)*b.dim > len(b.data) {
		return nil, fmt.Errorf("frames [%d, %d) of %d: %w", start, start+count, len(b.data)/b.dim, ErrFramesUnavailable)
	}
	out := make([]float32, count*b.dim)
	copy(out, b.data[start*b.dim:(start+count)*b.dim])
	return out, nil
}
