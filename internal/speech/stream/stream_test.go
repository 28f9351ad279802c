package stream

import (
	"errors"
	"reflect"
	"testing"

	"github.com/voicetyped/streamasr/internal/speech/contextgraph"
)

func TestFeatureBuffer(t *testing.T) {
	b := NewFeatureBuffer(2)

	if err := b.AcceptFrames([]float32{1, 2, 3}); err == nil {
		t.Error("expected error for partial frame")
	}
	if err := b.AcceptFrames([]float32{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("AcceptFrames: %v", err)
	}
	if b.FramesReady() != 3 {
		t.Fatalf("FramesReady = %d, want 3", b.FramesReady())
	}

	got, err := b.Frames(1, 2)
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	if !reflect.DeepEqual(got, []float32{3, 4, 5, 6}) {
		t.Errorf("Frames(1, 2) = %v", got)
	}
	got[0] = 99
	if again, _ := b.Frames(1, 1); again[0] != 3 {
		t.Error("Frames must return a copy")
	}

	if _, err := b.Frames(2, 2); !errors.Is(err, ErrFramesUnavailable) {
		t.Errorf("over-read error = %v, want ErrFramesUnavailable", err)
	}

	b.InputFinished()
	if !b.IsFinished() {
		t.Error("expected finished")
	}
	if err := b.AcceptFrames([]float32{7, 8}); !errors.Is(err, ErrInputFinished) {
		t.Errorf("late frames error = %v, want ErrInputFinished", err)
	}
}

func TestStreamResetKeepsFrames(t *testing.T) {
	b := NewFeatureBuffer(1)
	_ = b.AcceptFrames([]float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	s := New(b, nil)

	if s.ID() == "" {
		t.Error("expected a stream id")
	}
	s.AdvanceProcessedFrames(4)
	s.AdvanceProcessedFrames(2)
	if s.NumProcessedFrames() != 6 {
		t.Fatalf("processed = %d, want 6", s.NumProcessedFrames())
	}

	s.Reset()
	if s.NumProcessedFrames() != 0 {
		t.Errorf("processed after reset = %d, want 0", s.NumProcessedFrames())
	}
	if s.FramesSinceStart() != 6 {
		t.Errorf("frames since start = %d, want 6", s.FramesSinceStart())
	}
	if s.NumFramesReady() != 4 {
		t.Errorf("frames ready = %d, want 4", s.NumFramesReady())
	}
	got, err := s.Frames(0, 2)
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	if !reflect.DeepEqual(got, []float32{6, 7}) {
		t.Errorf("segment-relative frames = %v, want [6 7]", got)
	}
	if b.FramesReady() != 10 {
		t.Error("reset must not discard buffered frames")
	}
}

func TestStreamAcquire(t *testing.T) {
	s := New(NewFeatureBuffer(1), contextgraph.Build([][]int{{1}}, 1))
	if s.ContextGraph() == nil {
		t.Fatal("expected context graph")
	}
	if !s.TryAcquire() {
		t.Fatal("first acquire should succeed")
	}
	if s.TryAcquire() {
		t.Error("second acquire should fail while held")
	}
	s.Release()
	if !s.TryAcquire() {
		t.Error("acquire after release should succeed")
	}
}

func TestStreamSegment(t *testing.T) {
	s := New(NewFeatureBuffer(1), nil)
	s.IncrementSegment()
	s.IncrementSegment()
	if s.CurrentSegment() != 2 {
		t.Errorf("segment = %d, want 2", s.CurrentSegment())
	}
}

func TestFeatureBufferPadTail(t *testing.T) {
	b := NewFeatureBuffer(2)
	_ = b.AcceptFrames([]float32{1, 2})

	if b.PadTail(3) {
		t.Fatal("padding before the input finishes must be refused")
	}
	if b.FramesReady() != 1 {
		t.Fatalf("FramesReady = %d, want 1", b.FramesReady())
	}

	b.InputFinished()
	if !b.PadTail(3) {
		t.Fatal("PadTail after InputFinished")
	}
	if b.FramesReady() != 4 {
		t.Fatalf("FramesReady = %d, want 4", b.FramesReady())
	}
	got, err := b.Frames(0, 4)
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	if !reflect.DeepEqual(got, []float32{1, 2, 0, 0, 0, 0, 0, 0}) {
		t.Errorf("padded frames = %v", got)
	}
}
