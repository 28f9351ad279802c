package stream

import (
	"sync/atomic"

	"github.com/rs/xid"

	"github.com/voicetyped/streamasr/internal/speech/contextgraph"
	"github.com/voicetyped/streamasr/internal/speech/decoder"
	"github.com/voicetyped/streamasr/internal/speech/model"
)

// Stream is the mutable decode state of one audio session. It is not safe
// for concurrent use: a batch borrows it exclusively through TryAcquire.
type Stream struct {
	id     string
	source FeatureSource
	graph  *contextgraph.Graph

	// numProcessedFrames and the frame counts below are relative to
	// startFrameIndex, the first frame of the current segment.
	numProcessedFrames int
	startFrameIndex    int

	states  model.State
	result  *decoder.Result
	segment int

	inFlight atomic.Bool
}

// New creates a stream reading from source. graph may be nil.
func New(source FeatureSource, graph *contextgraph.Graph) *Stream {
	return &Stream{
		id:     xid.New().String(),
		source: source,
		graph:  graph,
	}
}

// ID returns the stream id.
func (s *Stream) ID() string { return s.id }

// Source returns the feature source the stream reads from.
func (s *Stream) Source() FeatureSource { return s.source }

// ContextGraph returns the hotword graph, or nil if the stream has none.
func (s *Stream) ContextGraph() *contextgraph.Graph { return s.graph }

// FeatureDim returns the width of one feature frame.
func (s *Stream) FeatureDim() int { return s.source.FeatureDim() }

// IsFinished reports whether the source has received all of its input.
func (s *Stream) IsFinished() bool { return s.source.IsFinished() }

// NumProcessedFrames counts frames consumed in the current segment.
func (s *Stream) NumProcessedFrames() int { return s.numProcessedFrames }

// States returns the recurrent encoder state.
func (s *Stream) States() model.State { return s.states }

// SetStates replaces the recurrent encoder state.
func (s *Stream) SetStates(st model.State) { s.states = st }

// Result returns the decode state of the current segment.
func (s *Stream) Result() *decoder.Result { return s.result }

// SetResult replaces the decode state of the current segment.
func (s *Stream) SetResult(r *decoder.Result) { s.result = r }

// CurrentSegment returns the number of the current segment, from 0.
func (s *Stream) CurrentSegment() int { return s.segment }

// FramesSinceStart is the absolute index of the first frame of the current
// segment. It never decreases.
func (s *Stream) FramesSinceStart() int { return s.startFrameIndex }

// NumFramesReady counts buffered frames from the start of the segment.
func (s *Stream) NumFramesReady() int {
	return s.source.FramesReady() - s.startFrameIndex
}

// Frames reads count frames at a segment-relative position.
func (s *Stream) Frames(start, count int) ([]float32, error) {
	return s.source.Frames(s.startFrameIndex+start, count)
}

// AdvanceProcessedFrames moves the read position forward by n frames.
func (s *Stream) AdvanceProcessedFrames(n int) {
	s.numProcessedFrames += n
}

// IncrementSegment starts numbering the next segment.
func (s *Stream) IncrementSegment() { s.segment++ }

// Reset starts a new segment at the current read position. Buffered frames
// are kept.
func (s *Stream) Reset() {
	s.startFrameIndex += s.numProcessedFrames
	s.numProcessedFrames = 0
}

// TryAcquire marks the stream as owned by a batch. It fails if another batch
// already holds it.
func (s *Stream) TryAcquire() bool { return s.inFlight.CompareAndSwap(false, true) }

// Release ends the batch's ownership.
func (s *Stream) Release() { s.inFlight.Store(false) }
