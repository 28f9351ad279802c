// Package runtime drives the recognizer for the serving layer: it owns the
// live streams, batches the ready ones and publishes their transcripts.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voicetyped/streamasr/internal/speech/recognizer"
	"github.com/voicetyped/streamasr/internal/speech/stream"
	"github.com/voicetyped/streamasr/pkg/events"
)

// ErrSessionNotFound is returned for an unknown stream id.
var ErrSessionNotFound = errors.New("stream not found")

// Close reasons reported in stream.closed events.
const (
	ReasonFinished = "finished"
	ReasonDeleted  = "deleted"
	ReasonExpired  = "expired"
)

// Sink receives transcript and lifecycle events. *events.Publisher
// implements it.
type Sink interface {
	Emit(ctx context.Context, eventType events.EventType, sessionID string, data any) error
}

// Config tunes the scheduler.
type Config struct {
	// MaxBatchSize caps the number of streams per model call.
	MaxBatchSize int
	// Interval is the pause between ticks in Run.
	Interval time.Duration
	// TailPaddingFrames is the number of zero frames appended to a stream
	// when its input finishes. The padding is always extended to complete
	// the last partial chunk.
	TailPaddingFrames int
}

// Scheduler owns a StreamSet and decodes its ready streams in batches.
type Scheduler struct {
	rec  *recognizer.Recognizer
	set  *StreamSet
	sink Sink
	cfg  Config
}

// NewScheduler creates a scheduler. Zero config fields get defaults.
func NewScheduler(rec *recognizer.Recognizer, set *StreamSet, sink Sink, cfg Config) *Scheduler {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 16
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 20 * time.Millisecond
	}
	return &Scheduler{rec: rec, set: set, sink: sink, cfg: cfg}
}

// Recognizer returns the recognizer the scheduler drives.
func (s *Scheduler) Recognizer() *recognizer.Recognizer { return s.rec }

// Open creates a stream fed through an in-memory feature buffer. hotwords
// may be empty.
func (s *Scheduler) Open(ctx context.Context, hotwords string) *Session {
	buf := stream.NewFeatureBuffer(s.rec.Model().FeatureDim())

	var st *stream.Stream
	if hotwords == "" {
		st = s.rec.CreateStream(buf)
	} else {
		st = s.rec.CreateStreamWithHotwords(ctx, buf, hotwords)
	}
	sess := s.set.Add(st, buf)

	slog.InfoContext(ctx, "stream opened", slog.String("stream_id", st.ID()))
	s.emit(ctx, events.StreamOpened, st.ID(), &events.StreamOpenedData{
		FeatureDim: buf.FeatureDim(),
		Hotwords:   st.ContextGraph().Len(),
	})
	return sess
}

// Get returns a live session.
func (s *Scheduler) Get(id string) (*Session, error) {
	sess, ok := s.set.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// Result returns the current transcript of a session.
func (s *Scheduler) Result(id string) (recognizer.Result, error) {
	sess, err := s.Get(id)
	if err != nil {
		return recognizer.Result{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.rec.Result(sess.stream), nil
}

// Reset ends the current segment of a session and returns its final result.
func (s *Scheduler) Reset(ctx context.Context, id string) (recognizer.Result, error) {
	sess, err := s.Get(id)
	if err != nil {
		return recognizer.Result{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.endSegment(ctx, sess)
}

// Close removes a session and announces it.
func (s *Scheduler) Close(ctx context.Context, id, reason string) error {
	sess, ok := s.set.Remove(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.mu.Lock()
	segments := sess.stream.CurrentSegment()
	sess.finalized = true
	sess.mu.Unlock()

	slog.InfoContext(ctx, "stream closed",
		slog.String("stream_id", id),
		slog.String("reason", reason))
	s.emit(ctx, events.StreamClosed, id, &events.StreamClosedData{Reason: reason, Segments: segments})
	return nil
}

// Tick decodes one chunk of every ready stream, publishes transcripts and
// finalizes streams whose input has finished. Batches run in parallel.
func (s *Scheduler) Tick(ctx context.Context) error {
	sessions := s.set.List()

	var ready []*Session
	for _, sess := range sessions {
		sess.mu.Lock()
		if !sess.finalized {
			s.padTail(sess)
			if s.rec.IsReady(sess.stream) {
				ready = append(ready, sess)
			}
		}
		sess.mu.Unlock()
	}

	var g errgroup.Group
	for start := 0; start < len(ready); start += s.cfg.MaxBatchSize {
		end := min(start+s.cfg.MaxBatchSize, len(ready))
		batch := ready[start:end]
		g.Go(func() error { return s.decodeBatch(ctx, batch) })
	}
	err := g.Wait()

	for _, sess := range sessions {
		s.finishIfDone(ctx, sess)
	}
	return err
}

// padTail flushes the undecoded frames of a finished stream by padding them
// to at least one full chunk. It runs once per stream, after the stream has
// drained every full chunk. The caller holds sess.mu.
func (s *Scheduler) padTail(sess *Session) {
	if sess.padded || !sess.stream.IsFinished() || s.rec.IsReady(sess.stream) {
		return
	}
	left := sess.stream.NumFramesReady() - sess.stream.NumProcessedFrames()
	n := 0
	if left > 0 {
		n = max(s.cfg.TailPaddingFrames, s.rec.Model().ChunkSize()-left)
	}
	sess.padded = sess.buffer.PadTail(n)
}

func (s *Scheduler) decodeBatch(ctx context.Context, batch []*Session) error {
	for _, sess := range batch {
		sess.mu.Lock()
	}
	defer func() {
		for _, sess := range batch {
			sess.mu.Unlock()
		}
	}()

	// A reset or close may have raced the readiness check.
	live := make([]*Session, 0, len(batch))
	streams := make([]*stream.Stream, 0, len(batch))
	for _, sess := range batch {
		if sess.finalized || !s.rec.IsReady(sess.stream) {
			continue
		}
		live = append(live, sess)
		streams = append(streams, sess.stream)
	}
	if len(streams) == 0 {
		return nil
	}

	if err := s.rec.DecodeStreams(ctx, streams); err != nil {
		s.emit(ctx, events.SystemError, "", &events.ErrorData{Op: "decode", Error: err.Error()})
		return fmt.Errorf("decode batch of %d: %w", len(streams), err)
	}

	for _, sess := range live {
		if s.rec.IsEndpoint(sess.stream) {
			if _, err := s.endSegment(ctx, sess); err != nil {
				slog.ErrorContext(ctx, "end segment failed",
					slog.String("stream_id", sess.ID()),
					slog.String("error", err.Error()))
				s.emit(ctx, events.SystemError, sess.ID(), &events.ErrorData{Op: "reset", Error: err.Error()})
			}
			continue
		}
		res := s.rec.Result(sess.stream)
		if res.Text != sess.lastText {
			sess.lastText = res.Text
			s.emit(ctx, events.SpeechPartial, sess.ID(), transcript(res))
		}
	}
	return nil
}

// endSegment publishes the final result of the current segment and starts
// the next one. The caller holds sess.mu.
func (s *Scheduler) endSegment(ctx context.Context, sess *Session) (recognizer.Result, error) {
	if err := s.rec.FinalizeContext(sess.stream); err != nil {
		return recognizer.Result{}, err
	}
	res := s.rec.Result(sess.stream)
	res.IsFinal = true
	if err := s.rec.Reset(ctx, sess.stream); err != nil {
		return recognizer.Result{}, err
	}
	sess.lastText = ""

	if res.Text != "" {
		s.emit(ctx, events.SpeechFinal, sess.ID(), transcript(res))
	}
	return res, nil
}

// finishIfDone publishes the last segment of a stream whose input has
// finished and whose padded tail has been decoded, then closes it.
func (s *Scheduler) finishIfDone(ctx context.Context, sess *Session) {
	sess.mu.Lock()
	if sess.finalized || !sess.padded || s.rec.IsReady(sess.stream) {
		sess.mu.Unlock()
		return
	}
	if err := s.rec.FinalizeContext(sess.stream); err != nil {
		slog.WarnContext(ctx, "finalize hotword context failed",
			slog.String("stream_id", sess.ID()),
			slog.String("error", err.Error()))
	}
	res := s.rec.Result(sess.stream)
	res.IsFinal = true
	sess.finalized = true
	sess.mu.Unlock()

	if res.Text != "" {
		s.emit(ctx, events.SpeechFinal, sess.ID(), transcript(res))
	}
	if err := s.Close(ctx, sess.ID(), ReasonFinished); err != nil && !errors.Is(err, ErrSessionNotFound) {
		slog.WarnContext(ctx, "close finished stream failed",
			slog.String("stream_id", sess.ID()),
			slog.String("error", err.Error()))
	}
}

// Reap closes every session idle past the TTL.
func (s *Scheduler) Reap(ctx context.Context) int {
	ids := s.set.Expired()
	for _, id := range ids {
		slog.WarnContext(ctx, "reaping stale stream", slog.String("stream_id", id))
		_ = s.Close(ctx, id, ReasonExpired)
	}
	return len(ids)
}

// Run ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				slog.ErrorContext(ctx, "decode tick failed", slog.String("error", err.Error()))
			}
			s.Reap(ctx)
		}
	}
}

func (s *Scheduler) emit(ctx context.Context, eventType events.EventType, id string, data any) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Emit(ctx, eventType, id, data); err != nil {
		slog.WarnContext(ctx, "emit event failed",
			slog.String("event_type", string(eventType)),
			slog.String("stream_id", id),
			slog.String("error", err.Error()))
	}
}

func transcript(res recognizer.Result) *events.TranscriptData {
	return &events.TranscriptData{
		Text:          res.Text,
		Tokens:        res.Tokens,
		Timestamps:    res.Timestamps,
		YsProbs:       res.YsProbs,
		ContextScores: res.ContextScores,
		Segment:       res.Segment,
		StartTime:     res.StartTime,
		IsFinal:       res.IsFinal,
	}
}
