package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/voicetyped/streamasr/internal/speech/contextgraph"
	"github.com/voicetyped/streamasr/internal/speech/decoder"
	"github.com/voicetyped/streamasr/internal/speech/endpoint"
	"github.com/voicetyped/streamasr/internal/speech/model"
	"github.com/voicetyped/streamasr/internal/speech/registry"
	"github.com/voicetyped/streamasr/internal/speech/stream"
	"github.com/voicetyped/streamasr/internal/speech/symbols"
)

var (
	// ErrStreamNotReady is returned when a batch contains a stream with
	// fewer than ChunkSize unprocessed frames.
	ErrStreamNotReady = errors.New("stream not ready")
	// ErrStreamBusy is returned when a stream is already part of another
	// in-flight batch.
	ErrStreamBusy = errors.New("stream is in another batch")
)

// Recognizer drives a streaming transducer over batches of streams. It keeps
// no per-stream state of its own and is safe for concurrent use on disjoint
// sets of streams.
type Recognizer struct {
	config   Config
	model    model.Model
	symbols  *symbols.Table
	decoder  decoder.Decoder
	endpoint *endpoint.Detector

	hotwords atomic.Pointer[contextgraph.Graph]
}

// New creates a recognizer. An unsupported decoding method is an error.
func New(cfg Config, m model.Model, table *symbols.Table) (*Recognizer, error) {
	if m == nil {
		return nil, errors.New("model is required")
	}
	if table == nil {
		return nil, errors.New("symbol table is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if m.ChunkShift() <= 0 || m.ChunkShift() > m.ChunkSize() {
		return nil, fmt.Errorf("chunk shift %d must be in (0, chunk size %d]", m.ChunkShift(), m.ChunkSize())
	}
	if table.Size() != m.VocabSize() {
		return nil, fmt.Errorf("tokens table has %d symbols, model vocabulary has %d", table.Size(), m.VocabSize())
	}

	dec, err := registry.Decoders.Create(cfg.DecodingMethod, decoder.Options{
		Model:        m,
		BlankPenalty: cfg.BlankPenalty,
	})
	if err != nil {
		return nil, fmt.Errorf("decoding method: %w", err)
	}

	return &Recognizer{
		config:   cfg,
		model:    m,
		symbols:  table,
		decoder:  dec,
		endpoint: endpoint.NewDetector(cfg.Endpoint),
	}, nil
}

// Config returns the recognizer configuration.
func (r *Recognizer) Config() Config { return r.config }

// Model returns the model the recognizer runs.
func (r *Recognizer) Model() model.Model { return r.model }

// Symbols returns the vocabulary.
func (r *Recognizer) Symbols() *symbols.Table { return r.symbols }

// SetHotwords replaces the global hotword set used by new streams. Streams
// already created keep the graph they were built with. A non-positive score
// selects the configured default.
func (r *Recognizer) SetHotwords(phrases [][]int, score float32) {
	if score <= 0 {
		score = r.config.HotwordsScore
	}
	g := contextgraph.Build(phrases, score)
	if g.Len() == 0 {
		g = nil
	}
	r.hotwords.Store(g)
}

// Hotwords returns the global hotword graph, or nil if none is set.
func (r *Recognizer) Hotwords() *contextgraph.Graph { return r.hotwords.Load() }

// CreateStream creates a stream biased by the global hotwords, if any.
func (r *Recognizer) CreateStream(source stream.FeatureSource) *stream.Stream {
	s := stream.New(source, r.Hotwords())
	r.initStream(s)
	return s
}

// CreateStreamWithHotwords creates a stream whose context graph merges the
// given phrases with the global hotwords. Phrases are separated by the
// configured delimiter or line breaks; each is a list of space-separated
// vocabulary symbols. Phrases that do not tokenize are skipped.
func (r *Recognizer) CreateStreamWithHotwords(ctx context.Context, source stream.FeatureSource, hotwords string) *stream.Stream {
	text := hotwords
	if d := r.config.HotwordsDelimiter; d != "" {
		text = strings.ReplaceAll(text, d, "\n")
	}

	phrases, err := r.symbols.EncodePhrases(strings.NewReader(text))
	if err != nil {
		slog.WarnContext(ctx, "encode hotwords failed, skipping",
			slog.String("hotwords", hotwords),
			slog.String("error", err.Error()))
	}

	graph := contextgraph.Merge(contextgraph.Build(phrases, r.config.HotwordsScore), r.Hotwords(), r.config.HotwordsScore)
	s := stream.New(source, graph)
	r.initStream(s)
	return s
}

func (r *Recognizer) initStream(s *stream.Stream) {
	s.SetResult(r.decoder.EmptyResult())
	s.SetStates(r.model.InitStates())
}

// IsReady reports whether s has a full chunk of unprocessed frames.
func (r *Recognizer) IsReady(s *stream.Stream) bool {
	return s.NumFramesReady()-s.NumProcessedFrames() >= r.model.ChunkSize()
}

// DecodeStreams runs one chunk of every stream through the model in a
// single batch. Either every stream is updated or, on error, none is.
func (r *Recognizer) DecodeStreams(ctx context.Context, ss []*stream.Stream) error {
	if len(ss) == 0 {
		return nil
	}
	start := time.Now()

	acquired := 0
	defer func() {
		for _, s := range ss[:acquired] {
			s.Release()
		}
	}()
	for _, s := range ss {
		if !s.TryAcquire() {
			return fmt.Errorf("stream %s: %w", s.ID(), ErrStreamBusy)
		}
		acquired++
	}

	chunkSize := r.model.ChunkSize()
	chunkShift := r.model.ChunkShift()
	featureDim := r.model.FeatureDim()

	for _, s := range ss {
		if !r.IsReady(s) {
			return fmt.Errorf("stream %s: %d of %d frames: %w",
				s.ID(), s.NumFramesReady()-s.NumProcessedFrames(), chunkSize, ErrStreamNotReady)
		}
		if s.FeatureDim() != featureDim {
			return fmt.Errorf("stream %s: feature dim %d, model wants %d", s.ID(), s.FeatureDim(), featureDim)
		}
	}

	n := len(ss)
	features := model.NewTensor(n, chunkSize, featureDim)
	states := make([]model.State, n)
	processed := make([]int64, n)
	results := make([]*decoder.Result, n)
	graphs := make([]*contextgraph.Graph, n)
	hasContextGraph := false

	for i, s := range ss {
		frames, err := s.Frames(s.NumProcessedFrames(), chunkSize)
		if err != nil {
			return fmt.Errorf("stream %s: %w", s.ID(), err)
		}
		copy(features.Row(i), frames)

		states[i] = s.States()
		processed[i] = int64(s.NumProcessedFrames())
		results[i] = s.Result().Clone()
		graphs[i] = s.ContextGraph()
		if graphs[i] != nil {
			hasContextGraph = true
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	encoderOut, nextStates, err := r.model.RunEncoder(ctx, features, r.model.StackStates(states), processed)
	if err != nil {
		return fmt.Errorf("run encoder: %w", err)
	}

	if hasContextGraph {
		err = r.decoder.DecodeWithContext(ctx, encoderOut, graphs, results)
	} else {
		err = r.decoder.Decode(ctx, encoderOut, results)
	}
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	unstacked := r.model.UnstackStates(nextStates)
	if len(unstacked) != n {
		return fmt.Errorf("model returned %d states for %d streams", len(unstacked), n)
	}

	for i, s := range ss {
		s.SetStates(unstacked[i])
		s.SetResult(results[i])
		s.AdvanceProcessedFrames(chunkShift)
	}

	slog.DebugContext(ctx, "decoded batch",
		slog.Int("batch_size", n),
		slog.Bool("context_graph", hasContextGraph),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Result returns the transcript of the current segment of s.
func (r *Recognizer) Result(s *stream.Stream) Result {
	res := s.Result().Clone()
	decoder.StripLeadingBlanks(res, r.model.BlankID())
	return Convert(res, r.symbols, r.config.FrameShiftMs, r.config.SubsamplingFactor,
		s.CurrentSegment(), s.FramesSinceStart())
}

// IsEndpoint reports whether the current segment of s has ended. It is
// always false when endpointing is disabled.
func (r *Recognizer) IsEndpoint(s *stream.Stream) bool {
	if !r.config.EnableEndpoint {
		return false
	}
	trailingSilenceFrames := s.Result().NumTrailingBlanks * r.config.SubsamplingFactor
	return r.endpoint.IsEndpoint(s.NumProcessedFrames(), trailingSilenceFrames, r.config.FrameShiftMs/1000)
}

// Reset closes the current segment of s and starts the next one. The
// predictor context carries over; the token history does not.
func (r *Recognizer) Reset(ctx context.Context, s *stream.Stream) error {
	if !s.TryAcquire() {
		return fmt.Errorf("stream %s: %w", s.ID(), ErrStreamBusy)
	}
	defer s.Release()

	r.finalizeContext(s)

	// The segment number only moves on when something was said.
	cur := s.Result()
	nonEmpty := len(cur.Tokens) > 0 && cur.Tokens[len(cur.Tokens)-1] != r.model.BlankID()

	if err := r.decoder.UpdateDecoderOut(ctx, cur); err != nil {
		return fmt.Errorf("update decoder out: %w", err)
	}

	next := r.decoder.EmptyResult()
	next.DecoderOut = cur.DecoderOut
	s.SetResult(next)

	if nonEmpty {
		s.IncrementSegment()
	}
	s.Reset()
	return nil
}

// FinalizeContext closes the hotword match in progress on s. The bonus of a
// partially matched phrase is taken back from the last token's context
// score and the cursor returns to the root. It is a no-op for streams
// without a context graph or with no partial match.
func (r *Recognizer) FinalizeContext(s *stream.Stream) error {
	if !s.TryAcquire() {
		return fmt.Errorf("stream %s: %w", s.ID(), ErrStreamBusy)
	}
	defer s.Release()
	r.finalizeContext(s)
	return nil
}

func (r *Recognizer) finalizeContext(s *stream.Stream) {
	g, res := s.ContextGraph(), s.Result()
	if g == nil || res.ContextState.Level() == 0 {
		return
	}
	var delta float32
	res.ContextState, delta = g.Finalize(res.ContextState)
	if n := len(res.ContextScores); n > 0 {
		res.ContextScores[n-1] += delta
	}
}
