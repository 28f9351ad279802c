// Package modeltest provides a deterministic in-memory transducer for tests.
//
// The fake encoder copies every Subsampling-th feature frame of the chunk
// straight into its output, so a test controls the joiner logits by writing
// them as features (FeatureDim == VocabSize). The predictor output is zero
// except for an optional penalty on the most recent context token.
package modeltest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/voicetyped/streamasr/internal/speech/model"
)

// ErrInjected is returned by RunEncoder when FailEncoder is set.
var ErrInjected = errors.New("modeltest: injected encoder failure")

// Config shapes the fake model.
type Config struct {
	ChunkSize   int
	ChunkShift  int
	VocabSize   int
	ContextSize int
	Subsampling int
	BlankID     int
	// RepeatPenalty is subtracted from the logit of the last context token.
	RepeatPenalty float32
}

// Model implements model.Model.
type Model struct {
	cfg Config

	mu              sync.Mutex
	encoderCalls    int
	decoderCalls    int
	processedFrames [][]int64
	FailEncoder     bool
}

var _ model.Model = (*Model)(nil)

// New creates a fake model. Zero fields get small defaults.
func New(cfg Config) *Model {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 8
	}
	if cfg.ChunkShift <= 0 {
		cfg.ChunkShift = cfg.ChunkSize
	}
	if cfg.VocabSize <= 0 {
		cfg.VocabSize = 5
	}
	if cfg.ContextSize <= 0 {
		cfg.ContextSize = 2
	}
	if cfg.Subsampling <= 0 {
		cfg.Subsampling = 4
	}
	return &Model{cfg: cfg}
}

func (m *Model) ChunkSize() int   { return m.cfg.ChunkSize }
func (m *Model) ChunkShift() int  { return m.cfg.ChunkShift }
func (m *Model) FeatureDim() int  { return m.cfg.VocabSize }
func (m *Model) VocabSize() int   { return m.cfg.VocabSize }
func (m *Model) BlankID() int     { return m.cfg.BlankID }
func (m *Model) ContextSize() int { return m.cfg.ContextSize }

// FramesPerChunk is the number of encoder output frames per chunk.
func (m *Model) FramesPerChunk() int {
	t := m.cfg.ChunkShift / m.cfg.Subsampling
	if t < 1 {
		t = 1
	}
	return t
}

// InitStates returns a chunk counter starting at zero.
func (m *Model) InitStates() model.State { return int64(0) }

func (m *Model) StackStates(states []model.State) model.State {
	out := make([]int64, len(states))
	for i, s := range states {
		out[i] = s.(int64)
	}
	return out
}

func (m *Model) UnstackStates(batched model.State) []model.State {
	in := batched.([]int64)
	out := make([]model.State, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func (m *Model) RunEncoder(_ context.Context, features model.Tensor, states model.State, processedFrames []int64) (model.Tensor, model.State, error) {
	if err := features.Validate(); err != nil {
		return model.Tensor{}, nil, err
	}
	n := features.Shape[0]
	if features.Shape[1] != m.cfg.ChunkSize || features.Shape[2] != m.cfg.VocabSize {
		return model.Tensor{}, nil, fmt.Errorf("modeltest: unexpected feature shape %v", features.Shape)
	}
	st, ok := states.([]int64)
	if !ok || len(st) != n {
		return model.Tensor{}, nil, fmt.Errorf("modeltest: bad batched state %T", states)
	}

	m.mu.Lock()
	m.encoderCalls++
	m.processedFrames = append(m.processedFrames, append([]int64(nil), processedFrames...))
	fail := m.FailEncoder
	m.mu.Unlock()
	if fail {
		return model.Tensor{}, nil, ErrInjected
	}

	t := m.FramesPerChunk()
	dim := m.cfg.VocabSize
	out := model.NewTensor(n, t, dim)
	for i := 0; i < n; i++ {
		chunk := features.Row(i)
		row := out.Row(i)
		for j := 0; j < t; j++ {
			src := j * m.cfg.Subsampling
			copy(row[j*dim:(j+1)*dim], chunk[src*dim:(src+1)*dim])
		}
	}

	next := make([]int64, n)
	for i, v := range st {
		next[i] = v + 1
	}
	return out, next, nil
}

func (m *Model) RunDecoder(_ context.Context, contexts [][]int) (model.Tensor, error) {
	m.mu.Lock()
	m.decoderCalls++
	m.mu.Unlock()

	out := model.NewTensor(len(contexts), m.cfg.VocabSize)
	for i, c := range contexts {
		if len(c) != m.cfg.ContextSize {
			return model.Tensor{}, fmt.Errorf("modeltest: context length %d, want %d", len(c), m.cfg.ContextSize)
		}
		last := c[len(c)-1]
		if last != m.cfg.BlankID {
			out.Row(i)[last] = -m.cfg.RepeatPenalty
		}
	}
	return out, nil
}

func (m *Model) RunJoiner(_ context.Context, encoderFrames, decoderOut model.Tensor) (model.Tensor, error) {
	if len(encoderFrames.Data) != len(decoderOut.Data) {
		return model.Tensor{}, fmt.Errorf("modeltest: joiner shape mismatch %v vs %v", encoderFrames.Shape, decoderOut.Shape)
	}
	out := model.NewTensor(encoderFrames.Shape...)
	for i := range out.Data {
		out.Data[i] = encoderFrames.Data[i] + decoderOut.Data[i]
	}
	return out, nil
}

// EncoderCalls returns how many times RunEncoder was invoked.
func (m *Model) EncoderCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.encoderCalls
}

// DecoderCalls returns how many times RunDecoder was invoked.
func (m *Model) DecoderCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decoderCalls
}

// ProcessedFrames returns the processed-frame vectors passed to RunEncoder.
func (m *Model) ProcessedFrames() [][]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]int64, len(m.processedFrames))
	copy(out, m.processedFrames)
	return out
}

// Frame builds one feature frame whose arg-max is token, with the given margin
// over every other entry. Other entries are zero.
func Frame(vocab, token int, margin float32) []float32 {
	f := make([]float32, vocab)
	f[token] = margin
	return f
}

// Frames concatenates frames into one flat slice.
func Frames(frames ...[]float32) []float32 {
	var out []float32
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}
