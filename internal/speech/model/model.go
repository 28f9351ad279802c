package model

import (
	"context"
	"fmt"
)

// State is the recurrent encoder state of one stream, or of a whole batch
// after StackStates. Its layout belongs to the Model; callers only move it.
type State any

// Tensor is a dense row-major float32 tensor.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(shape ...int) Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, n)}
}

// Row returns a view of the i-th slice along the first axis.
func (t Tensor) Row(i int) []float32 {
	if len(t.Shape) == 0 {
		return nil
	}
	stride := len(t.Data) / t.Shape[0]
	return t.Data[i*stride : (i+1)*stride]
}

// Validate reports whether Data matches Shape.
func (t Tensor) Validate() error {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	if n != len(t.Data) {
		return fmt.Errorf("tensor shape %v wants %d values, have %d", t.Shape, n, len(t.Data))
	}
	return nil
}

// Model is a streaming transducer: a chunked encoder with recurrent state,
// a stateless predictor over the last ContextSize tokens, and a joiner.
type Model interface {
	// ChunkSize is the number of feature frames consumed per encoder call.
	ChunkSize() int
	// ChunkShift is how far the read position advances after a chunk.
	// ChunkShift <= ChunkSize; smaller values give overlapping chunks.
	ChunkShift() int
	FeatureDim() int
	VocabSize() int
	BlankID() int
	ContextSize() int

	InitStates() State
	StackStates(states []State) State
	UnstackStates(batched State) []State

	// RunEncoder runs one chunk for a batch of streams.
	// features has shape [N, ChunkSize, FeatureDim]; the returned encoder
	// output has shape [N, T, D].
	RunEncoder(ctx context.Context, features Tensor, states State, processedFrames []int64) (Tensor, State, error)

	// RunDecoder computes predictor output [N, D] for N token contexts of
	// length ContextSize each.
	RunDecoder(ctx context.Context, contexts [][]int) (Tensor, error)

	// RunJoiner combines encoder frames [N, D] with predictor output [N, D]
	// into logits [N, VocabSize].
	RunJoiner(ctx context.Context, encoderFrames, decoderOut Tensor) (Tensor, error)
}
