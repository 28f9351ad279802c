package decoder

import (
	"context"

	"github.com/voicetyped/streamasr/internal/speech/contextgraph"
	"github.com/voicetyped/streamasr/internal/speech/model"
)

// Result is the token-level decode state of one stream, carried across
// chunks within a segment.
type Result struct {
	// Tokens starts with ContextSize blank placeholders that seed the
	// predictor; they are removed by StripLeadingBlanks before output.
	Tokens []int
	// Timestamps holds one encoder-frame index per emitted token, relative
	// to the segment start.
	Timestamps        []int
	NumTrailingBlanks int
	YsProbs           []float32
	ContextScores     []float32

	// DecoderOut is the predictor output for the current context, shape
	// [1, D]. A nil Data means it must be recomputed from Tokens.
	DecoderOut model.Tensor
	// FrameOffset counts encoder frames decoded in this segment.
	FrameOffset int
	// ContextState is the hotword cursor; nil is the graph root.
	ContextState *contextgraph.Node
}

// Clone returns a deep copy. DecoderOut data is shared since decoders
// replace it rather than write into it.
func (r *Result) Clone() *Result {
	c := *r
	c.Tokens = append([]int(nil), r.Tokens...)
	c.Timestamps = append([]int(nil), r.Timestamps...)
	c.YsProbs = append([]float32(nil), r.YsProbs...)
	c.ContextScores = append([]float32(nil), r.ContextScores...)
	return &c
}

// StripLeadingBlanks removes every leading blank entry. Applying it more
// than once has no further effect.
func StripLeadingBlanks(r *Result, blankID int) {
	i := 0
	for i < len(r.Tokens) && r.Tokens[i] == blankID {
		i++
	}
	r.Tokens = r.Tokens[i:]
}

// Options configures a decoder instance.
type Options struct {
	Model model.Model
	// BlankPenalty is subtracted from the blank logit before selection.
	BlankPenalty float32
}

// Decoder runs a search over encoder output for a batch of streams.
type Decoder interface {
	// EmptyResult returns the initial decode state of a new segment.
	EmptyResult() *Result

	// Decode consumes encoder output [N, T, D] for N results.
	Decode(ctx context.Context, encoderOut model.Tensor, results []*Result) error

	// DecodeWithContext is Decode with hotword biasing. graphs[i] may be nil
	// for streams that carry no context graph.
	DecodeWithContext(ctx context.Context, encoderOut model.Tensor, graphs []*contextgraph.Graph, results []*Result) error

	// UpdateDecoderOut folds the predictor context into r.DecoderOut so the
	// token history can be discarded at a segment boundary.
	UpdateDecoderOut(ctx context.Context, r *Result) error
}
