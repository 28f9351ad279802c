// Package greedy implements token-synchronous greedy search for streaming
// transducers, with optional hotword biasing.
package greedy

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/voicetyped/streamasr/internal/speech/contextgraph"
	"github.com/voicetyped/streamasr/internal/speech/decoder"
	"github.com/voicetyped/streamasr/internal/speech/model"
	"github.com/voicetyped/streamasr/internal/speech/registry"
)

// MethodName is the decoding method this package registers.
const MethodName = "greedy_search"

func init() {
	factory := func(opts decoder.Options) (decoder.Decoder, error) {
		return New(opts)
	}
	registry.Decoders.Register(MethodName, factory)
	registry.Decoders.Register("greedy", factory)
}

// Decoder implements decoder.Decoder with arg-max selection per encoder frame.
type Decoder struct {
	model        model.Model
	blankPenalty float32
}

var _ decoder.Decoder = (*Decoder)(nil)

// New creates a greedy decoder for the given model.
func New(opts decoder.Options) (*Decoder, error) {
	if opts.Model == nil {
		return nil, errors.New("greedy: model is required")
	}
	return &Decoder{
		model:        opts.Model,
		blankPenalty: opts.BlankPenalty,
	}, nil
}

// EmptyResult seeds the token history with ContextSize blanks. DecoderOut is
// left empty and computed from that context on first use.
func (d *Decoder) EmptyResult() *decoder.Result {
	blank := d.model.BlankID()
	tokens := make([]int, d.model.ContextSize())
	for i := range tokens {
		tokens[i] = blank
	}
	return &decoder.Result{Tokens: tokens}
}

// Decode runs greedy search over encoderOut without hotword biasing.
func (d *Decoder) Decode(ctx context.Context, encoderOut model.Tensor, results []*decoder.Result) error {
	return d.decode(ctx, encoderOut, nil, results)
}

// DecodeWithContext runs greedy search with each result biased by the graph
// at the same index.
func (d *Decoder) DecodeWithContext(ctx context.Context, encoderOut model.Tensor, graphs []*contextgraph.Graph, results []*decoder.Result) error {
	if len(graphs) != len(results) {
		return fmt.Errorf("greedy: %d graphs for %d results", len(graphs), len(results))
	}
	return d.decode(ctx, encoderOut, graphs, results)
}

// UpdateDecoderOut computes r.DecoderOut from the tail of r.Tokens when it is
// not already set.
func (d *Decoder) UpdateDecoderOut(ctx context.Context, r *decoder.Result) error {
	return d.fillDecoderOut(ctx, []*decoder.Result{r})
}

func (d *Decoder) decode(ctx context.Context, encoderOut model.Tensor, graphs []*contextgraph.Graph, results []*decoder.Result) error {
	if len(encoderOut.Shape) != 3 {
		return fmt.Errorf("greedy: encoder output must be [N, T, D], got %v", encoderOut.Shape)
	}
	n, numFrames, dim := encoderOut.Shape[0], encoderOut.Shape[1], encoderOut.Shape[2]
	if n != len(results) {
		return fmt.Errorf("greedy: encoder batch %d for %d results", n, len(results))
	}
	if n == 0 {
		return nil
	}
	if err := encoderOut.Validate(); err != nil {
		return fmt.Errorf("greedy: %w", err)
	}

	if err := d.fillDecoderOut(ctx, results); err != nil {
		return err
	}
	decOut, err := stackDecoderOut(results)
	if err != nil {
		return err
	}
	decDim := decOut.Shape[1]

	vocab := d.model.VocabSize()
	blank := d.model.BlankID()
	frames := model.NewTensor(n, dim)
	row := make([]float32, vocab)

	for t := 0; t < numFrames; t++ {
		for i := 0; i < n; i++ {
			src := encoderOut.Row(i)[t*dim : (t+1)*dim]
			copy(frames.Row(i), src)
		}

		logits, err := d.model.RunJoiner(ctx, frames, decOut)
		if err != nil {
			return fmt.Errorf("greedy: run joiner: %w", err)
		}
		if len(logits.Data) != n*vocab {
			return fmt.Errorf("greedy: joiner returned %d logits, want %d", len(logits.Data), n*vocab)
		}

		var emitted []int
		for i, r := range results {
			copy(row, logits.Data[i*vocab:(i+1)*vocab])
			row[blank] -= d.blankPenalty

			var g *contextgraph.Graph
			if graphs != nil {
				g = graphs[i]
			}

			best, bestScore := -1, float32(0)
			var bestNode *contextgraph.Node
			var bestDelta float32
			for k := 0; k < vocab; k++ {
				score := row[k]
				var node *contextgraph.Node
				var delta float32
				if g != nil && k != blank {
					node, delta = g.Score(r.ContextState, k)
					score += delta
				}
				if best < 0 || score > bestScore {
					best, bestScore = k, score
					bestNode, bestDelta = node, delta
				}
			}

			if best == blank {
				r.NumTrailingBlanks++
				continue
			}

			r.Tokens = append(r.Tokens, best)
			r.Timestamps = append(r.Timestamps, r.FrameOffset+t)
			r.YsProbs = append(r.YsProbs, logSoftmaxAt(row, best))
			r.ContextScores = append(r.ContextScores, bestDelta)
			r.NumTrailingBlanks = 0
			if g != nil {
				r.ContextState = bestNode
			}
			emitted = append(emitted, i)
		}

		if len(emitted) == 0 {
			continue
		}

		contexts := make([][]int, len(emitted))
		for j, i := range emitted {
			contexts[j] = d.lastContext(results[i].Tokens)
		}
		out, err := d.model.RunDecoder(ctx, contexts)
		if err != nil {
			return fmt.Errorf("greedy: run decoder: %w", err)
		}
		if len(out.Data) != len(emitted)*decDim {
			return fmt.Errorf("greedy: decoder returned %d values, want %d", len(out.Data), len(emitted)*decDim)
		}
		for j, i := range emitted {
			next := append([]float32(nil), out.Data[j*decDim:(j+1)*decDim]...)
			copy(decOut.Row(i), next)
			results[i].DecoderOut = model.Tensor{Shape: []int{1, decDim}, Data: next}
		}
	}

	for _, r := range results {
		r.FrameOffset += numFrames
	}
	return nil
}

// fillDecoderOut runs the predictor once for every result without a cached
// DecoderOut.
func (d *Decoder) fillDecoderOut(ctx context.Context, results []*decoder.Result) error {
	var (
		missing  []int
		contexts [][]int
	)
	for i, r := range results {
		if r.DecoderOut.Data != nil {
			continue
		}
		missing = append(missing, i)
		contexts = append(contexts, d.lastContext(r.Tokens))
	}
	if len(missing) == 0 {
		return nil
	}

	out, err := d.model.RunDecoder(ctx, contexts)
	if err != nil {
		return fmt.Errorf("greedy: run decoder: %w", err)
	}
	if len(out.Data)%len(missing) != 0 {
		return fmt.Errorf("greedy: decoder output of %d values for %d contexts", len(out.Data), len(missing))
	}
	dim := len(out.Data) / len(missing)
	for j, i := range missing {
		row := append([]float32(nil), out.Data[j*dim:(j+1)*dim]...)
		results[i].DecoderOut = model.Tensor{Shape: []int{1, dim}, Data: row}
	}
	return nil
}

// lastContext returns the last ContextSize tokens, left-padded with blanks.
func (d *Decoder) lastContext(tokens []int) []int {
	size := d.model.ContextSize()
	out := make([]int, size)
	pad := size - len(tokens)
	for i := 0; i < pad; i++ {
		out[i] = d.model.BlankID()
	}
	if pad < 0 {
		pad = 0
	}
	copy(out[pad:], tokens[len(tokens)-(size-pad):])
	return out
}

func stackDecoderOut(results []*decoder.Result) (model.Tensor, error) {
	dim := len(results[0].DecoderOut.Data)
	out := model.NewTensor(len(results), dim)
	for i, r := range results {
		if len(r.DecoderOut.Data) != dim {
			return model.Tensor{}, fmt.Errorf("greedy: decoder out width %d, want %d", len(r.DecoderOut.Data), dim)
		}
		copy(out.Row(i), r.DecoderOut.Data)
	}
	return out, nil
}

func logSoftmaxAt(row []float32, k int) float32 {
	maxV := row[0]
	for _, v := range row[1:] {
		if v > maxV {
			maxV = v
		}
	}
	var sum float64
	for _, v := range row {
		sum += math.Exp(float64(v - maxV))
	}
	return float32(float64(row[k]-maxV) - math.Log(sum))
}
