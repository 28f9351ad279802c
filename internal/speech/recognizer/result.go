package recognizer

import (
	"fmt"

	"github.com/voicetyped/streamasr/internal/speech/decoder"
	"github.com/voicetyped/streamasr/internal/speech/symbols"
)

// Result is the caller-visible transcript of the current segment.
type Result struct {
	Text string `json:"text"`
	// Tokens holds one display form per token. Single bytes outside the
	// printable ASCII range are written as <0xHH>.
	Tokens []string `json:"tokens"`
	// Timestamps are token start times in seconds, relative to StartTime.
	Timestamps    []float32 `json:"timestamps"`
	YsProbs       []float32 `json:"ys_probs"`
	ContextScores []float32 `json:"context_scores"`
	Segment       int       `json:"segment"`
	// StartTime is the segment start in seconds from the stream start.
	StartTime float32 `json:"start_time"`
	IsFinal   bool    `json:"is_final"`
}

// Convert maps a decode result to its external form. The probability and
// score slices are moved into the returned Result, so r should not be used
// afterwards.
func Convert(r *decoder.Result, table *symbols.Table, frameShiftMs float32, subsamplingFactor, segment, framesSinceStart int) Result {
	out := Result{
		Tokens:     make([]string, 0, len(r.Tokens)),
		Timestamps: make([]float32, 0, len(r.Timestamps)),
	}

	for _, id := range r.Tokens {
		sym := table.Symbol(id)
		out.Text += sym
		out.Tokens = append(out.Tokens, escapeByte(sym))
	}

	frameShiftSec := frameShiftMs / 1000 * float32(subsamplingFactor)
	for _, t := range r.Timestamps {
		out.Timestamps = append(out.Timestamps, frameShiftSec*float32(t))
	}

	out.YsProbs, r.YsProbs = r.YsProbs, nil
	out.ContextScores, r.ContextScores = r.ContextScores, nil

	out.Segment = segment
	out.StartTime = float32(framesSinceStart) * frameShiftMs / 1000
	return out
}

// escapeByte rewrites a non-printable single-byte symbol (byte-level BPE
// units) as <0xHH>. Printable ASCII collides with ordinary BPE units and is
// left alone.
func escapeByte(sym string) string {
	if len(sym) != 1 {
		return sym
	}
	b := sym[0]
	if b >= 0x20 && b <= 0x7e {
		return sym
	}
	return fmt.Sprintf("<0x%02X>", b)
}
