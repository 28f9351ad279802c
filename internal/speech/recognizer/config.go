package recognizer

import (
	"errors"

	"github.com/voicetyped/streamasr/internal/speech/decoder/greedy"
	"github.com/voicetyped/streamasr/internal/speech/endpoint"
)

// Config controls decoding, endpointing and hotword biasing.
type Config struct {
	DecodingMethod string
	BlankPenalty   float32

	EnableEndpoint bool
	Endpoint       endpoint.Config

	// HotwordsScore is the bias added per matched hotword token.
	HotwordsScore float32
	// HotwordsDelimiter separates phrases in per-stream hotword text.
	HotwordsDelimiter string

	FrameShiftMs      float32
	SubsamplingFactor int
}

// DefaultConfig returns greedy search with endpointing enabled, 10ms frames
// and 4x subsampling.
func DefaultConfig() Config {
	return Config{
		DecodingMethod:    greedy.MethodName,
		EnableEndpoint:    true,
		Endpoint:          endpoint.DefaultConfig(),
		HotwordsScore:     1.5,
		HotwordsDelimiter: "/",
		FrameShiftMs:      10,
		SubsamplingFactor: 4,
	}
}

func (c Config) validate() error {
	if c.FrameShiftMs <= 0 {
		return errors.New("frame shift must be positive")
	}
	if c.SubsamplingFactor <= 0 {
		return errors.New("subsampling factor must be positive")
	}
	return nil
}
