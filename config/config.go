package config

import (
	"strconv"
	"time"

	"github.com/pitabwire/frame/config"

	"github.com/voicetyped/streamasr/internal/runtime"
	"github.com/voicetyped/streamasr/internal/speech/endpoint"
	"github.com/voicetyped/streamasr/internal/speech/recognizer"
)

// SpeechConfig holds configuration for the streaming speech service.
type SpeechConfig struct {
	config.ConfigurationDefault

	// Model
	ModelBackend   string `envDefault:"remote"                   env:"MODEL_BACKEND"`
	ModelURL       string `envDefault:"http://localhost:8500"    env:"MODEL_URL"`
	ModelPath      string `envDefault:"default"                  env:"MODEL_PATH"`
	ModelAPIKey    string `envDefault:""                         env:"MODEL_API_KEY"`
	ModelTimeoutMs int    `envDefault:"10000"                    env:"MODEL_TIMEOUT_MS"`
	TokensPath     string `envDefault:"./models/tokens.txt"      env:"TOKENS_PATH"`

	// Decoding
	DecodingMethod    string  `envDefault:"greedy_search" env:"DECODING_METHOD"`
	BlankPenalty      float32 `envDefault:"0"             env:"BLANK_PENALTY"`
	FrameShiftMs      float32 `envDefault:"10"            env:"FRAME_SHIFT_MS"`
	SubsamplingFactor int     `envDefault:"4"             env:"SUBSAMPLING_FACTOR"`

	// Hotwords
	HotwordsFile      string  `envDefault:""    env:"HOTWORDS_FILE"`
	HotwordsScore     float32 `envDefault:"1.5" env:"HOTWORDS_SCORE"`
	HotwordsDelimiter string  `envDefault:"/"   env:"HOTWORDS_DELIMITER"`

	// Endpointing
	EnableEndpoint             bool    `envDefault:"true"  env:"ENABLE_ENDPOINT"`
	Rule1MustContainNonSilence bool    `envDefault:"false" env:"RULE1_MUST_CONTAIN_NONSILENCE"`
	Rule1MinTrailingSilence    float32 `envDefault:"2.4"   env:"RULE1_MIN_TRAILING_SILENCE"`
	Rule1MinUtteranceLength    float32 `envDefault:"0"     env:"RULE1_MIN_UTTERANCE_LENGTH"`
	Rule2MustContainNonSilence bool    `envDefault:"true"  env:"RULE2_MUST_CONTAIN_NONSILENCE"`
	Rule2MinTrailingSilence    float32 `envDefault:"1.2"   env:"RULE2_MIN_TRAILING_SILENCE"`
	Rule2MinUtteranceLength    float32 `envDefault:"0"     env:"RULE2_MIN_UTTERANCE_LENGTH"`
	Rule3MustContainNonSilence bool    `envDefault:"false" env:"RULE3_MUST_CONTAIN_NONSILENCE"`
	Rule3MinTrailingSilence    float32 `envDefault:"0"     env:"RULE3_MIN_TRAILING_SILENCE"`
	Rule3MinUtteranceLength    float32 `envDefault:"20"    env:"RULE3_MIN_UTTERANCE_LENGTH"`

	// Serving
	MaxBatchSize      int    `envDefault:"16"     env:"MAX_BATCH_SIZE"`
	DecodeIntervalMs  int    `envDefault:"20"     env:"DECODE_INTERVAL_MS"`
	StreamTTLSec      int    `envDefault:"600"    env:"STREAM_TTL_SEC"`
	TailPaddingFrames int    `envDefault:"0"      env:"TAIL_PADDING_FRAMES"`
	EventsSource      string `envDefault:"speech" env:"EVENTS_SOURCE"`
}

// RecognizerConfig maps the env settings to a recognizer configuration.
func (c *SpeechConfig) RecognizerConfig() recognizer.Config {
	return recognizer.Config{
		DecodingMethod: c.DecodingMethod,
		BlankPenalty:   c.BlankPenalty,
		EnableEndpoint: c.EnableEndpoint,
		Endpoint: endpoint.Config{
			Rule1: endpoint.Rule{
				MustContainNonSilence: c.Rule1MustContainNonSilence,
				MinTrailingSilence:    c.Rule1MinTrailingSilence,
				MinUtteranceLength:    c.Rule1MinUtteranceLength,
			},
			Rule2: endpoint.Rule{
				MustContainNonSilence: c.Rule2MustContainNonSilence,
				MinTrailingSilence:    c.Rule2MinTrailingSilence,
				MinUtteranceLength:    c.Rule2MinUtteranceLength,
			},
			Rule3: endpoint.Rule{
				MustContainNonSilence: c.Rule3MustContainNonSilence,
				MinTrailingSilence:    c.Rule3MinTrailingSilence,
				MinUtteranceLength:    c.Rule3MinUtteranceLength,
			},
		},
		HotwordsScore:     c.HotwordsScore,
		HotwordsDelimiter: c.HotwordsDelimiter,
		FrameShiftMs:      c.FrameShiftMs,
		SubsamplingFactor: c.SubsamplingFactor,
	}
}

// ModelConfig is the flat backend configuration handed to the model
// registry.
func (c *SpeechConfig) ModelConfig() map[string]string {
	return map[string]string{
		"model_url":  c.ModelURL,
		"model_path": c.ModelPath,
		"api_key":    c.ModelAPIKey,
		"timeout_ms": strconv.Itoa(c.ModelTimeoutMs),
	}
}

// SchedulerConfig returns the batching and tail padding settings.
func (c *SpeechConfig) SchedulerConfig() runtime.Config {
	return runtime.Config{
		MaxBatchSize:      c.MaxBatchSize,
		Interval:          time.Duration(c.DecodeIntervalMs) * time.Millisecond,
		TailPaddingFrames: c.TailPaddingFrames,
	}
}

// StreamTTL is how long a stream may stay idle before it is reaped.
func (c *SpeechConfig) StreamTTL() time.Duration {
	return time.Duration(c.StreamTTLSec) * time.Second
}
