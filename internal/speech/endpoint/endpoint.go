package endpoint

// Rule is one endpointing condition. Durations are in seconds.
type Rule struct {
	// MustContainNonSilence requires some speech before the trailing silence.
	MustContainNonSilence bool
	MinTrailingSilence    float32
	MinUtteranceLength    float32
}

// Activated reports whether the rule fires for the given durations. An
// utterance contains speech when it is longer than its trailing silence.
func (r Rule) Activated(trailingSilence, utteranceLength float32) bool {
	containsNonSilence := utteranceLength > trailingSilence
	return (containsNonSilence || !r.MustContainNonSilence) &&
		trailingSilence >= r.MinTrailingSilence &&
		utteranceLength >= r.MinUtteranceLength
}

// Config holds the rule set. Any activated rule declares an endpoint.
type Config struct {
	Rule1 Rule
	Rule2 Rule
	Rule3 Rule
}

// DefaultConfig returns the standard three rules: long silence with or
// without speech, shorter silence after speech, and a maximum utterance
// length.
func DefaultConfig() Config {
	return Config{
		Rule1: Rule{MustContainNonSilence: false, MinTrailingSilence: 2.4, MinUtteranceLength: 0},
		Rule2: Rule{MustContainNonSilence: true, MinTrailingSilence: 1.2, MinUtteranceLength: 0},
		Rule3: Rule{MustContainNonSilence: false, MinTrailingSilence: 0, MinUtteranceLength: 20},
	}
}

// Detector evaluates a Config. It holds no per-stream state.
type Detector struct {
	config Config
}

// NewDetector creates a detector for the given rules.
func NewDetector(cfg Config) *Detector {
	return &Detector{config: cfg}
}

// IsEndpoint converts frame counts to seconds and reports whether any rule
// fires.
func (d *Detector) IsEndpoint(numFramesDecoded, trailingSilenceFrames int, frameShiftSeconds float32) bool {
	utteranceLength := float32(numFramesDecoded) * frameShiftSeconds
	trailingSilence := float32(trailingSilenceFrames) * frameShiftSeconds

	return d.config.Rule1.Activated(trailingSilence, utteranceLength) ||
		d.config.Rule2.Activated(trailingSilence, utteranceLength) ||
		d.config.Rule3.Activated(trailingSilence, utteranceLength)
}
