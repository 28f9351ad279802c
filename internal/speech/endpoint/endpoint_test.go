package endpoint

import "testing"

// never is a rule that cannot fire in these tests.
var never = Rule{MinTrailingSilence: 1e9}

func TestSilenceAfterSpeech(t *testing.T) {
	d := NewDetector(Config{
		Rule1: never,
		Rule2: Rule{MustContainNonSilence: true, MinTrailingSilence: 1.0},
		Rule3: never,
	})

	// 300 frames of 10ms = 3.0s decoded; 150 frames = 1.5s trailing silence.
	if !d.IsEndpoint(300, 150, 0.01) {
		t.Error("expected endpoint after 1.5s silence following speech")
	}
	if d.IsEndpoint(300, 50, 0.01) {
		t.Error("0.5s silence should not be an endpoint")
	}
	// All silence: the rule needs speech first.
	if d.IsEndpoint(150, 150, 0.01) {
		t.Error("silence-only utterance should not fire a must-contain-speech rule")
	}
}

func TestRuleTable(t *testing.T) {
	cases := []struct {
		name     string
		rule     Rule
		silence  float32
		length   float32
		expected bool
	}{
		{"long silence without speech", Rule{MinTrailingSilence: 2.4}, 2.5, 2.5, true},
		{"short silence without speech", Rule{MinTrailingSilence: 2.4}, 1.0, 1.0, false},
		{"speech required and present", Rule{MustContainNonSilence: true, MinTrailingSilence: 1.2}, 1.2, 4, true},
		{"speech required but absent", Rule{MustContainNonSilence: true, MinTrailingSilence: 1.2}, 3, 3, false},
		{"max utterance length", Rule{MinUtteranceLength: 20}, 0, 20, true},
		{"under max utterance length", Rule{MinUtteranceLength: 20}, 0, 19.9, false},
	}

	for _, tc := range cases {
		if got := tc.rule.Activated(tc.silence, tc.length); got != tc.expected {
			t.Errorf("%s: Activated = %v, want %v", tc.name, got, tc.expected)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	d := NewDetector(DefaultConfig())

	cases := []struct {
		frames, silence int
		want            bool
	}{
		{300, 150, true},  // rule 2: 1.5s silence after speech
		{300, 100, false}, // 1.0s silence is too short
		{250, 250, true},  // rule 1: 2.5s silence, nothing said
		{2100, 0, true},   // rule 3: 21s utterance
		{1000, 0, false},
	}
	for _, tc := range cases {
		if got := d.IsEndpoint(tc.frames, tc.silence, 0.01); got != tc.want {
			t.Errorf("IsEndpoint(%d, %d) = %v, want %v", tc.frames, tc.silence, got, tc.want)
		}
	}
}
