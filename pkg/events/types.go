package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event flowing through the system.
type EventType string

const (
	StreamOpened     EventType = "stream.opened"
	StreamClosed     EventType = "stream.closed"
	SpeechPartial    EventType = "speech.partial"
	SpeechFinal      EventType = "speech.final"
	HotwordsReloaded EventType = "hotwords.reloaded"
	SystemError      EventType = "error"
)

// Envelope is the standard event wrapper published to the event bus.
type Envelope struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Source    string            `json:"source"`
	SessionID string            `json:"session_id"`
	Timestamp time.Time         `json:"timestamp"`
	Data      json.RawMessage   `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// StreamOpenedData is the payload for stream.opened events.
type StreamOpenedData struct {
	FeatureDim int `json:"feature_dim"`
	Hotwords   int `json:"hotwords"`
}

// StreamClosedData is the payload for stream.closed events.
type StreamClosedData struct {
	// Reason is "finished", "deleted" or "expired".
	Reason   string `json:"reason"`
	Segments int    `json:"segments"`
}

// TranscriptData is the payload for speech.partial and speech.final events.
type TranscriptData struct {
	Text          string    `json:"text"`
	Tokens        []string  `json:"tokens"`
	Timestamps    []float32 `json:"timestamps"`
	YsProbs       []float32 `json:"ys_probs,omitempty"`
	ContextScores []float32 `json:"context_scores,omitempty"`
	Segment       int       `json:"segment"`
	StartTime     float32   `json:"start_time"`
	IsFinal       bool      `json:"is_final"`
}

// HotwordsReloadedData is the payload for hotwords.reloaded events.
type HotwordsReloadedData struct {
	Path    string `json:"path"`
	Phrases int    `json:"phrases"`
}

// ErrorData is the payload for error events.
type ErrorData struct {
	Op    string `json:"op"`
	Error string `json:"error"`
}
