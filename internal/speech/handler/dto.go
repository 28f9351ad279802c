package handler

// CreateStreamRequest is the body of POST /api/v1/streams.
type CreateStreamRequest struct {
	// Hotwords are phrases of vocabulary symbols separated by the configured
	// delimiter.
	Hotwords string `json:"hotwords,omitempty"`
}

// StreamResponse describes a created stream.
type StreamResponse struct {
	ID         string `json:"id"`
	FeatureDim int    `json:"feature_dim"`
	ChunkSize  int    `json:"chunk_size"`
	ChunkShift int    `json:"chunk_shift"`
	Hotwords   int    `json:"hotwords"`
}

// AcceptFeaturesRequest is the body of POST /api/v1/streams/{id}/features.
type AcceptFeaturesRequest struct {
	// Frames holds feature vectors of FeatureDim values each.
	Frames        [][]float32 `json:"frames"`
	InputFinished bool        `json:"input_finished,omitempty"`
}

// AcceptFeaturesResponse reports the buffered frame count.
type AcceptFeaturesResponse struct {
	FramesReady int  `json:"frames_ready"`
	Finished    bool `json:"finished"`
}

// DecodersResponse lists the registered backends.
type DecodersResponse struct {
	Decoders []string `json:"decoders"`
	Models   []string `json:"models"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
