// Package remote is a model backend that runs the transducer on an HTTP
// inference server. Encoder states stay opaque JSON values owned by the
// server.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/voicetyped/streamasr/internal/speech/backends/restutil"
	"github.com/voicetyped/streamasr/internal/speech/model"
	"github.com/voicetyped/streamasr/internal/speech/registry"
)

// BackendName is the registry name of this backend.
const BackendName = "remote"

func init() {
	registry.Models.Register(BackendName, func(config map[string]string) (model.Model, error) {
		baseURL := config["model_url"]
		if baseURL == "" {
			return nil, errors.New("remote model URL required (set model_url in config)")
		}
		name := config["model_path"]
		if name == "" {
			name = "default"
		}
		headers := map[string]string{}
		if key := config["api_key"]; key != "" {
			headers["Authorization"] = "Bearer " + key
		}
		var timeout time.Duration
		if s := config["timeout_ms"]; s != "" {
			ms, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("timeout_ms: %w", err)
			}
			timeout = time.Duration(ms) * time.Millisecond
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return New(ctx, restutil.NewClient(baseURL, headers, timeout), name)
	})
}

// Info is the model description served at GET /v1/models/{name}.
type Info struct {
	ChunkSize   int             `json:"chunk_size"`
	ChunkShift  int             `json:"chunk_shift"`
	FeatureDim  int             `json:"feature_dim"`
	VocabSize   int             `json:"vocab_size"`
	BlankID     int             `json:"blank_id"`
	ContextSize int             `json:"context_size"`
	InitState   json.RawMessage `json:"init_state"`
}

func (i Info) validate() error {
	switch {
	case i.ChunkSize <= 0, i.FeatureDim <= 0, i.VocabSize <= 0, i.ContextSize <= 0:
		return fmt.Errorf("incomplete model info %+v", i)
	case i.ChunkShift <= 0 || i.ChunkShift > i.ChunkSize:
		return fmt.Errorf("chunk shift %d outside (0, %d]", i.ChunkShift, i.ChunkSize)
	case i.BlankID < 0 || i.BlankID >= i.VocabSize:
		return fmt.Errorf("blank id %d outside vocabulary of %d", i.BlankID, i.VocabSize)
	}
	return nil
}

type encoderRequest struct {
	Features        model.Tensor      `json:"features"`
	States          []json.RawMessage `json:"states"`
	ProcessedFrames []int64           `json:"processed_frames"`
}

type encoderResponse struct {
	EncoderOut model.Tensor      `json:"encoder_out"`
	States     []json.RawMessage `json:"states"`
}

type decoderRequest struct {
	Contexts [][]int `json:"contexts"`
}

type decoderResponse struct {
	DecoderOut model.Tensor `json:"decoder_out"`
}

type joinerRequest struct {
	EncoderOut model.Tensor `json:"encoder_out"`
	DecoderOut model.Tensor `json:"decoder_out"`
}

type joinerResponse struct {
	Logits model.Tensor `json:"logits"`
}

// Model implements model.Model against a remote server.
type Model struct {
	client *restutil.Client
	prefix string
	info   Info
}

var _ model.Model = (*Model)(nil)

// New fetches the model description and returns a ready model.
func New(ctx context.Context, client *restutil.Client, name string) (*Model, error) {
	m := &Model{client: client, prefix: "/v1/models/" + url.PathEscape(name)}
	if err := client.DoJSON(ctx, http.MethodGet, m.prefix, nil, &m.info); err != nil {
		return nil, fmt.Errorf("remote model %q: %w", name, err)
	}
	if err := m.info.validate(); err != nil {
		return nil, fmt.Errorf("remote model %q: %w", name, err)
	}
	if len(m.info.InitState) == 0 {
		m.info.InitState = json.RawMessage("null")
	}
	return m, nil
}

func (m *Model) ChunkSize() int   { return m.info.ChunkSize }
func (m *Model) ChunkShift() int  { return m.info.ChunkShift }
func (m *Model) FeatureDim() int  { return m.info.FeatureDim }
func (m *Model) VocabSize() int   { return m.info.VocabSize }
func (m *Model) BlankID() int     { return m.info.BlankID }
func (m *Model) ContextSize() int { return m.info.ContextSize }

func (m *Model) InitStates() model.State {
	return append(json.RawMessage(nil), m.info.InitState...)
}

func (m *Model) StackStates(states []model.State) model.State {
	out := make([]json.RawMessage, len(states))
	for i, s := range states {
		out[i] = s.(json.RawMessage)
	}
	return out
}

func (m *Model) UnstackStates(batched model.State) []model.State {
	in := batched.([]json.RawMessage)
	out := make([]model.State, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func (m *Model) RunEncoder(ctx context.Context, features model.Tensor, states model.State, processedFrames []int64) (model.Tensor, model.State, error) {
	st, ok := states.([]json.RawMessage)
	if !ok {
		return model.Tensor{}, nil, fmt.Errorf("remote: unexpected batched state %T", states)
	}
	var resp encoderResponse
	err := m.client.DoJSON(ctx, http.MethodPost, m.prefix+"/encoder", encoderRequest{
		Features:        features,
		States:          st,
		ProcessedFrames: processedFrames,
	}, &resp)
	if err != nil {
		return model.Tensor{}, nil, fmt.Errorf("remote encoder: %w", err)
	}
	if err := checkBatch(resp.EncoderOut, len(st), 3); err != nil {
		return model.Tensor{}, nil, fmt.Errorf("remote encoder: %w", err)
	}
	if len(resp.States) != len(st) {
		return model.Tensor{}, nil, fmt.Errorf("remote encoder: %d states for batch of %d", len(resp.States), len(st))
	}
	return resp.EncoderOut, resp.States, nil
}

func (m *Model) RunDecoder(ctx context.Context, contexts [][]int) (model.Tensor, error) {
	var resp decoderResponse
	if err := m.client.DoJSON(ctx, http.MethodPost, m.prefix+"/decoder", decoderRequest{Contexts: contexts}, &resp); err != nil {
		return model.Tensor{}, fmt.Errorf("remote decoder: %w", err)
	}
	if err := checkBatch(resp.DecoderOut, len(contexts), 2); err != nil {
		return model.Tensor{}, fmt.Errorf("remote decoder: %w", err)
	}
	return resp.DecoderOut, nil
}

func (m *Model) RunJoiner(ctx context.Context, encoderFrames, decoderOut model.Tensor) (model.Tensor, error) {
	var resp joinerResponse
	err := m.client.DoJSON(ctx, http.MethodPost, m.prefix+"/joiner", joinerRequest{
		EncoderOut: encoderFrames,
		DecoderOut: decoderOut,
	}, &resp)
	if err != nil {
		return model.Tensor{}, fmt.Errorf("remote joiner: %w", err)
	}
	if err := checkBatch(resp.Logits, encoderFrames.Shape[0], 2); err != nil {
		return model.Tensor{}, fmt.Errorf("remote joiner: %w", err)
	}
	return resp.Logits, nil
}

func checkBatch(t model.Tensor, n, rank int) error {
	if len(t.Shape) != rank || t.Shape[0] != n {
		return fmt.Errorf("got shape %v, want rank %d with batch %d", t.Shape, rank, n)
	}
	return t.Validate()
}
