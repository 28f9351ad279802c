package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/voicetyped/streamasr/internal/speech/model"
	"github.com/voicetyped/streamasr/internal/speech/registry"
)

// fakeServer serves a model whose encoder echoes its features, whose state
// counts chunks, and whose joiner adds its inputs.
func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/models/tiny", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Info{
			ChunkSize: 2, ChunkShift: 2, FeatureDim: 3, VocabSize: 3,
			BlankID: 0, ContextSize: 2, InitState: json.RawMessage(`0`),
		})
	})
	mux.HandleFunc("POST /v1/models/tiny/encoder", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Features model.Tensor `json:"features"`
			States   []int        `json:"states"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for i := range req.States {
			req.States[i]++
		}
		json.NewEncoder(w).Encode(map[string]any{"encoder_out": req.Features, "states": req.States})
	})
	mux.HandleFunc("POST /v1/models/tiny/decoder", func(w http.ResponseWriter, r *http.Request) {
		var req decoderRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		out := model.NewTensor(len(req.Contexts), 3)
		for i, c := range req.Contexts {
			out.Row(i)[c[len(c)-1]] = 1
		}
		json.NewEncoder(w).Encode(decoderResponse{DecoderOut: out})
	})
	mux.HandleFunc("POST /v1/models/tiny/joiner", func(w http.ResponseWriter, r *http.Request) {
		var req joinerRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		out := model.NewTensor(req.EncoderOut.Shape...)
		for i := range out.Data {
			out.Data[i] = req.EncoderOut.Data[i] + req.DecoderOut.Data[i]
		}
		json.NewEncoder(w).Encode(joinerResponse{Logits: out})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newModel(t *testing.T) model.Model {
	t.Helper()
	srv := fakeServer(t)
	m, err := registry.Models.Create(BackendName, map[string]string{
		"model_url":  srv.URL,
		"model_path": "tiny",
		"timeout_ms": "5000",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return m
}

func TestRegisteredAndInfo(t *testing.T) {
	m := newModel(t)
	if m.ChunkSize() != 2 || m.ChunkShift() != 2 || m.FeatureDim() != 3 || m.VocabSize() != 3 || m.ContextSize() != 2 {
		t.Errorf("unexpected model dims")
	}
	if _, err := registry.Models.Create(BackendName, map[string]string{}); err == nil {
		t.Error("expected error without model_url")
	}
}

func TestUnknownModel(t *testing.T) {
	srv := fakeServer(t)
	_, err := registry.Models.Create(BackendName, map[string]string{"model_url": srv.URL, "model_path": "huge"})
	if err == nil {
		t.Error("expected error for unknown model")
	}
}

func TestEncoderStates(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()

	states := []model.State{m.InitStates(), m.InitStates()}
	features := model.NewTensor(2, 2, 3)
	features.Data[0] = 7

	out, next, err := m.RunEncoder(ctx, features, m.StackStates(states), []int64{0, 0})
	if err != nil {
		t.Fatalf("RunEncoder: %v", err)
	}
	if !reflect.DeepEqual(out.Shape, []int{2, 2, 3}) || out.Data[0] != 7 {
		t.Errorf("encoder out = %+v", out)
	}
	per := m.UnstackStates(next)
	if len(per) != 2 || string(per[0].(json.RawMessage)) != "1" {
		t.Errorf("states = %v, want two counters at 1", per)
	}
}

func TestDecoderAndJoiner(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()

	dec, err := m.RunDecoder(ctx, [][]int{{0, 2}, {0, 0}})
	if err != nil {
		t.Fatalf("RunDecoder: %v", err)
	}
	if !reflect.DeepEqual(dec.Data, []float32{0, 0, 1, 1, 0, 0}) {
		t.Errorf("decoder out = %v", dec.Data)
	}

	enc := model.Tensor{Shape: []int{2, 3}, Data: []float32{1, 0, 0, 0, 1, 0}}
	logits, err := m.RunJoiner(ctx, enc, dec)
	if err != nil {
		t.Fatalf("RunJoiner: %v", err)
	}
	if !reflect.DeepEqual(logits.Data, []float32{1, 0, 1, 1, 1, 0}) {
		t.Errorf("logits = %v", logits.Data)
	}
}

func TestServerError(t *testing.T) {
	srv := fakeServer(t)
	m, err := registry.Models.Create(BackendName, map[string]string{"model_url": srv.URL, "model_path": "tiny"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	srv.Close()
	_, _, err = m.RunEncoder(context.Background(), model.NewTensor(1, 2, 3), m.StackStates([]model.State{m.InitStates()}), []int64{0})
	if err == nil {
		t.Fatal("expected error from closed server")
	}
}
