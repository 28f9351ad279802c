package restutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		var in map[string]int
		_ = json.NewDecoder(r.Body).Decode(&in)
		json.NewEncoder(w).Encode(map[string]int{"sum": in["a"] + in["b"]})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, map[string]string{"Authorization": "Bearer k"}, 0)
	var out struct {
		Sum int `json:"sum"`
	}
	if err := c.DoJSON(context.Background(), http.MethodPost, "/add", map[string]int{"a": 2, "b": 3}, &out); err != nil {
		t.Fatalf("DoJSON: %v", err)
	}
	if out.Sum != 5 {
		t.Errorf("sum = %d, want 5", out.Sum)
	}
}

func TestDoJSONStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, nil, 0).DoJSON(context.Background(), http.MethodGet, "/", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "HTTP 503") {
		t.Errorf("error = %v, want HTTP 503", err)
	}
}
