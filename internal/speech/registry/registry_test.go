package registry

import (
	"errors"
	"reflect"
	"testing"
)

func TestRegistryCreate(t *testing.T) {
	r := New[int, string]()
	r.Register("double", func(n int) (string, error) {
		return string(rune('a' + 2*n)), nil
	})

	if !r.Has("double") {
		t.Fatal("expected double to be registered")
	}
	got, err := r.Create("double", 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got != "c" {
		t.Errorf("Create = %q, want %q", got, "c")
	}
}

func TestRegistryUnknown(t *testing.T) {
	r := New[int, string]()
	_, err := r.Create("beam", 0)
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("error = %v, want ErrUnknownBackend", err)
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := New[int, int]()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		r.Register(name, func(int) (int, error) { return 0, nil })
	}
	if got := r.List(); !reflect.DeepEqual(got, []string{"alpha", "mid", "zeta"}) {
		t.Errorf("List = %v", got)
	}
}
