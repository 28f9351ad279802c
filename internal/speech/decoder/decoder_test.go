package decoder

import (
	"reflect"
	"testing"
)

func TestStripLeadingBlanksIdempotent(t *testing.T) {
	r := &Result{Tokens: []int{0, 0, 5, 0, 7}}

	StripLeadingBlanks(r, 0)
	once := append([]int(nil), r.Tokens...)
	StripLeadingBlanks(r, 0)

	if !reflect.DeepEqual(once, []int{5, 0, 7}) {
		t.Errorf("after one strip = %v, want [5 0 7]", once)
	}
	if !reflect.DeepEqual(r.Tokens, once) {
		t.Errorf("after two strips = %v, want %v", r.Tokens, once)
	}
}

func TestStripLeadingBlanksAllBlank(t *testing.T) {
	r := &Result{Tokens: []int{0, 0}}
	StripLeadingBlanks(r, 0)
	if len(r.Tokens) != 0 {
		t.Errorf("tokens = %v, want empty", r.Tokens)
	}
}

func TestClone(t *testing.T) {
	r := &Result{Tokens: []int{0, 3}, Timestamps: []int{1}, YsProbs: []float32{-0.1}}
	c := r.Clone()
	c.Tokens[1] = 9
	c.Timestamps = append(c.Timestamps, 2)
	c.NumTrailingBlanks = 4

	if r.Tokens[1] != 3 || len(r.Timestamps) != 1 || r.NumTrailingBlanks != 0 {
		t.Errorf("original modified through clone: %+v", r)
	}
}
