package data

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func env(temp float64) Env {
	return Env{Temp: temp, Queued: true}
}

func temps(e []Env) []float64 {
	var ret []float64
	for _, v := range e {
		ret = append(ret, v.Temp)
	}
	return ret
}

func TestRingOverwrite(t *testing.T) {
	r := NewRing[Env](3)

	for i := 1; i <= 7; i++ {
		r.Push(env(float64(i)))
	}

	exp := []float64{5, 6, 7}
	if diff := cmp.Diff(exp, temps(r.Queued())); diff != "" {
		t.Error("ring contents mismatch (-exp +got):\n", diff)
	}

	h, ok := r.Head()
	if !ok || h.Temp != 7 {
		t.Errorf("expected head 7, got %v, %v", h.Temp, ok)
	}
}

func TestRingSkipsUnqueued(t *testing.T) {
	r := NewRing[Env](3)

	r.Push(env(1))
	if r.Push(Env{Temp: 99}) {
		t.Error("push of unqueued record returned true")
	}
	r.Push(env(2))
	r.Push(Env{Temp: 98})
	r.Push(env(3))

	exp := []float64{1, 2, 3}
	if diff := cmp.Diff(exp, temps(r.Queued())); diff != "" {
		t.Error("ring contents mismatch (-exp +got):\n", diff)
	}
}

func TestRingMarkSent(t *testing.T) {
	r := NewRing[Env](4)

	if _, ok := r.Head(); ok {
		t.Error("empty ring returned a head")
	}

	r.Push(env(1))
	r.Push(env(2))
	r.Push(env(3))

	r.MarkHeadSent()

	if _, ok := r.Head(); ok {
		t.Error("head still queued after MarkHeadSent")
	}

	if diff := cmp.Diff([]float64{1, 2}, temps(r.Queued())); diff != "" {
		t.Error("ring contents mismatch (-exp +got):\n", diff)
	}

	r.MarkAllSent()

	if r.Len() != 0 || len(r.Queued()) != 0 {
		t.Error("entries still queued after MarkAllSent")
	}

	r.Push(env(4))
	if diff := cmp.Diff([]float64{4}, temps(r.Queued())); diff != "" {
		t.Error("ring contents mismatch (-exp +got):\n", diff)
	}
}
