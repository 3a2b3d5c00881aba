package datastruct

import (
	"reflect"
	"testing"
)

func TestRingBuffer(t *testing.T) {
	r := NewRingBuffer(3)
	if _, ok := r.Latest(); ok {
		t.Fatal("empty buffer must report no latest element")
	}
	if all := r.GetAll(); len(all) != 0 {
		t.Fatalf("empty buffer must return no elements, got %v", all)
	}

	r.Push("a")
	r.Push("b")
	r.Push("c")
	if latest, ok := r.Latest(); !ok || latest != "c" {
		t.Fatalf("expected latest to be c, got %v %v", latest, ok)
	}
	if all := r.GetAll(); !reflect.DeepEqual(all, []string{"a", "b", "c"}) {
		t.Fatalf("expected a, b, c in order, got %v", all)
	}

	// Wrap around: d evicts a.
	r.Push("d")
	if latest, ok := r.Latest(); !ok || latest != "d" {
		t.Fatalf("expected latest to be d, got %v %v", latest, ok)
	}
	if all := r.GetAll(); !reflect.DeepEqual(all, []string{"b", "c", "d"}) {
		t.Fatalf("expected b, c, d in order after wraparound, got %v", all)
	}

	r.Clear()
	if _, ok := r.Latest(); ok {
		t.Fatal("cleared buffer must report no latest element")
	}
}
