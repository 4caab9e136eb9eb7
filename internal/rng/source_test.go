package rng_test

import (
	"testing"

	"duelpool/internal/rng"
)

func TestFixedSource_ReplaysSequence(t *testing.T) {
	s := rng.NewFixedSource(1, 2, 3)

	for _, want := range []byte{1, 2, 3, 1, 2} {
		got, err := s.NextByte()
		if err != nil {
			t.Fatalf("NextByte: %v", err)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestFixedSource_EmptyDefaultsToZero(t *testing.T) {
	s := rng.NewFixedSource()
	b, err := s.NextByte()
	if err != nil {
		t.Fatalf("NextByte: %v", err)
	}
	if b != 0 {
		t.Errorf("got %d, want 0", b)
	}
}

func TestStreamSource_YieldsBytes(t *testing.T) {
	s := rng.NewStreamSource()

	// Drawing a run of bytes from a CSPRNG stream should not produce a
	// constant sequence.
	first, err := s.NextByte()
	if err != nil {
		t.Fatalf("NextByte: %v", err)
	}
	allSame := true
	for i := 0; i < 64; i++ {
		b, err := s.NextByte()
		if err != nil {
			t.Fatalf("NextByte: %v", err)
		}
		if b != first {
			allSame = false
		}
	}
	if allSame {
		t.Error("65 identical bytes from the entropy stream")
	}
}
