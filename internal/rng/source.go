// Package rng abstracts the randomness oracle used for winner selection.
// The core draws single bytes through the Source interface so tests can
// substitute a fixed sequence.
package rng

import (
	"crypto/cipher"

	"go.dedis.ch/kyber/v4/util/random"
)

// Source yields unbiased random bytes, unpredictable at call time to any
// party including the caller.
type Source interface {
	NextByte() (byte, error)
}

// StreamSource draws bytes from a kyber CSPRNG stream seeded from the
// operating system entropy pool.
type StreamSource struct {
	stream cipher.Stream
}

func NewStreamSource() *StreamSource {
	return &StreamSource{stream: random.New()}
}

func (s *StreamSource) NextByte() (byte, error) {
	buf := make([]byte, 1)
	s.stream.XORKeyStream(buf, buf)
	return buf[0], nil
}

// FixedSource replays a predetermined byte sequence. Test double for
// deterministic winner selection; wraps around when exhausted.
type FixedSource struct {
	bytes []byte
	pos   int
}

func NewFixedSource(bytes ...byte) *FixedSource {
	if len(bytes) == 0 {
		bytes = []byte{0}
	}
	return &FixedSource{bytes: bytes}
}

func (s *FixedSource) NextByte() (byte, error) {
	b := s.bytes[s.pos%len(s.bytes)]
	s.pos++
	return b, nil
}
