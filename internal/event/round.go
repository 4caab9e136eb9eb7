package event

import (
	"time"

	"github.com/google/uuid"
	"duelpool/internal/round"
)

// RoundCreate opens a new round with the creator's stake escrowed on the
// chosen side. The caller identity is taken from the authenticated request
// envelope and trusted unconditionally.
type RoundCreate struct {
	RequestID uuid.UUID
	Creator   uuid.UUID
	Side      round.Side
	Stake     int64
	Asset     string
	Sequence  int64
	Timestamp time.Time
}

func (c *RoundCreate) IdempotencyKey() string {
	return c.RequestID.String()
}

func (c *RoundCreate) EventType() EventType {
	return EventTypeRoundCreate
}

func (c *RoundCreate) Partition() string {
	return PartitionArena
}

func (c *RoundCreate) SourceSequence() int64 {
	return c.Sequence
}

// RoundEnter fills the open side of a round with the entrant, matching the
// full pool accumulated so far. Entry triggers winner resolution in the
// same atomic unit.
type RoundEnter struct {
	RequestID uuid.UUID
	Entrant   uuid.UUID
	RoundID   int64
	Sequence  int64
	Timestamp time.Time

	// Draw is the byte pulled from the randomness oracle at settlement,
	// recorded into the stored payload so replay resolves the same winner.
	// Nil on a live command; set by the core before the event is logged.
	Draw *byte
}

func (c *RoundEnter) IdempotencyKey() string {
	return c.RequestID.String()
}

func (c *RoundEnter) EventType() EventType {
	return EventTypeRoundEnter
}

func (c *RoundEnter) Partition() string {
	return PartitionArena
}

func (c *RoundEnter) SourceSequence() int64 {
	return c.Sequence
}

// RoundClose forfeits an unresolved round to the caller, refunding the
// entire escrow. Whether non-participants may close is a deployment policy.
type RoundClose struct {
	RequestID uuid.UUID
	Caller    uuid.UUID
	RoundID   int64
	Sequence  int64
	Timestamp time.Time
}

func (c *RoundClose) IdempotencyKey() string {
	return c.RequestID.String()
}

func (c *RoundClose) EventType() EventType {
	return EventTypeRoundClose
}

func (c *RoundClose) Partition() string {
	return PartitionArena
}

func (c *RoundClose) SourceSequence() int64 {
	return c.Sequence
}
