package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota

	// Inbound commands (recorded in the event log, replayable)
	EventTypeDepositConfirmed
	EventTypeWithdrawalRequested
	EventTypeRoundCreate
	EventTypeRoundEnter
	EventTypeRoundClose

	// Outbound notifications (published, never replayed)
	EventTypeRoundCreated
	EventTypeRoundEntered
	EventTypeRoundSettled
	EventTypeRoundClosed
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Ordering partition ("wallet" for funding, "arena" for round commands)
	Partition string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all inbound commands must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Partition returns the ordering partition this command belongs to
	Partition() string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeDepositConfirmed:
		return "DepositConfirmed"
	case EventTypeWithdrawalRequested:
		return "WithdrawalRequested"
	case EventTypeRoundCreate:
		return "RoundCreate"
	case EventTypeRoundEnter:
		return "RoundEnter"
	case EventTypeRoundClose:
		return "RoundClose"
	case EventTypeRoundCreated:
		return "RoundCreated"
	case EventTypeRoundEntered:
		return "RoundEntered"
	case EventTypeRoundSettled:
		return "RoundSettled"
	case EventTypeRoundClosed:
		return "RoundClosed"
	default:
		return "Unknown"
	}
}

// Ordering partitions. Funding commands arrive from the wallet gateway with
// strictly contiguous sequences; round commands arrive from the arena
// frontend (or HTTP) with monotonic but gap-tolerant sequences.
const (
	PartitionWallet = "wallet"
	PartitionArena  = "arena"
)
