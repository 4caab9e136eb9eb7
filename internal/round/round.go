package round

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Side is the wager position a participant occupies. The labels are
// arbitrary; red maps to slot A and black to slot B.
type Side int32

const (
	SideRed Side = iota
	SideBlack
)

func (s Side) String() string {
	if s == SideRed {
		return "red"
	}
	return "black"
}

// ParseSide parses the wire representation of a side choice.
func ParseSide(s string) (Side, error) {
	switch s {
	case "red":
		return SideRed, nil
	case "black":
		return SideBlack, nil
	default:
		return 0, errors.New("side must be \"red\" or \"black\"")
	}
}

// Status is the lifecycle state of a round.
type Status int32

const (
	// StatusOpen: one side filled, waiting for an opponent.
	StatusOpen Status = iota
	// StatusResolved: both sides filled, winner drawn, pool paid out.
	StatusResolved
	// StatusClosed: forfeited before filling, escrow refunded to the closer.
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusResolved:
		return "resolved"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Operation errors. These abort the enclosing command before any
// ledger mutation.
var (
	ErrBetTooSmall          = errors.New("stake below minimum bet")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrRoundNotFound        = errors.New("round not found")
	ErrRoundAlreadyResolved = errors.New("round already resolved")
	ErrRoundNotFull         = errors.New("round not full")
	ErrNotParticipant       = errors.New("caller is not a participant")
)

// Round is one two-party wager with its own escrow account. Records are
// append-only: once created a round is never removed, and after it reaches
// a terminal status (Resolved or Closed) no field changes again.
type Round struct {
	ID      int64
	SideA   uuid.UUID // uuid.Nil = open slot
	SideB   uuid.UUID // uuid.Nil = open slot
	Winner  uuid.UUID // uuid.Nil while unresolved; immutable once set
	Status  Status
	AssetID uint16

	// StakeTotal mirrors the balance of the round's escrow account.
	// It reaches zero exactly once, at settlement or close.
	StakeTotal int64

	CreatedAt time.Time
	Version   int64
}

// IsFull reports whether both sides are occupied.
func (r *Round) IsFull() bool {
	return r.SideA != uuid.Nil && r.SideB != uuid.Nil
}

// IsTerminal reports whether the round reached a terminal status.
func (r *Round) IsTerminal() bool {
	return r.Status == StatusResolved || r.Status == StatusClosed
}

// OpenSlot returns a pointer to the unfilled side, or nil if the round
// is full.
func (r *Round) OpenSlot() *uuid.UUID {
	if r.SideA == uuid.Nil {
		return &r.SideA
	}
	if r.SideB == uuid.Nil {
		return &r.SideB
	}
	return nil
}

// HasParticipant reports whether id occupies either side.
func (r *Round) HasParticipant(id uuid.UUID) bool {
	return r.SideA == id || r.SideB == id
}

// Registry is the process-wide, append-only sequence of rounds.
// Not thread-safe — only accessed from the single-threaded core.
type Registry struct {
	rounds []*Round
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Append adds a new round and assigns its id (position in the sequence).
func (rg *Registry) Append(creator uuid.UUID, choice Side, stake int64, assetID uint16, createdAt time.Time) *Round {
	r := &Round{
		ID:         int64(len(rg.rounds)),
		Status:     StatusOpen,
		AssetID:    assetID,
		StakeTotal: stake,
		CreatedAt:  createdAt,
	}
	if choice == SideRed {
		r.SideA = creator
	} else {
		r.SideB = creator
	}
	rg.rounds = append(rg.rounds, r)
	return r
}

// Get returns the round with the given id. The bound check is strict:
// an id one past the end is ErrRoundNotFound.
func (rg *Registry) Get(id int64) (*Round, error) {
	if id < 0 || id >= int64(len(rg.rounds)) {
		return nil, ErrRoundNotFound
	}
	return rg.rounds[id], nil
}

// Count returns the number of rounds created.
func (rg *Registry) Count() int64 {
	return int64(len(rg.rounds))
}

// All returns the underlying round sequence (for snapshots and scans).
func (rg *Registry) All() []*Round {
	return rg.rounds
}

// Restore re-seats a round at its recorded position. Used only during
// snapshot recovery; ids must arrive in order.
func (rg *Registry) Restore(r *Round) {
	if r.ID == int64(len(rg.rounds)) {
		rg.rounds = append(rg.rounds, r)
	}
}
