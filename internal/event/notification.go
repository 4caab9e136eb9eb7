package event

import "github.com/google/uuid"

// Notification is an outbound record for off-core observers (indexers,
// UIs). Fire-and-forget: the core never reads notifications back.
type Notification struct {
	Type    EventType   `json:"type"`
	RoundID int64       `json:"round_id"`
	Payload interface{} `json:"payload"`
}

// RoundCreatedNote is published when a round is created.
type RoundCreatedNote struct {
	RoundID int64     `json:"round_id"`
	Creator uuid.UUID `json:"creator"`
	Stake   int64     `json:"stake"`
	Asset   string    `json:"asset"`
}

// RoundEnteredNote is published when the second participant enters.
type RoundEnteredNote struct {
	RoundID int64     `json:"round_id"`
	Entrant uuid.UUID `json:"entrant"`
}

// RoundSettledNote is published when a winner is drawn and paid.
type RoundSettledNote struct {
	RoundID       int64     `json:"round_id"`
	Winner        uuid.UUID `json:"winner"`
	WinningAmount int64     `json:"winning_amount"`
	OwnerFee      int64     `json:"owner_fee"`
}

// RoundClosedNote is published when an unfilled round is forfeited.
type RoundClosedNote struct {
	RoundID int64 `json:"round_id"`
}
