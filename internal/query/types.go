package query

import (
	"time"

	"github.com/google/uuid"
)

// BalanceResponse represents a participant balance for API queries.
type BalanceResponse struct {
	UserID       uuid.UUID `json:"user_id"`
	Asset        string    `json:"asset"`
	Balance      int64     `json:"balance"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// RoundResponse represents a round for API queries. Participant and winner
// ids are omitted while the slot is unfilled or the round unresolved.
type RoundResponse struct {
	RoundID      int64      `json:"round_id"`
	SideA        *uuid.UUID `json:"side_a,omitempty"`
	SideB        *uuid.UUID `json:"side_b,omitempty"`
	Winner       *uuid.UUID `json:"winner,omitempty"`
	Status       string     `json:"status"`
	AssetID      uint16     `json:"asset_id"`
	StakeTotal   int64      `json:"stake_total"`
	CreatedAt    time.Time  `json:"created_at"`
	Version      int64      `json:"version"`
	AsOfSequence int64      `json:"as_of_sequence"`
}

// RoundCountResponse is the total number of rounds ever created.
type RoundCountResponse struct {
	Count        int64 `json:"count"`
	AsOfSequence int64 `json:"as_of_sequence"`
}

// SidesResponse carries the two participant slots of a round.
type SidesResponse struct {
	RoundID      int64      `json:"round_id"`
	SideA        *uuid.UUID `json:"side_a,omitempty"`
	SideB        *uuid.UUID `json:"side_b,omitempty"`
	AsOfSequence int64      `json:"as_of_sequence"`
}

// WinnerResponse carries the resolved winner of a round, nil while open.
type WinnerResponse struct {
	RoundID      int64      `json:"round_id"`
	Winner       *uuid.UUID `json:"winner,omitempty"`
	Status       string     `json:"status"`
	AsOfSequence int64      `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
