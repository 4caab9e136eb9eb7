package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances.
// Not thread-safe — only accessed from the single-threaded core.
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// GetUserCash returns a participant's available balance
func (bt *BalanceTracker) GetUserCash(userID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewUserAccountKey(userID, assetID))
}

// GetRoundEscrow returns the amount currently escrowed by a round
func (bt *BalanceTracker) GetRoundEscrow(roundID int64, assetID AssetID) int64 {
	return bt.GetBalance(NewRoundEscrowKey(roundID, assetID))
}

// GetFeeBalance returns the platform fee account balance
func (bt *BalanceTracker) GetFeeBalance(assetID AssetID) int64 {
	return bt.GetBalance(NewFeeAccountKey(assetID))
}

// === Invariant Checks ===

// ValidateSufficientCash checks whether a participant can cover a stake
func (bt *BalanceTracker) ValidateSufficientCash(userID uuid.UUID, assetID AssetID, required int64) error {
	cash := bt.GetUserCash(userID, assetID)
	if cash < required {
		return fmt.Errorf("insufficient cash: have=%d, need=%d", cash, required)
	}
	return nil
}

// ValidateCashNonNegative checks user cash >= 0
func (bt *BalanceTracker) ValidateCashNonNegative(userID uuid.UUID, assetID AssetID) error {
	cash := bt.GetUserCash(userID, assetID)
	if cash < 0 {
		return fmt.Errorf("user %s has negative cash for asset %d: %d",
			userID.String(), assetID, cash)
	}
	return nil
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// SetBalance overwrites an account balance. Used only during snapshot restore.
func (bt *BalanceTracker) SetBalance(key AccountKey, balance int64) {
	bt.balances[key] = balance
}

// Snapshot returns a copy of all balances (for state hashing and snapshots)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}
