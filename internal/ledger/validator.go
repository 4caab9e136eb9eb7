package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies the batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateEscrowMatchesStake verifies a round's escrow account holds exactly
// the stake_total the round records. This is the core accounting invariant:
// escrow can never drift from the registry's bookkeeping.
func (v *InvariantValidator) ValidateEscrowMatchesStake(roundID int64, assetID AssetID, stakeTotal int64) error {
	escrowed := v.tracker.GetRoundEscrow(roundID, assetID)
	if escrowed != stakeTotal {
		return fmt.Errorf("round %d escrow is %d but stake_total is %d", roundID, escrowed, stakeTotal)
	}
	return nil
}

// ValidateEscrowZero verifies a settled round's escrow is fully drained.
func (v *InvariantValidator) ValidateEscrowZero(roundID int64, assetID AssetID) error {
	escrowed := v.tracker.GetRoundEscrow(roundID, assetID)
	if escrowed != 0 {
		return fmt.Errorf("settled round %d has non-zero escrow: %d", roundID, escrowed)
	}
	return nil
}

// ValidateUserCashNonNegative checks user cash >= 0
func (v *InvariantValidator) ValidateUserCashNonNegative(userID uuid.UUID, assetID AssetID) error {
	return v.tracker.ValidateCashNonNegative(userID, assetID)
}

// ValidateGlobalBalance verifies the system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}
