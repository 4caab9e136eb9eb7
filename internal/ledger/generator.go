package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches from commands
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker // reference for defensive pre-checks
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

func (jg *JournalGenerator) newBatch(eventRef string, timestamp int64, capacity int) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, capacity),
	}
}

func (jg *JournalGenerator) appendJournal(
	batch *Batch,
	debit, credit AccountKey,
	assetID AssetID,
	amount int64,
	journalType JournalType,
	timestamp int64,
) {
	batch.Journals = append(batch.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       batch.BatchID,
		EventRef:      batch.EventRef,
		Sequence:      jg.sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   journalType,
		Timestamp:     timestamp,
	})
}

// GenerateDeposit creates journals for a confirmed deposit.
// Moves funds: external:deposits → user:cash
func (jg *JournalGenerator) GenerateDeposit(
	userID uuid.UUID,
	depositID uuid.UUID,
	amount int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	batch := jg.newBatch(depositID.String(), timestamp, 1)

	jg.appendJournal(batch,
		NewUserAccountKey(userID, assetID),
		NewExternalAccountKey(SubTypeExternalDeposits, assetID),
		assetID, amount, JournalTypeDeposit, timestamp)

	jg.sequence++
	return batch, nil
}

// GenerateWithdrawal creates journals for a withdrawal.
// Moves funds: user:cash → external:withdrawals
func (jg *JournalGenerator) GenerateWithdrawal(
	userID uuid.UUID,
	withdrawalID uuid.UUID,
	amount int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientCash(userID, assetID, amount); err != nil {
		return nil, fmt.Errorf("withdrawal pre-check failed: %w", err)
	}

	batch := jg.newBatch(withdrawalID.String(), timestamp, 1)

	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeExternalWithdrawals, assetID),
		NewUserAccountKey(userID, assetID),
		assetID, amount, JournalTypeWithdrawal, timestamp)

	jg.sequence++
	return batch, nil
}

// GenerateRoundCreate escrows the creator's stake for a new round.
// Moves funds: user:cash → round:{id}:escrow
func (jg *JournalGenerator) GenerateRoundCreate(
	creator uuid.UUID,
	requestRef string,
	roundID int64,
	stake int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientCash(creator, assetID, stake); err != nil {
		return nil, fmt.Errorf("round create pre-check failed: %w", err)
	}

	batch := jg.newBatch(requestRef, timestamp, 1)

	jg.appendJournal(batch,
		NewRoundEscrowKey(roundID, assetID),
		NewUserAccountKey(creator, assetID),
		assetID, stake, JournalTypeStakeEscrow, timestamp)

	jg.sequence++
	return batch, nil
}

// GenerateRoundEnter escrows the entrant's matching stake and, in the same
// batch, the settlement legs produced by winner resolution. The entrant
// must match the full pool accumulated so far, so the escrow doubles.
//
// Legs (all under one batch_id, applied atomically):
//  1. entrant user:cash → round escrow   (matchAmount)
//  2. round escrow → system:fees         (ownerFee)
//  3. round escrow → winner user:cash    (winningAmount)
func (jg *JournalGenerator) GenerateRoundEnter(
	entrant uuid.UUID,
	winner uuid.UUID,
	requestRef string,
	roundID int64,
	matchAmount int64,
	ownerFee int64,
	winningAmount int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientCash(entrant, assetID, matchAmount); err != nil {
		return nil, fmt.Errorf("round enter pre-check failed: %w", err)
	}
	if ownerFee+winningAmount != matchAmount*2 {
		return nil, fmt.Errorf("settlement does not conserve the pool: fee=%d payout=%d pool=%d",
			ownerFee, winningAmount, matchAmount*2)
	}

	batch := jg.newBatch(requestRef, timestamp, 3)
	escrow := NewRoundEscrowKey(roundID, assetID)

	jg.appendJournal(batch,
		escrow,
		NewUserAccountKey(entrant, assetID),
		assetID, matchAmount, JournalTypeStakeEscrow, timestamp)

	if ownerFee > 0 {
		jg.appendJournal(batch,
			NewFeeAccountKey(assetID),
			escrow,
			assetID, ownerFee, JournalTypeOwnerFee, timestamp)
	}

	jg.appendJournal(batch,
		NewUserAccountKey(winner, assetID),
		escrow,
		assetID, winningAmount, JournalTypeWinnerPayout, timestamp)

	jg.sequence++
	return batch, nil
}

// GenerateRoundClose refunds the entire escrow to the closing caller.
// Moves funds: round:{id}:escrow → caller user:cash
func (jg *JournalGenerator) GenerateRoundClose(
	caller uuid.UUID,
	requestRef string,
	roundID int64,
	refund int64,
	assetID AssetID,
	timestamp int64,
) (*Batch, error) {
	escrowed := jg.balanceTracker.GetRoundEscrow(roundID, assetID)
	if escrowed != refund {
		return nil, fmt.Errorf("close refund %d does not match escrow %d for round %d",
			refund, escrowed, roundID)
	}

	batch := jg.newBatch(requestRef, timestamp, 1)

	jg.appendJournal(batch,
		NewUserAccountKey(caller, assetID),
		NewRoundEscrowKey(roundID, assetID),
		assetID, refund, JournalTypeCloseRefund, timestamp)

	jg.sequence++
	return batch, nil
}

// SetSequence resets the generator sequence (used during snapshot restore).
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}
