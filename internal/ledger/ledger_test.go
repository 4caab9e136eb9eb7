package ledger_test

import (
	"testing"

	"github.com/google/uuid"

	"duelpool/internal/ledger"
)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_UserPath(t *testing.T) {
	userID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	assetID, _ := ledger.GetAssetID("CHIP")
	key := ledger.NewUserAccountKey(userID, assetID)

	path := key.AccountPath()
	expected := "user:550e8400-e29b-41d4-a716-446655440000:cash:CHIP"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_EscrowPath(t *testing.T) {
	assetID, _ := ledger.GetAssetID("CHIP")
	key := ledger.NewRoundEscrowKey(42, assetID)

	path := key.AccountPath()
	if path != "round:42:escrow:CHIP" {
		t.Errorf("got %q, want %q", path, "round:42:escrow:CHIP")
	}
	if key.RoundID() != 42 {
		t.Errorf("RoundID: got %d, want 42", key.RoundID())
	}
}

func TestAccountKey_FeePath(t *testing.T) {
	assetID, _ := ledger.GetAssetID("CHIP")
	key := ledger.NewFeeAccountKey(assetID)

	path := key.AccountPath()
	if path != "system:fees:CHIP" {
		t.Errorf("got %q, want %q", path, "system:fees:CHIP")
	}
}

func TestAccountKey_ExternalPath(t *testing.T) {
	assetID, _ := ledger.GetAssetID("USDT")
	key := ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, assetID)

	path := key.AccountPath()
	if path != "external:deposits:USDT" {
		t.Errorf("got %q, want %q", path, "external:deposits:USDT")
	}
}

func TestParseAccountPath_RoundTrip(t *testing.T) {
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("CHIP")

	keys := []ledger.AccountKey{
		ledger.NewUserAccountKey(userID, assetID),
		ledger.NewRoundEscrowKey(7, assetID),
		ledger.NewFeeAccountKey(assetID),
		ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, assetID),
		ledger.NewExternalAccountKey(ledger.SubTypeExternalWithdrawals, assetID),
	}
	for _, key := range keys {
		parsed := ledger.ParseAccountPath(key.AccountPath())
		if parsed.AccountPath() != key.AccountPath() {
			t.Errorf("round-trip mismatch: %q -> %q", key.AccountPath(), parsed.AccountPath())
		}
	}
}

func TestGetAssetID_Known(t *testing.T) {
	id, ok := ledger.GetAssetID("CHIP")
	if !ok {
		t.Fatal("CHIP should be a known asset")
	}
	if id == 0 {
		t.Error("CHIP asset ID should be non-zero")
	}
}

func TestGetAssetID_Unknown(t *testing.T) {
	_, ok := ledger.GetAssetID("DOGE")
	if ok {
		t.Error("DOGE should not be a known asset")
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func depositJournal(userID uuid.UUID, assetID ledger.AssetID, amount int64) ledger.Journal {
	return ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewUserAccountKey(userID, assetID),
		CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalDeposits, assetID),
		AssetID:       assetID,
		Amount:        amount,
	}
}

func TestBalanceTracker_InitialBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("CHIP")

	if balance := bt.GetUserCash(userID, assetID); balance != 0 {
		t.Errorf("initial balance should be 0, got %d", balance)
	}
}

func TestBalanceTracker_ApplyJournal(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("CHIP")

	bt.ApplyJournal(depositJournal(userID, assetID, 1_000_000))

	if cash := bt.GetUserCash(userID, assetID); cash != 1_000_000 {
		t.Errorf("cash: got %d, want 1_000_000", cash)
	}
}

func TestBalanceTracker_ApplyBatch(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("CHIP")
	batchID := uuid.New()

	j := depositJournal(userID, assetID, 500_000)
	j.BatchID = batchID

	batch := &ledger.Batch{
		BatchID:  batchID,
		Journals: []ledger.Journal{j},
	}

	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if bt.GetUserCash(userID, assetID) != 500_000 {
		t.Errorf("expected 500_000 after batch apply")
	}
}

func TestBalanceTracker_GlobalBalanceZeroSum(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("CHIP")

	bt.ApplyJournal(depositJournal(userID, assetID, 1_000_000))

	// Escrow part of the cash into a round
	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewRoundEscrowKey(1, assetID),
		CreditAccount: ledger.NewUserAccountKey(userID, assetID),
		AssetID:       assetID,
		Amount:        300_000,
	})

	for aid, total := range bt.ComputeGlobalBalance() {
		if total != 0 {
			t.Errorf("asset %d has non-zero global balance: %d", aid, total)
		}
	}
	if bt.GetRoundEscrow(1, assetID) != 300_000 {
		t.Errorf("escrow: got %d, want 300_000", bt.GetRoundEscrow(1, assetID))
	}
}

func TestBalanceTracker_ValidateSufficientCash(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("CHIP")

	// No balance — should fail
	if err := bt.ValidateSufficientCash(userID, assetID, 100); err == nil {
		t.Error("expected error for insufficient balance")
	}

	bt.ApplyJournal(depositJournal(userID, assetID, 1_000))

	if err := bt.ValidateSufficientCash(userID, assetID, 1_000); err != nil {
		t.Errorf("should have sufficient balance: %v", err)
	}
	if err := bt.ValidateSufficientCash(userID, assetID, 1_001); err == nil {
		t.Error("expected error for 1_001 > 1_000")
	}
}

func TestBalanceTracker_Snapshot(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("CHIP")

	bt.ApplyJournal(depositJournal(userID, assetID, 999))

	snap := bt.Snapshot()
	if len(snap) == 0 {
		t.Fatal("snapshot should not be empty")
	}

	// Mutating snapshot should not affect tracker
	for k := range snap {
		snap[k] = 0
	}

	if bt.GetUserCash(userID, assetID) != 999 {
		t.Error("tracker balance should not be affected by snapshot mutation")
	}
}

// ============================================================================
// Test: Batch Validation
// ============================================================================

func TestBatchValidate_EmptyBatch_Fails(t *testing.T) {
	batch := &ledger.Batch{
		BatchID:  uuid.New(),
		Journals: []ledger.Journal{},
	}

	if err := batch.Validate(); err == nil {
		t.Error("empty batch should fail validation")
	}
}

func TestBatchValidate_ZeroAmount_Fails(t *testing.T) {
	batchID := uuid.New()
	assetID, _ := ledger.GetAssetID("CHIP")

	j := depositJournal(uuid.New(), assetID, 0)
	j.BatchID = batchID

	batch := &ledger.Batch{BatchID: batchID, Journals: []ledger.Journal{j}}
	if err := batch.Validate(); err == nil {
		t.Error("zero amount should fail validation")
	}
}

func TestBatchValidate_NegativeAmount_Fails(t *testing.T) {
	batchID := uuid.New()
	assetID, _ := ledger.GetAssetID("CHIP")

	j := depositJournal(uuid.New(), assetID, -100)
	j.BatchID = batchID

	batch := &ledger.Batch{BatchID: batchID, Journals: []ledger.Journal{j}}
	if err := batch.Validate(); err == nil {
		t.Error("negative amount should fail validation")
	}
}

func TestBatchValidate_SelfTransfer_Fails(t *testing.T) {
	batchID := uuid.New()
	assetID, _ := ledger.GetAssetID("CHIP")
	sameAccount := ledger.NewUserAccountKey(uuid.New(), assetID)

	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  sameAccount,
				CreditAccount: sameAccount,
				AssetID:       assetID,
				Amount:        100,
			},
		},
	}

	if err := batch.Validate(); err == nil {
		t.Error("self-transfer should fail validation")
	}
}

func TestBatchValidate_MismatchedBatchID_Fails(t *testing.T) {
	batchID := uuid.New()
	assetID, _ := ledger.GetAssetID("CHIP")

	j := depositJournal(uuid.New(), assetID, 100)
	// j keeps its own batch ID, different from the batch's

	batch := &ledger.Batch{BatchID: batchID, Journals: []ledger.Journal{j}}
	if err := batch.Validate(); err == nil {
		t.Error("mismatched batch ID should fail validation")
	}
}

func TestBatchValidate_ValidBatch_Passes(t *testing.T) {
	batchID := uuid.New()
	assetID, _ := ledger.GetAssetID("CHIP")

	j := depositJournal(uuid.New(), assetID, 1_000_000)
	j.BatchID = batchID

	batch := &ledger.Batch{BatchID: batchID, Journals: []ledger.Journal{j}}
	if err := batch.Validate(); err != nil {
		t.Errorf("valid batch should pass: %v", err)
	}
}

// ============================================================================
// Test: JournalGenerator
// ============================================================================

func TestGenerator_RoundCreate_EscrowsStake(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(0, bt)
	creator := uuid.New()
	assetID, _ := ledger.GetAssetID("CHIP")

	bt.ApplyJournal(depositJournal(creator, assetID, 500_000_000))

	batch, err := jg.GenerateRoundCreate(creator, "req-1", 1, 100_000_000, assetID, 1000)
	if err != nil {
		t.Fatalf("GenerateRoundCreate: %v", err)
	}
	if len(batch.Journals) != 1 {
		t.Fatalf("expected 1 journal, got %d", len(batch.Journals))
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}

	if cash := bt.GetUserCash(creator, assetID); cash != 400_000_000 {
		t.Errorf("creator cash: got %d, want 400_000_000", cash)
	}
	if escrow := bt.GetRoundEscrow(1, assetID); escrow != 100_000_000 {
		t.Errorf("escrow: got %d, want 100_000_000", escrow)
	}
}

func TestGenerator_RoundCreate_InsufficientCash_Fails(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(0, bt)
	assetID, _ := ledger.GetAssetID("CHIP")

	_, err := jg.GenerateRoundCreate(uuid.New(), "req-1", 1, 100_000_000, assetID, 1000)
	if err == nil {
		t.Error("expected pre-check failure for unfunded creator")
	}
}

func TestGenerator_RoundEnter_SettlesPool(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(0, bt)
	creator := uuid.New()
	entrant := uuid.New()
	assetID, _ := ledger.GetAssetID("CHIP")

	bt.ApplyJournal(depositJournal(creator, assetID, 100_000_000))
	bt.ApplyJournal(depositJournal(entrant, assetID, 100_000_000))

	createBatch, err := jg.GenerateRoundCreate(creator, "req-1", 1, 100_000_000, assetID, 1000)
	if err != nil {
		t.Fatalf("GenerateRoundCreate: %v", err)
	}
	if err := bt.ApplyBatch(createBatch); err != nil {
		t.Fatalf("apply create: %v", err)
	}

	// Pool of 200_000_000: 10% fee, winner takes the rest
	enterBatch, err := jg.GenerateRoundEnter(
		entrant, creator, "req-2", 1,
		100_000_000, 20_000_000, 180_000_000, assetID, 2000)
	if err != nil {
		t.Fatalf("GenerateRoundEnter: %v", err)
	}
	if len(enterBatch.Journals) != 3 {
		t.Fatalf("expected 3 settlement legs, got %d", len(enterBatch.Journals))
	}
	if err := bt.ApplyBatch(enterBatch); err != nil {
		t.Fatalf("apply enter: %v", err)
	}

	if escrow := bt.GetRoundEscrow(1, assetID); escrow != 0 {
		t.Errorf("escrow after settlement: got %d, want 0", escrow)
	}
	if cash := bt.GetUserCash(creator, assetID); cash != 180_000_000 {
		t.Errorf("winner cash: got %d, want 180_000_000", cash)
	}
	if cash := bt.GetUserCash(entrant, assetID); cash != 0 {
		t.Errorf("loser cash: got %d, want 0", cash)
	}
	if fee := bt.GetFeeBalance(assetID); fee != 20_000_000 {
		t.Errorf("fee balance: got %d, want 20_000_000", fee)
	}
}

func TestGenerator_RoundEnter_PoolNotConserved_Fails(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(0, bt)
	entrant := uuid.New()
	assetID, _ := ledger.GetAssetID("CHIP")

	bt.ApplyJournal(depositJournal(entrant, assetID, 100_000_000))

	// fee + payout != pool
	_, err := jg.GenerateRoundEnter(
		entrant, uuid.New(), "req-2", 1,
		100_000_000, 20_000_000, 170_000_000, assetID, 2000)
	if err == nil {
		t.Error("expected conservation check to fail")
	}
}

func TestGenerator_RoundClose_RefundsEscrow(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(0, bt)
	creator := uuid.New()
	assetID, _ := ledger.GetAssetID("CHIP")

	bt.ApplyJournal(depositJournal(creator, assetID, 100_000_000))

	createBatch, _ := jg.GenerateRoundCreate(creator, "req-1", 1, 100_000_000, assetID, 1000)
	if err := bt.ApplyBatch(createBatch); err != nil {
		t.Fatalf("apply create: %v", err)
	}

	closeBatch, err := jg.GenerateRoundClose(creator, "req-2", 1, 100_000_000, assetID, 2000)
	if err != nil {
		t.Fatalf("GenerateRoundClose: %v", err)
	}
	if err := bt.ApplyBatch(closeBatch); err != nil {
		t.Fatalf("apply close: %v", err)
	}

	if cash := bt.GetUserCash(creator, assetID); cash != 100_000_000 {
		t.Errorf("refunded cash: got %d, want 100_000_000", cash)
	}
	if escrow := bt.GetRoundEscrow(1, assetID); escrow != 0 {
		t.Errorf("escrow after close: got %d, want 0", escrow)
	}
}

func TestGenerator_RoundClose_RefundMismatch_Fails(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(0, bt)
	assetID, _ := ledger.GetAssetID("CHIP")

	_, err := jg.GenerateRoundClose(uuid.New(), "req-1", 1, 100_000_000, assetID, 2000)
	if err == nil {
		t.Error("expected mismatch error when escrow is empty")
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestInvariantValidator_GlobalBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)

	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("empty ledger should have zero global balance: %v", err)
	}

	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("CHIP")
	bt.ApplyJournal(depositJournal(userID, assetID, 1_000_000))

	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("balanced ledger should have zero global balance: %v", err)
	}
}

func TestInvariantValidator_EscrowMatchesStake(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)
	userID := uuid.New()
	assetID, _ := ledger.GetAssetID("CHIP")

	bt.ApplyJournal(depositJournal(userID, assetID, 1_000))
	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewRoundEscrowKey(9, assetID),
		CreditAccount: ledger.NewUserAccountKey(userID, assetID),
		AssetID:       assetID,
		Amount:        1_000,
	})

	if err := v.ValidateEscrowMatchesStake(9, assetID, 1_000); err != nil {
		t.Errorf("escrow should match stake: %v", err)
	}
	if err := v.ValidateEscrowMatchesStake(9, assetID, 500); err == nil {
		t.Error("expected mismatch error")
	}
	if err := v.ValidateEscrowZero(9, assetID); err == nil {
		t.Error("expected non-zero escrow error")
	}
}
