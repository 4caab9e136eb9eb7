package ingestion_test

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"duelpool/internal/event"
	"duelpool/internal/ingestion"
	"duelpool/internal/round"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal test payload: %v", err)
	}
	return ingestion.RawEvent{Data: data}
}

func TestParseDepositConfirmed(t *testing.T) {
	depositID := uuid.New()
	userID := uuid.New()

	raw := rawFromJSON(t, map[string]interface{}{
		"deposit_id":   depositID.String(),
		"user_id":      userID.String(),
		"asset":        "CHIP",
		"amount":       int64(500_000_000),
		"sequence":     int64(1),
		"timestamp_us": int64(1_700_000_000_000_000),
	})

	evt, err := ingestion.ParseRawEvent(raw, "DepositConfirmed")
	if err != nil {
		t.Fatalf("ParseRawEvent: %v", err)
	}

	dep, ok := evt.(*event.DepositConfirmed)
	if !ok {
		t.Fatalf("expected *event.DepositConfirmed, got %T", evt)
	}
	if dep.DepositID != depositID {
		t.Errorf("deposit_id: got %s, want %s", dep.DepositID, depositID)
	}
	if dep.UserID != userID {
		t.Errorf("user_id: got %s, want %s", dep.UserID, userID)
	}
	if dep.Amount != 500_000_000 {
		t.Errorf("amount: got %d", dep.Amount)
	}
	if dep.Partition() != event.PartitionWallet {
		t.Errorf("partition: got %s, want %s", dep.Partition(), event.PartitionWallet)
	}
	if dep.Timestamp.UnixMicro() != 1_700_000_000_000_000 {
		t.Errorf("timestamp: got %d", dep.Timestamp.UnixMicro())
	}
}

func TestParseDepositConfirmed_NonPositiveAmount_Fails(t *testing.T) {
	raw := rawFromJSON(t, map[string]interface{}{
		"deposit_id": uuid.New().String(),
		"user_id":    uuid.New().String(),
		"asset":      "CHIP",
		"amount":     int64(0),
		"sequence":   int64(1),
	})

	if _, err := ingestion.ParseRawEvent(raw, "DepositConfirmed"); err == nil {
		t.Error("expected error for zero amount")
	}
}

func TestParseWithdrawalRequested(t *testing.T) {
	raw := rawFromJSON(t, map[string]interface{}{
		"withdrawal_id": uuid.New().String(),
		"user_id":       uuid.New().String(),
		"asset":         "CHIP",
		"amount":        int64(1_000),
		"sequence":      int64(2),
		"timestamp_us":  int64(1_700_000_000_000_000),
	})

	evt, err := ingestion.ParseRawEvent(raw, "WithdrawalRequested")
	if err != nil {
		t.Fatalf("ParseRawEvent: %v", err)
	}
	wd, ok := evt.(*event.WithdrawalRequested)
	if !ok {
		t.Fatalf("expected *event.WithdrawalRequested, got %T", evt)
	}
	if wd.SourceSequence() != 2 {
		t.Errorf("sequence: got %d, want 2", wd.SourceSequence())
	}
}

func TestParseRoundCreate(t *testing.T) {
	requestID := uuid.New()
	creator := uuid.New()

	raw := rawFromJSON(t, map[string]interface{}{
		"request_id":   requestID.String(),
		"creator":      creator.String(),
		"side":         "black",
		"stake":        int64(100_000_000),
		"asset":        "CHIP",
		"sequence":     int64(10),
		"timestamp_us": int64(1_700_000_000_000_000),
	})

	evt, err := ingestion.ParseRawEvent(raw, "RoundCreate")
	if err != nil {
		t.Fatalf("ParseRawEvent: %v", err)
	}
	create, ok := evt.(*event.RoundCreate)
	if !ok {
		t.Fatalf("expected *event.RoundCreate, got %T", evt)
	}
	if create.Side != round.SideBlack {
		t.Errorf("side: got %v, want black", create.Side)
	}
	if create.Stake != 100_000_000 {
		t.Errorf("stake: got %d", create.Stake)
	}
	if create.IdempotencyKey() != requestID.String() {
		t.Errorf("idempotency key: got %s", create.IdempotencyKey())
	}
	if create.Partition() != event.PartitionArena {
		t.Errorf("partition: got %s, want %s", create.Partition(), event.PartitionArena)
	}
}

func TestParseRoundCreate_BadSide_Fails(t *testing.T) {
	raw := rawFromJSON(t, map[string]interface{}{
		"request_id": uuid.New().String(),
		"creator":    uuid.New().String(),
		"side":       "green",
		"stake":      int64(100_000_000),
		"sequence":   int64(10),
	})

	if _, err := ingestion.ParseRawEvent(raw, "RoundCreate"); err == nil {
		t.Error("expected error for unknown side")
	}
}

func TestParseRoundEnter(t *testing.T) {
	entrant := uuid.New()
	raw := rawFromJSON(t, map[string]interface{}{
		"request_id":   uuid.New().String(),
		"entrant":      entrant.String(),
		"round_id":     int64(7),
		"sequence":     int64(11),
		"timestamp_us": int64(1_700_000_000_000_000),
	})

	evt, err := ingestion.ParseRawEvent(raw, "RoundEnter")
	if err != nil {
		t.Fatalf("ParseRawEvent: %v", err)
	}
	enter, ok := evt.(*event.RoundEnter)
	if !ok {
		t.Fatalf("expected *event.RoundEnter, got %T", evt)
	}
	if enter.RoundID != 7 {
		t.Errorf("round_id: got %d, want 7", enter.RoundID)
	}
	if enter.Entrant != entrant {
		t.Errorf("entrant: got %s, want %s", enter.Entrant, entrant)
	}
}

func TestParseRoundClose(t *testing.T) {
	raw := rawFromJSON(t, map[string]interface{}{
		"request_id":   uuid.New().String(),
		"caller":       uuid.New().String(),
		"round_id":     int64(3),
		"sequence":     int64(12),
		"timestamp_us": int64(1_700_000_000_000_000),
	})

	evt, err := ingestion.ParseRawEvent(raw, "RoundClose")
	if err != nil {
		t.Fatalf("ParseRawEvent: %v", err)
	}
	if _, ok := evt.(*event.RoundClose); !ok {
		t.Fatalf("expected *event.RoundClose, got %T", evt)
	}
}

func TestParseUnknownEventType_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	if _, err := ingestion.ParseRawEvent(raw, "OrderFill"); err == nil {
		t.Error("expected error for unknown event type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{not json`)}
	if _, err := ingestion.ParseRawEvent(raw, "RoundCreate"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	raw := rawFromJSON(t, map[string]interface{}{
		"request_id": "not-a-uuid",
		"creator":    uuid.New().String(),
		"side":       "red",
		"stake":      int64(100_000_000),
		"sequence":   int64(1),
	})
	if _, err := ingestion.ParseRawEvent(raw, "RoundCreate"); err == nil {
		t.Error("expected error for invalid request_id")
	}
}

func TestWireRoundTrip(t *testing.T) {
	orig := &event.RoundCreate{
		RequestID: uuid.New(),
		Creator:   uuid.New(),
		Side:      round.SideRed,
		Stake:     250_000_000,
		Asset:     "CHIP",
		Sequence:  42,
	}

	data, err := event.MarshalWire(orig)
	if err != nil {
		t.Fatalf("MarshalWire: %v", err)
	}

	parsed, err := ingestion.ParseRawEvent(ingestion.RawEvent{Data: data}, "RoundCreate")
	if err != nil {
		t.Fatalf("ParseRawEvent: %v", err)
	}
	got := parsed.(*event.RoundCreate)
	if got.RequestID != orig.RequestID || got.Creator != orig.Creator ||
		got.Side != orig.Side || got.Stake != orig.Stake || got.Sequence != orig.Sequence {
		t.Errorf("round-trip mismatch: got %+v, want %+v", got, orig)
	}
}

func TestWireRoundTrip_EnterCarriesDraw(t *testing.T) {
	draw := byte(13)
	orig := &event.RoundEnter{
		RequestID: uuid.New(),
		Entrant:   uuid.New(),
		RoundID:   5,
		Sequence:  42,
		Draw:      &draw,
	}

	data, err := event.MarshalWire(orig)
	if err != nil {
		t.Fatalf("MarshalWire: %v", err)
	}

	parsed, err := ingestion.ParseRawEvent(ingestion.RawEvent{Data: data}, "RoundEnter")
	if err != nil {
		t.Fatalf("ParseRawEvent: %v", err)
	}
	got := parsed.(*event.RoundEnter)
	if got.Draw == nil || *got.Draw != draw {
		t.Errorf("draw: got %v, want %d", got.Draw, draw)
	}

	// A live command has no draw yet; the key must stay absent.
	orig.Draw = nil
	data, err = event.MarshalWire(orig)
	if err != nil {
		t.Fatalf("MarshalWire without draw: %v", err)
	}
	parsed, err = ingestion.ParseRawEvent(ingestion.RawEvent{Data: data}, "RoundEnter")
	if err != nil {
		t.Fatalf("ParseRawEvent without draw: %v", err)
	}
	if parsed.(*event.RoundEnter).Draw != nil {
		t.Error("draw should be nil when the payload omits it")
	}
}
