package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"duelpool/internal/event"
	"duelpool/internal/round"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into
// a typed event.Event. The ingestion shell validates and converts raw
// messages before handing them to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "DepositConfirmed":
		return parseDepositConfirmed(raw.Data)
	case "WithdrawalRequested":
		return parseWithdrawalRequested(raw.Data)
	case "RoundCreate":
		return parseRoundCreate(raw.Data)
	case "RoundEnter":
		return parseRoundEnter(raw.Data)
	case "RoundClose":
		return parseRoundClose(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type depositJSON struct {
	DepositID   string `json:"deposit_id"`
	UserID      string `json:"user_id"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseDepositConfirmed(data []byte) (*event.DepositConfirmed, error) {
	var j depositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DepositConfirmed: %w", err)
	}
	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	if j.Amount <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive, got %d", j.Amount)
	}
	return &event.DepositConfirmed{
		DepositID: depositID,
		UserID:    userID,
		Asset:     j.Asset,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type withdrawalJSON struct {
	WithdrawalID string `json:"withdrawal_id"`
	UserID       string `json:"user_id"`
	Asset        string `json:"asset"`
	Amount       int64  `json:"amount"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseWithdrawalRequested(data []byte) (*event.WithdrawalRequested, error) {
	var j withdrawalJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WithdrawalRequested: %w", err)
	}
	wdID, err := uuid.Parse(j.WithdrawalID)
	if err != nil {
		return nil, fmt.Errorf("parse withdrawal_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	if j.Amount <= 0 {
		return nil, fmt.Errorf("withdrawal amount must be positive, got %d", j.Amount)
	}
	return &event.WithdrawalRequested{
		WithdrawalID: wdID,
		UserID:       userID,
		Asset:        j.Asset,
		Amount:       j.Amount,
		Sequence:     j.Sequence,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}

type roundCreateJSON struct {
	RequestID   string `json:"request_id"`
	Creator     string `json:"creator"`
	Side        string `json:"side"` // "red" or "black"
	Stake       int64  `json:"stake"`
	Asset       string `json:"asset"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseRoundCreate(data []byte) (*event.RoundCreate, error) {
	var j roundCreateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RoundCreate: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	creator, err := uuid.Parse(j.Creator)
	if err != nil {
		return nil, fmt.Errorf("parse creator: %w", err)
	}
	side, err := round.ParseSide(j.Side)
	if err != nil {
		return nil, fmt.Errorf("parse side: %w", err)
	}
	if j.Stake <= 0 {
		return nil, fmt.Errorf("stake must be positive, got %d", j.Stake)
	}
	return &event.RoundCreate{
		RequestID: requestID,
		Creator:   creator,
		Side:      side,
		Stake:     j.Stake,
		Asset:     j.Asset,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type roundEnterJSON struct {
	RequestID   string `json:"request_id"`
	Entrant     string `json:"entrant"`
	RoundID     int64  `json:"round_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
	Draw        *byte  `json:"draw"`
}

func parseRoundEnter(data []byte) (*event.RoundEnter, error) {
	var j roundEnterJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RoundEnter: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	entrant, err := uuid.Parse(j.Entrant)
	if err != nil {
		return nil, fmt.Errorf("parse entrant: %w", err)
	}
	return &event.RoundEnter{
		RequestID: requestID,
		Entrant:   entrant,
		RoundID:   j.RoundID,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
		Draw:      j.Draw,
	}, nil
}

type roundCloseJSON struct {
	RequestID   string `json:"request_id"`
	Caller      string `json:"caller"`
	RoundID     int64  `json:"round_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseRoundClose(data []byte) (*event.RoundClose, error) {
	var j roundCloseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RoundClose: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	return &event.RoundClose{
		RequestID: requestID,
		Caller:    caller,
		RoundID:   j.RoundID,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}
