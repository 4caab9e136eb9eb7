package event

import (
	"time"

	"github.com/google/uuid"
)

// DepositConfirmed credits a participant's cash account from the external
// deposit boundary. Emitted by the wallet gateway once an on-ramp transfer
// is final.
type DepositConfirmed struct {
	DepositID uuid.UUID
	UserID    uuid.UUID
	Asset     string
	Amount    int64 // base units
	Sequence  int64
	Timestamp time.Time
}

func (d *DepositConfirmed) IdempotencyKey() string {
	return d.DepositID.String()
}

func (d *DepositConfirmed) EventType() EventType {
	return EventTypeDepositConfirmed
}

func (d *DepositConfirmed) Partition() string {
	return PartitionWallet
}

func (d *DepositConfirmed) SourceSequence() int64 {
	return d.Sequence
}

// WithdrawalRequested debits a participant's cash account to the external
// withdrawal boundary. Rejected if cash is insufficient.
type WithdrawalRequested struct {
	WithdrawalID uuid.UUID
	UserID       uuid.UUID
	Asset        string
	Amount       int64
	Sequence     int64
	Timestamp    time.Time
}

func (w *WithdrawalRequested) IdempotencyKey() string {
	return w.WithdrawalID.String()
}

func (w *WithdrawalRequested) EventType() EventType {
	return EventTypeWithdrawalRequested
}

func (w *WithdrawalRequested) Partition() string {
	return PartitionWallet
}

func (w *WithdrawalRequested) SourceSequence() int64 {
	return w.Sequence
}
