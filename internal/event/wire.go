package event

import (
	"encoding/json"
	"fmt"
)

// MarshalWire encodes an inbound command into its JSON wire form, the same
// shape upstream producers publish on NATS. The event log stores this form
// so replay runs through the identical parse path as live ingestion.
func MarshalWire(evt Event) ([]byte, error) {
	switch e := evt.(type) {
	case *DepositConfirmed:
		return json.Marshal(map[string]interface{}{
			"deposit_id":   e.DepositID.String(),
			"user_id":      e.UserID.String(),
			"asset":        e.Asset,
			"amount":       e.Amount,
			"sequence":     e.Sequence,
			"timestamp_us": e.Timestamp.UnixMicro(),
		})
	case *WithdrawalRequested:
		return json.Marshal(map[string]interface{}{
			"withdrawal_id": e.WithdrawalID.String(),
			"user_id":       e.UserID.String(),
			"asset":         e.Asset,
			"amount":        e.Amount,
			"sequence":      e.Sequence,
			"timestamp_us":  e.Timestamp.UnixMicro(),
		})
	case *RoundCreate:
		return json.Marshal(map[string]interface{}{
			"request_id":   e.RequestID.String(),
			"creator":      e.Creator.String(),
			"side":         e.Side.String(),
			"stake":        e.Stake,
			"asset":        e.Asset,
			"sequence":     e.Sequence,
			"timestamp_us": e.Timestamp.UnixMicro(),
		})
	case *RoundEnter:
		m := map[string]interface{}{
			"request_id":   e.RequestID.String(),
			"entrant":      e.Entrant.String(),
			"round_id":     e.RoundID,
			"sequence":     e.Sequence,
			"timestamp_us": e.Timestamp.UnixMicro(),
		}
		if e.Draw != nil {
			m["draw"] = *e.Draw
		}
		return json.Marshal(m)
	case *RoundClose:
		return json.Marshal(map[string]interface{}{
			"request_id":   e.RequestID.String(),
			"caller":       e.Caller.String(),
			"round_id":     e.RoundID,
			"sequence":     e.Sequence,
			"timestamp_us": e.Timestamp.UnixMicro(),
		})
	default:
		return nil, fmt.Errorf("unknown event type: %T", evt)
	}
}
