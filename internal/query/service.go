package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"duelpool/internal/ledger"
	"duelpool/internal/round"
)

// Service provides read-only access to the projection tables. Reads are
// eventually consistent with the core; every response carries
// as_of_sequence, the last event the projections have folded in.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetBalance returns a participant's cash balance for an asset.
func (qs *Service) GetBalance(
	ctx context.Context,
	userID uuid.UUID,
	asset string,
) (*BalanceResponse, error) {
	assetID, ok := ledger.GetAssetID(asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", asset)
	}

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	path := ledger.NewUserAccountKey(userID, assetID).AccountPath()
	balance, err := qs.getProjectedBalance(ctx, path)
	if err != nil {
		return nil, err
	}

	return &BalanceResponse{
		UserID:       userID,
		Asset:        asset,
		Balance:      balance,
		AsOfSequence: asOfSeq,
	}, nil
}

// GetRoundCount returns the total number of rounds ever created. Rounds
// are append-only, so the count never decreases.
func (qs *Service) GetRoundCount(ctx context.Context) (*RoundCountResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := qs.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM projections.rounds`,
	).Scan(&count); err != nil {
		return nil, err
	}

	return &RoundCountResponse{Count: count, AsOfSequence: asOfSeq}, nil
}

// GetRound returns one round by id.
func (qs *Service) GetRound(ctx context.Context, roundID int64) (*RoundResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	row := qs.db.QueryRowContext(ctx, `
		SELECT round_id, side_a, side_b, winner, status, asset_id, stake_total, created_at, version
		FROM projections.rounds
		WHERE round_id = $1
	`, roundID)

	r, err := scanRound(row)
	if err == sql.ErrNoRows {
		return nil, round.ErrRoundNotFound
	}
	if err != nil {
		return nil, err
	}

	r.AsOfSequence = asOfSeq
	return r, nil
}

// ListRounds returns rounds ordered by id descending, optionally filtered
// by status, with cursor-based pagination.
func (qs *Service) ListRounds(
	ctx context.Context,
	status *string,
	limit int,
	beforeID *int64,
) ([]RoundResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT round_id, side_a, side_b, winner, status, asset_id, stake_total, created_at, version
		FROM projections.rounds
		WHERE TRUE
	`
	args := []interface{}{}
	argIdx := 1

	if status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *status)
		argIdx++
	}

	if beforeID != nil {
		query += fmt.Sprintf(" AND round_id < $%d", argIdx)
		args = append(args, *beforeID)
		argIdx++
	}

	query += " ORDER BY round_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RoundResponse
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		r.AsOfSequence = asOfSeq
		results = append(results, *r)
	}

	return results, rows.Err()
}

// GetWinner returns the winner of a round: nil while open, the drawn
// winner once resolved, the closing caller once forfeited.
func (qs *Service) GetWinner(ctx context.Context, roundID int64) (*WinnerResponse, error) {
	r, err := qs.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}

	return &WinnerResponse{
		RoundID:      r.RoundID,
		Winner:       r.Winner,
		Status:       r.Status,
		AsOfSequence: r.AsOfSequence,
	}, nil
}

// GetSides returns the two participant slots of a round.
func (qs *Service) GetSides(ctx context.Context, roundID int64) (*SidesResponse, error) {
	r, err := qs.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}

	return &SidesResponse{
		RoundID:      r.RoundID,
		SideA:        r.SideA,
		SideB:        r.SideB,
		AsOfSequence: r.AsOfSequence,
	}, nil
}

// GetJournalHistory returns journal entries touching a user's accounts,
// newest first, with cursor-based pagination.
func (qs *Service) GetJournalHistory(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("user:%s:%%", userID)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity and the global zero-sum
// invariant across the projected balances.
func (qs *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) as total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total int64
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRound(row rowScanner) (*RoundResponse, error) {
	var r RoundResponse
	var sideA, sideB, winner sql.NullString

	if err := row.Scan(
		&r.RoundID, &sideA, &sideB, &winner, &r.Status,
		&r.AssetID, &r.StakeTotal, &r.CreatedAt, &r.Version,
	); err != nil {
		return nil, err
	}

	var err error
	if r.SideA, err = parseNullUUID(sideA); err != nil {
		return nil, err
	}
	if r.SideB, err = parseNullUUID(sideB); err != nil {
		return nil, err
	}
	if r.Winner, err = parseNullUUID(winner); err != nil {
		return nil, err
	}

	return &r, nil
}

func parseNullUUID(s sql.NullString) (*uuid.UUID, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (qs *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(sequence, 0) FROM projections.watermark WHERE id = 1
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *Service) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}
