package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"duelpool/internal/observability"
)

// ProjectionOutput mirrors the data projection workers need. The
// orchestrator bridges between core.CoreOutput and this.
type ProjectionOutput struct {
	Sequence       int64
	EventType      string
	JournalEntries []JournalEntry
	Round          *RoundUpdate
	Timestamp      int64
}

// JournalEntry is a simplified journal for projection consumption.
type JournalEntry struct {
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
	JournalType   int32
}

// RoundUpdate is the post-event round state to upsert.
type RoundUpdate struct {
	RoundID    int64
	SideA      *string
	SideB      *string
	Winner     *string
	Status     string
	AssetID    uint16
	StakeTotal int64
	CreatedAt  time.Time
	Version    int64
}

// Worker updates projection tables from processed events. The projection
// channel is non-blocking with drop; if projections fall behind they are
// rebuilt from the event log.
type Worker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	lastSeq   int64
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewWorker(db *sql.DB, inputChan <-chan ProjectionOutput, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    observability.NewLogger("projection"),
	}
}

// Run starts the projection loop.
func (pw *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			start := time.Now()
			if err := pw.processOutput(ctx, output); err != nil {
				// Continue: projections are eventually consistent and
				// can be rebuilt from the event log.
				pw.logger.Warn().
					Int64("sequence", output.Sequence).
					Err(err).
					Msg("projection update failed")
			} else if pw.metrics != nil {
				pw.metrics.ProjectionUpdateDur.WithLabelValues("main").Observe(time.Since(start).Seconds())
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *Worker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, j := range output.JournalEntries {
		if err := pw.updateBalanceProjection(ctx, tx, j, output.Sequence); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	if output.Round != nil {
		if err := pw.upsertRound(ctx, tx, output.Round, output.Sequence); err != nil {
			return fmt.Errorf("round projection: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE projections.watermark SET sequence = $1, updated_at = NOW() WHERE id = 1
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// updateBalanceProjection folds one journal into the balances table.
// Sign convention matches the in-memory tracker: the debit account gains
// the amount, the credit account loses it.
func (pw *Worker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, j JournalEntry, seq int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, updated_seq)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path)
		DO UPDATE SET balance = projections.balances.balance + $3, updated_seq = $4
	`, j.DebitAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, updated_seq)
		VALUES ($1, $2, -$3, $4)
		ON CONFLICT (account_path)
		DO UPDATE SET balance = projections.balances.balance - $3, updated_seq = $4
	`, j.CreditAccount, j.AssetID, j.Amount, seq); err != nil {
		return err
	}

	return nil
}

func (pw *Worker) upsertRound(ctx context.Context, tx *sql.Tx, r *RoundUpdate, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.rounds
			(round_id, side_a, side_b, winner, status, asset_id, stake_total, created_at, version, updated_seq)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (round_id) DO UPDATE SET
			side_a = $2, side_b = $3, winner = $4, status = $5,
			stake_total = $7, version = $9, updated_seq = $10
		WHERE projections.rounds.version <= $9
	`, r.RoundID, r.SideA, r.SideB, r.Winner, r.Status,
		r.AssetID, r.StakeTotal, r.CreatedAt, r.Version, seq)
	return err
}

// RebuildBalances rebuilds the balances table from the journal. Rounds are
// restored from the latest snapshot plus replay, not from here.
func RebuildBalances(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `TRUNCATE projections.balances`); err != nil {
		return fmt.Errorf("truncate failed: %w", err)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, updated_seq)
		SELECT
			debit_account AS account_path,
			asset_id,
			SUM(amount) AS balance,
			MAX(sequence) AS updated_seq
		FROM event_log.journal
		GROUP BY debit_account, asset_id
		ON CONFLICT (account_path) DO UPDATE
			SET balance = EXCLUDED.balance, updated_seq = EXCLUDED.updated_seq
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit side: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, updated_seq)
		SELECT
			credit_account AS account_path,
			asset_id,
			-SUM(amount) AS balance,
			MAX(sequence) AS updated_seq
		FROM event_log.journal
		GROUP BY credit_account, asset_id
		ON CONFLICT (account_path) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    updated_seq = GREATEST(projections.balances.updated_seq, EXCLUDED.updated_seq)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit side: %w", err)
	}

	return nil
}
