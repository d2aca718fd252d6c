// Package report delivers finished evaluation reports: it persists them in
// PostgreSQL, publishes them to Kafka, keeps the latest ones in memory and
// serves them over HTTP and RPC.
package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/internal/evaluation"
	apperrors "github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/postgres"
	"github.com/rs/zerolog"
)

// Writer accepts finished reports.
type Writer interface {
	Save(ctx context.Context, rep *evaluation.Report) error
}

// Reader looks reports up, newest first. Latest returns an error wrapping
// apperrors.ErrReportNotFound when there is none.
type Reader interface {
	Latest(ctx context.Context) (*evaluation.Report, error)
	List(ctx context.Context, limit int) ([]evaluation.Report, error)
	ForRun(ctx context.Context, runID string) ([]evaluation.Report, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS evaluation_reports (
    id               BIGSERIAL PRIMARY KEY,
    run_id           TEXT NOT NULL,
    epoch            INTEGER NOT NULL,
    profile          TEXT NOT NULL DEFAULT '',
    smoothing        TEXT NOT NULL,
    perplexity       DOUBLE PRECISION,
    batches          INTEGER NOT NULL,
    examples_scored  INTEGER NOT NULL,
    examples_skipped INTEGER NOT NULL,
    data             JSONB NOT NULL,
    started_at       TIMESTAMPTZ NOT NULL,
    finished_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS evaluation_reports_run_idx ON evaluation_reports (run_id, epoch);
CREATE TABLE IF NOT EXISTS evaluation_bleu (
    report_id      BIGINT NOT NULL REFERENCES evaluation_reports (id) ON DELETE CASCADE,
    bleu_order     SMALLINT NOT NULL,
    bleu_precision DOUBLE PRECISION NOT NULL,
    bleu_recall    DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (report_id, bleu_order)
);`

// Store persists reports in PostgreSQL. Each report is one row in
// evaluation_reports holding the full JSON document, plus one
// evaluation_bleu row per BLEU order for SQL-side querying.
type Store struct {
	db     *postgres.Client
	logger zerolog.Logger
}

// NewStore creates a report store on db.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: logger.WithComponent("report-store"),
	}
}

// EnsureSchema creates the report tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating report schema: %w", err)
	}
	return nil
}

// Save inserts rep and its per-order rows in one transaction.
func (s *Store) Save(ctx context.Context, rep *evaluation.Report) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO evaluation_reports
			    (run_id, epoch, profile, smoothing, perplexity, batches,
			     examples_scored, examples_skipped, data, started_at, finished_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 RETURNING id`,
			rep.RunID, rep.Epoch, rep.Profile, rep.Smoothing, nullFloat(rep.Perplexity),
			rep.Batches, rep.ExamplesScored, rep.SkippedTotal(), data,
			rep.StartedAt, rep.FinishedAt,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("inserting report: %w", err)
		}
		if rep.BLEU == nil {
			return nil
		}
		for o := range rep.BLEU.Precision {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO evaluation_bleu (report_id, bleu_order, bleu_precision, bleu_recall)
				 VALUES ($1, $2, $3, $4)`,
				id, o+1, rep.BLEU.Precision[o], rep.BLEU.Recall[o],
			); err != nil {
				return fmt.Errorf("inserting bleu-%d: %w", o+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}

	s.logger.Info().
		Str("run_id", rep.RunID).
		Int("epoch", rep.Epoch).
		Msg("report saved")
	return nil
}

// Latest returns the most recently finished report.
func (s *Store) Latest(ctx context.Context) (*evaluation.Report, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM evaluation_reports ORDER BY finished_at DESC, id DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest report: %w", err)
	}
	var rep evaluation.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("unmarshaling report: %w", err)
	}
	return &rep, nil
}

// List returns up to limit reports, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]evaluation.Report, error) {
	return s.query(ctx,
		`SELECT data FROM evaluation_reports ORDER BY finished_at DESC, id DESC LIMIT $1`,
		limit)
}

// ForRun returns every report of runID, newest first.
func (s *Store) ForRun(ctx context.Context, runID string) ([]evaluation.Report, error) {
	return s.query(ctx,
		`SELECT data FROM evaluation_reports WHERE run_id = $1 ORDER BY finished_at DESC, id DESC`,
		runID)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]evaluation.Report, error) {
	rows, err := s.db.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	var reports []evaluation.Report
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning report row: %w", err)
		}
		var rep evaluation.Report
		if err := json.Unmarshal(data, &rep); err != nil {
			s.logger.Warn().Err(err).Msg("skipping corrupt report")
			continue
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
