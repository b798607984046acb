// Package store persists completed pipeline runs to PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/junhopark/slatepick/pkg/slate"
)

var _ slate.Store = (*Postgres)(nil)

// Postgres stores runs, predictions, and anomalies.
type Postgres struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPostgres opens the connection, pings it, and ensures the schema.
func NewPostgres(dsn string, log zerolog.Logger) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &Postgres{db: db, log: log.With().Str("component", "store").Logger()}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	s.log.Info().Msg("postgres store ready")
	return s, nil
}

func (s *Postgres) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id UUID PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL,
		elapsed_ms BIGINT NOT NULL,
		match_count INT NOT NULL,
		plan_id UUID,
		total_combinations INT NOT NULL DEFAULT 0,
		total_cost DECIMAL(14, 2) NOT NULL DEFAULT 0,
		expected_probability DOUBLE PRECISION NOT NULL DEFAULT 0,
		plan JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS predictions (
		id SERIAL PRIMARY KEY,
		run_id UUID NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		match_id VARCHAR(200) NOT NULL,
		home_team VARCHAR(200) NOT NULL,
		away_team VARCHAR(200) NOT NULL,
		winner VARCHAR(10) NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		consensus_score DOUBLE PRECISION NOT NULL,
		probabilities JSONB NOT NULL,
		upset_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(run_id, match_id)
	);

	CREATE TABLE IF NOT EXISTS anomalies (
		id SERIAL PRIMARY KEY,
		run_id UUID NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		match_id VARCHAR(200) NOT NULL,
		kind VARCHAR(20) NOT NULL,
		outcome VARCHAR(10) NOT NULL,
		bet VARCHAR(10) NOT NULL,
		divergence DOUBLE PRECISION NOT NULL,
		risk VARCHAR(10) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_predictions_match ON predictions(match_id);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// SaveRun writes the run, its predictions, and its anomalies in one
// transaction.
func (s *Postgres) SaveRun(ctx context.Context, run *slate.Run) error {
	planJSON, err := json.Marshal(run.Plan)
	if err != nil {
		return fmt.Errorf("marshaling plan: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var planID sql.NullString
	var totalCombos int
	var totalCost string
	var expectedProb float64
	if run.Plan != nil {
		planID = sql.NullString{String: run.Plan.PlanID, Valid: true}
		totalCombos = run.Plan.TotalCombinations
		totalCost = run.Plan.TotalCost.String()
		expectedProb = run.Plan.ExpectedProbability
	} else {
		totalCost = "0"
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, elapsed_ms, match_count, plan_id, total_combinations, total_cost, expected_probability, plan)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.RunID, run.StartedAt, run.Elapsed.Milliseconds(), len(run.Matches),
		planID, totalCombos, totalCost, expectedProb, planJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for _, pred := range run.Predictions {
		probs, err := json.Marshal(pred.Probabilities)
		if err != nil {
			return fmt.Errorf("marshaling probabilities for %s: %w", pred.MatchID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO predictions (run_id, match_id, home_team, away_team, winner, confidence, consensus_score, probabilities, upset_score)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			run.RunID, pred.MatchID, pred.HomeTeam, pred.AwayTeam,
			string(pred.Winner), pred.Confidence, pred.ConsensusScore,
			probs, run.UpsetScores[pred.MatchID],
		)
		if err != nil {
			return fmt.Errorf("inserting prediction for %s: %w", pred.MatchID, err)
		}
	}

	for _, a := range run.Anomalies {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO anomalies (run_id, match_id, kind, outcome, bet, divergence, risk)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			run.RunID, a.MatchID, string(a.Kind), string(a.Outcome),
			string(a.Bet), a.Divergence, string(a.Risk),
		)
		if err != nil {
			return fmt.Errorf("inserting anomaly for %s: %w", a.MatchID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}

	s.log.Debug().Str("run", run.RunID).Int("predictions", len(run.Predictions)).Msg("run persisted")
	return nil
}

// RunSummary is a stored run header.
type RunSummary struct {
	RunID               string    `json:"run_id"`
	StartedAt           time.Time `json:"started_at"`
	ElapsedMs           int64     `json:"elapsed_ms"`
	MatchCount          int       `json:"match_count"`
	TotalCombinations   int       `json:"total_combinations"`
	TotalCost           string    `json:"total_cost"`
	ExpectedProbability float64   `json:"expected_probability"`
}

// RecentRuns lists the latest run headers, newest first.
func (s *Postgres) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, elapsed_ms, match_count, total_combinations, total_cost, expected_probability
		FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.ElapsedMs, &r.MatchCount,
			&r.TotalCombinations, &r.TotalCost, &r.ExpectedProbability); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MatchHistory returns stored prediction rows for one match, newest
// first, for drift inspection across runs.
func (s *Postgres) MatchHistory(ctx context.Context, matchID string, limit int) ([]StoredPrediction, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, match_id, home_team, away_team, winner, confidence, consensus_score, probabilities, upset_score, created_at
		FROM predictions WHERE match_id = $1 ORDER BY created_at DESC LIMIT $2`, matchID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying predictions: %w", err)
	}
	defer rows.Close()

	var out []StoredPrediction
	for rows.Next() {
		var p StoredPrediction
		var probs []byte
		if err := rows.Scan(&p.RunID, &p.MatchID, &p.HomeTeam, &p.AwayTeam, &p.Winner,
			&p.Confidence, &p.ConsensusScore, &probs, &p.UpsetScore, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning prediction: %w", err)
		}
		if err := json.Unmarshal(probs, &p.Probabilities); err != nil {
			return nil, fmt.Errorf("unmarshaling probabilities: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// StoredPrediction is a persisted prediction row.
type StoredPrediction struct {
	RunID          string             `json:"run_id"`
	MatchID        string             `json:"match_id"`
	HomeTeam       string             `json:"home_team"`
	AwayTeam       string             `json:"away_team"`
	Winner         string             `json:"winner"`
	Confidence     float64            `json:"confidence"`
	ConsensusScore float64            `json:"consensus_score"`
	Probabilities  map[string]float64 `json:"probabilities"`
	UpsetScore     float64            `json:"upset_score"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Close closes the database connection.
func (s *Postgres) Close() error {
	return s.db.Close()
}
