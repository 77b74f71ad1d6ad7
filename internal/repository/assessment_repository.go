package repository

import (
	"context"
	"fmt"

	"fixture-edge/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const createTables = `
CREATE TABLE IF NOT EXISTS resolutions (
    event_key        TEXT        PRIMARY KEY,
    fixture_id       TEXT        NOT NULL,
    home             TEXT        NOT NULL,
    away             TEXT        NOT NULL,
    league           TEXT        NOT NULL DEFAULT '',
    country          TEXT        NOT NULL DEFAULT '',
    start_time       TIMESTAMPTZ NOT NULL,
    method           TEXT        NOT NULL,
    alignment        TEXT        NOT NULL,
    team_similarity  NUMERIC     NOT NULL,
    total_score      NUMERIC     NOT NULL,
    resolved_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS assessments (
    fixture_id               TEXT             NOT NULL,
    selection                TEXT             NOT NULL,
    cooldown_bucket          TIMESTAMPTZ      NOT NULL,
    event_key                TEXT             NOT NULL,
    market                   TEXT             NOT NULL,
    outcome                  TEXT             NOT NULL,
    point                    DOUBLE PRECISION,
    home                     TEXT             NOT NULL,
    away                     TEXT             NOT NULL,
    league                   TEXT             NOT NULL DEFAULT '',
    bookmaker                TEXT             NOT NULL,
    price                    DOUBLE PRECISION NOT NULL,
    median_price             DOUBLE PRECISION NOT NULL,
    bookmaker_count          INTEGER          NOT NULL,
    probability_pct          DOUBLE PRECISION NOT NULL,
    implied_probability_pct  DOUBLE PRECISION NOT NULL,
    ev_pct                   DOUBLE PRECISION NOT NULL,
    tier                     TEXT             NOT NULL,
    created_at               TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
    PRIMARY KEY (fixture_id, selection, cooldown_bucket)
);

CREATE INDEX IF NOT EXISTS idx_assessments_created
    ON assessments (created_at DESC);
`

const upsertResolution = `
INSERT INTO resolutions (event_key, fixture_id, home, away, league, country, start_time, method, alignment, team_similarity, total_score)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (event_key) DO UPDATE SET
    fixture_id = EXCLUDED.fixture_id,
    method = EXCLUDED.method,
    alignment = EXCLUDED.alignment,
    team_similarity = EXCLUDED.team_similarity,
    total_score = EXCLUDED.total_score,
    resolved_at = NOW()`

// A retried cycle re-emits the same bucket; the first write wins.
const insertAssessment = `
INSERT INTO assessments (
    fixture_id, selection, cooldown_bucket, event_key, market, outcome, point,
    home, away, league, bookmaker, price, median_price, bookmaker_count,
    probability_pct, implied_probability_pct, ev_pct, tier)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
ON CONFLICT (fixture_id, selection, cooldown_bucket) DO NOTHING`

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type AssessmentRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewAssessmentRepository(pool PgxPool, tracer trace.Tracer) *AssessmentRepository {
	return &AssessmentRepository{pool: pool, tracer: tracer}
}

func (r *AssessmentRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "assessment-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createTables)
	return err
}

func (r *AssessmentRepository) SaveResolution(ctx context.Context, eventKey string, m domain.ResolvedMatch) error {
	_, span := r.tracer.Start(ctx, "assessment-repo.save-resolution")
	defer span.End()

	f := m.Fixture
	_, err := r.pool.Exec(ctx, upsertResolution,
		eventKey, f.FixtureID, f.Home, f.Away, f.League, f.Country, f.StartTime,
		m.Method, string(m.Score.Alignment), m.Score.TeamSimilarity, m.Score.Total,
	)
	if err != nil {
		return fmt.Errorf("save resolution %s: %w", eventKey, err)
	}
	return nil
}

func (r *AssessmentRepository) SaveAssessments(ctx context.Context, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "assessment-repo.save-assessments")
	defer span.End()
	span.SetAttributes(attribute.Int("assessments", len(alerts)))

	batch := &pgx.Batch{}
	for _, a := range alerts {
		c := a.Consensus
		batch.Queue(insertAssessment,
			a.Match.Fixture.FixtureID, c.Selection(), a.Bucket, a.EventKey, c.MarketKey, c.Outcome, c.Point,
			a.Match.Fixture.Home, a.Match.Fixture.Away, a.Match.Fixture.League, c.Best.Bookmaker, a.Assessment.SelectedPrice,
			c.MedianPrice, c.BookmakerCount,
			a.Assessment.ProbabilityPct, a.Assessment.ImpliedProbabilityPct, a.Assessment.EVPct, string(a.Assessment.Tier),
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, a := range alerts {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("save assessment %s %s: %w", a.Match.Fixture.FixtureID, a.Consensus.Selection(), err)
		}
	}
	return nil
}

func (r *AssessmentRepository) RecentAssessments(ctx context.Context, limit int) ([]domain.AssessmentRecord, error) {
	_, span := r.tracer.Start(ctx, "assessment-repo.recent-assessments")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT fixture_id, selection, home, away, league, bookmaker, price, probability_pct, ev_pct, tier, cooldown_bucket, created_at
		 FROM assessments
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AssessmentRecord
	for rows.Next() {
		var a domain.AssessmentRecord
		var tier string
		if err := rows.Scan(&a.FixtureID, &a.Selection, &a.Home, &a.Away, &a.League, &a.Bookmaker,
			&a.Price, &a.ProbabilityPct, &a.EVPct, &tier, &a.Bucket, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Tier = domain.Tier(tier)
		a.Bucket = a.Bucket.UTC()
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
