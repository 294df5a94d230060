package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quantpipe/cointegration-pipeline/internal/model"
)

// schema mirrors the row shapes in the original implementation's
// storage/models.py, translated to Postgres DDL. Migrations proper are
// out of scope (spec §1); this is provided so a fresh database can be
// bootstrapped for local development and tests.
const schema = `
CREATE TABLE IF NOT EXISTS ticks (
	id BIGSERIAL PRIMARY KEY,
	timestamp BIGINT NOT NULL,
	symbol TEXT NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	quantity DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ticks_symbol_ts ON ticks (symbol, timestamp);

CREATE TABLE IF NOT EXISTS bars (
	symbol TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	start_time BIGINT NOT NULL,
	open DOUBLE PRECISION NOT NULL,
	high DOUBLE PRECISION NOT NULL,
	low DOUBLE PRECISION NOT NULL,
	close DOUBLE PRECISION NOT NULL,
	volume DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (symbol, timeframe, start_time)
);

CREATE TABLE IF NOT EXISTS analytics (
	id BIGSERIAL PRIMARY KEY,
	symbol_x TEXT NOT NULL,
	symbol_y TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	hedge_ratio DOUBLE PRECISION,
	spread DOUBLE PRECISION,
	spread_mean DOUBLE PRECISION,
	spread_std DOUBLE PRECISION,
	z_score DOUBLE PRECISION,
	z_score_mean DOUBLE PRECISION,
	z_score_std DOUBLE PRECISION,
	rolling_corr DOUBLE PRECISION,
	adf_statistic DOUBLE PRECISION,
	p_value DOUBLE PRECISION,
	is_stationary BOOLEAN,
	computed_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analytics_pair ON analytics (symbol_x, symbol_y, timeframe, computed_at);

CREATE TABLE IF NOT EXISTS alerts (
	id BIGSERIAL PRIMARY KEY,
	metric TEXT NOT NULL,
	condition TEXT NOT NULL,
	threshold DOUBLE PRECISION NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);
`

// Postgres is a pgx-backed Store. Connections are acquired from the pool
// per call and released on return (spec §5: "connections are
// per-task-scoped"); there is no long-lived shared connection.
type Postgres struct {
	pool *pgxpool.Pool
}

// Open connects to dbURL and returns a ready Postgres store.
func Open(ctx context.Context, dbURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("store: failed to create pool: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// EnsureSchema creates the pipeline's tables if they do not already
// exist. Intended for local development and integration tests; a real
// deployment manages schema through its own migration tooling (spec §1
// Non-goals: "relational schema migration details").
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schema)
	return err
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) AppendTicks(ctx context.Context, rows []model.Tick) error {
	if len(rows) == 0 {
		return nil
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("store: acquire conn: %w", err)
	}
	defer conn.Release()

	batch := &pgx.Batch{}
	for _, t := range rows {
		batch.Queue(
			`INSERT INTO ticks (timestamp, symbol, price, quantity) VALUES ($1, $2, $3, $4)`,
			t.Timestamp, t.Symbol, t.Price, t.Quantity,
		)
	}
	br := conn.SendBatch(ctx, batch)
	defer br.Close()
	for range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("store: append ticks: %w", err)
		}
	}
	return nil
}

func (p *Postgres) ReadRecentTicks(ctx context.Context, symbol string, n int) ([]model.Tick, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: acquire conn: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx,
		`SELECT timestamp, symbol, price, quantity FROM ticks
		 WHERE symbol = $1 ORDER BY timestamp DESC LIMIT $2`, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("store: read recent ticks: %w", err)
	}
	defer rows.Close()

	var out []model.Tick
	for rows.Next() {
		var t model.Tick
		if err := rows.Scan(&t.Timestamp, &t.Symbol, &t.Price, &t.Quantity); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	reverse(out)
	return out, rows.Err()
}

func (p *Postgres) UpsertBars(ctx context.Context, rows []model.Bar) error {
	if len(rows) == 0 {
		return nil
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("store: acquire conn: %w", err)
	}
	defer conn.Release()

	batch := &pgx.Batch{}
	for _, b := range rows {
		batch.Queue(`
			INSERT INTO bars (symbol, timeframe, start_time, open, high, low, close, volume)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (symbol, timeframe, start_time) DO UPDATE SET
				open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
				close = EXCLUDED.close, volume = EXCLUDED.volume`,
			b.Symbol, string(b.Timeframe), b.StartTime, b.Open, b.High, b.Low, b.Close, b.Volume,
		)
	}
	br := conn.SendBatch(ctx, batch)
	defer br.Close()
	for range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("store: upsert bars: %w", err)
		}
	}
	return nil
}

func (p *Postgres) ReadRecentBars(ctx context.Context, symbol string, timeframe model.Timeframe, n int) ([]model.Bar, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: acquire conn: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx,
		`SELECT symbol, timeframe, start_time, open, high, low, close, volume FROM bars
		 WHERE symbol = $1 AND timeframe = $2 ORDER BY start_time DESC LIMIT $3`,
		symbol, string(timeframe), n)
	if err != nil {
		return nil, fmt.Errorf("store: read recent bars: %w", err)
	}
	defer rows.Close()

	var out []model.Bar
	for rows.Next() {
		var b model.Bar
		var tf string
		if err := rows.Scan(&b.Symbol, &tf, &b.StartTime, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		b.Timeframe = model.Timeframe(tf)
		out = append(out, b)
	}
	reverse(out)
	return out, rows.Err()
}

func (p *Postgres) AppendAnalytics(ctx context.Context, row model.AnalyticsSnapshot) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("store: acquire conn: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
		INSERT INTO analytics (
			symbol_x, symbol_y, timeframe, hedge_ratio, spread, spread_mean, spread_std,
			z_score, z_score_mean, z_score_std, rolling_corr, adf_statistic, p_value,
			is_stationary, computed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		row.SymbolX, row.SymbolY, string(row.Timeframe),
		row.HedgeRatio, row.Spread, row.SpreadMean, row.SpreadStd,
		row.ZScore, row.ZScoreMean, row.ZScoreStd, row.RollingCorr,
		row.ADFStatistic, row.PValue, row.IsStationary, row.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("store: append analytics: %w", err)
	}
	return nil
}

func (p *Postgres) ReadRecentAnalytics(ctx context.Context, symbolX, symbolY string, timeframe model.Timeframe, n int) ([]model.AnalyticsSnapshot, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: acquire conn: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
		SELECT symbol_x, symbol_y, timeframe, hedge_ratio, spread, spread_mean, spread_std,
		       z_score, z_score_mean, z_score_std, rolling_corr, adf_statistic, p_value,
		       is_stationary, computed_at
		FROM analytics
		WHERE symbol_x = $1 AND symbol_y = $2 AND timeframe = $3
		ORDER BY computed_at DESC LIMIT $4`, symbolX, symbolY, string(timeframe), n)
	if err != nil {
		return nil, fmt.Errorf("store: read recent analytics: %w", err)
	}
	defer rows.Close()

	var out []model.AnalyticsSnapshot
	for rows.Next() {
		var a model.AnalyticsSnapshot
		var tf string
		if err := rows.Scan(&a.SymbolX, &a.SymbolY, &tf, &a.HedgeRatio, &a.Spread, &a.SpreadMean,
			&a.SpreadStd, &a.ZScore, &a.ZScoreMean, &a.ZScoreStd, &a.RollingCorr,
			&a.ADFStatistic, &a.PValue, &a.IsStationary, &a.ComputedAt); err != nil {
			return nil, err
		}
		a.Timeframe = model.Timeframe(tf)
		out = append(out, a)
	}
	reverse(out)
	return out, rows.Err()
}

func (p *Postgres) CreateAlert(ctx context.Context, a model.Alert) (model.Alert, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return model.Alert{}, fmt.Errorf("store: acquire conn: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx,
		`INSERT INTO alerts (metric, condition, threshold, is_active) VALUES ($1,$2,$3,TRUE) RETURNING id`,
		a.Metric, string(a.Condition), a.Threshold)
	if err := row.Scan(&a.ID); err != nil {
		return model.Alert{}, fmt.Errorf("store: create alert: %w", err)
	}
	a.Active = true
	return a, nil
}

func (p *Postgres) ListActiveAlerts(ctx context.Context) ([]model.Alert, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: acquire conn: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT id, metric, condition, threshold, is_active FROM alerts WHERE is_active = TRUE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list active alerts: %w", err)
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		var cond string
		if err := rows.Scan(&a.ID, &a.Metric, &cond, &a.Threshold, &a.Active); err != nil {
			return nil, err
		}
		a.Condition = model.Condition(cond)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) DeactivateAlert(ctx context.Context, id int64) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("store: acquire conn: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `UPDATE alerts SET is_active = FALSE WHERE id = $1`, id)
	return err
}

func (p *Postgres) DeleteAlert(ctx context.Context, id int64) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("store: acquire conn: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	return err
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
