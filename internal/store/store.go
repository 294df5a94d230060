// Package store defines the persistence port consumed by the Tick
// Writer, Resampler, Pair Analytics, and Alert Engine, plus two
// implementations: an in-memory store for tests and a pgx-backed
// Postgres store for production (spec §6: "implementable over any
// relational or append-only store").
package store

import (
	"context"

	"github.com/quantpipe/cointegration-pipeline/internal/model"
)

// Store is the abstract append/read persistence port. The pipeline
// exclusively owns writes; the out-of-scope HTTP query API reads from
// the same store without mutating it (spec §3 ownership note).
type Store interface {
	AppendTicks(ctx context.Context, rows []model.Tick) error
	ReadRecentTicks(ctx context.Context, symbol string, n int) ([]model.Tick, error)

	UpsertBars(ctx context.Context, rows []model.Bar) error
	ReadRecentBars(ctx context.Context, symbol string, timeframe model.Timeframe, n int) ([]model.Bar, error)

	AppendAnalytics(ctx context.Context, row model.AnalyticsSnapshot) error
	ReadRecentAnalytics(ctx context.Context, symbolX, symbolY string, timeframe model.Timeframe, n int) ([]model.AnalyticsSnapshot, error)

	CreateAlert(ctx context.Context, a model.Alert) (model.Alert, error)
	ListActiveAlerts(ctx context.Context) ([]model.Alert, error)
	DeactivateAlert(ctx context.Context, id int64) error
	DeleteAlert(ctx context.Context, id int64) error
}
