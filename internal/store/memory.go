package store

import (
	"context"
	"sort"
	"sync"

	"github.com/quantpipe/cointegration-pipeline/internal/model"
)

// Memory is an in-process Store, useful for tests and local
// development without a Postgres instance.
type Memory struct {
	mu sync.Mutex

	ticks     map[string][]model.Tick
	bars      map[model.BarKey]model.Bar
	analytics []model.AnalyticsSnapshot
	alerts    map[int64]model.Alert
	nextAlert int64
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		ticks:  make(map[string][]model.Tick),
		bars:   make(map[model.BarKey]model.Bar),
		alerts: make(map[int64]model.Alert),
	}
}

func (m *Memory) AppendTicks(_ context.Context, rows []model.Tick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range rows {
		m.ticks[t.Symbol] = append(m.ticks[t.Symbol], t)
	}
	return nil
}

func (m *Memory) ReadRecentTicks(_ context.Context, symbol string, n int) ([]model.Tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.ticks[symbol]
	if n <= 0 || n > len(s) {
		n = len(s)
	}
	out := make([]model.Tick, n)
	copy(out, s[len(s)-n:])
	return out, nil
}

func (m *Memory) UpsertBars(_ context.Context, rows []model.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range rows {
		m.bars[b.Key()] = b
	}
	return nil
}

func (m *Memory) ReadRecentBars(_ context.Context, symbol string, timeframe model.Timeframe, n int) ([]model.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []model.Bar
	for k, b := range m.bars {
		if k.Symbol == symbol && k.Timeframe == timeframe {
			matched = append(matched, b)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].StartTime < matched[j].StartTime })
	if n > 0 && n < len(matched) {
		matched = matched[len(matched)-n:]
	}
	return matched, nil
}

func (m *Memory) AppendAnalytics(_ context.Context, row model.AnalyticsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analytics = append(m.analytics, row)
	return nil
}

func (m *Memory) ReadRecentAnalytics(_ context.Context, symbolX, symbolY string, timeframe model.Timeframe, n int) ([]model.AnalyticsSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []model.AnalyticsSnapshot
	for _, a := range m.analytics {
		if a.SymbolX == symbolX && a.SymbolY == symbolY && a.Timeframe == timeframe {
			matched = append(matched, a)
		}
	}
	if n > 0 && n < len(matched) {
		matched = matched[len(matched)-n:]
	}
	return matched, nil
}

func (m *Memory) CreateAlert(_ context.Context, a model.Alert) (model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAlert++
	a.ID = m.nextAlert
	a.Active = true
	m.alerts[a.ID] = a
	return a, nil
}

func (m *Memory) ListActiveAlerts(_ context.Context) ([]model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Alert
	for _, a := range m.alerts {
		if a.Active {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeactivateAlert(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.alerts[id]; ok {
		a.Active = false
		m.alerts[id] = a
	}
	return nil
}

func (m *Memory) DeleteAlert(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.alerts, id)
	return nil
}
