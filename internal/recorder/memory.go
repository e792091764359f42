package recorder

import (
	"context"
	"sort"
	"sync"
	"time"

	"StockInsight/internal/model"
)

// MemoryRecorder keeps everything in process. Tests use it wherever a real
// database adds nothing.
type MemoryRecorder struct {
	mu        sync.Mutex
	nextID    int64
	forecasts []*model.ForecastResult
	links     map[int64]*model.IdentityLink
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{links: make(map[int64]*model.IdentityLink)}
}

func (m *MemoryRecorder) SaveForecast(_ context.Context, res *model.ForecastResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	res.ID = m.nextID
	cp := *res
	m.forecasts = append(m.forecasts, &cp)
	return nil
}

func (m *MemoryRecorder) ListForecasts(_ context.Context, identity string, filter model.ForecastFilter) ([]*model.ForecastResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.ForecastResult
	for _, f := range m.forecasts {
		if matches(f, identity, filter) {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryRecorder) LatestForecast(ctx context.Context, identity string) (*model.ForecastResult, error) {
	list, _ := m.ListForecasts(ctx, identity, model.ForecastFilter{})
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (m *MemoryRecorder) Tickers(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{})
	var out []string
	for _, f := range m.forecasts {
		if _, ok := seen[f.Ticker]; !ok {
			seen[f.Ticker] = struct{}{}
			out = append(out, f.Ticker)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryRecorder) ReferencedArtifacts(_ context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]struct{}, 2*len(m.forecasts))
	for _, f := range m.forecasts {
		out[f.ClosingPlot] = struct{}{}
		out[f.ComparisonPlot] = struct{}{}
	}
	return out, nil
}

func (m *MemoryRecorder) LinkIdentity(_ context.Context, chatID int64, identity string) (*model.IdentityLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.links[chatID]; ok {
		cp := *l
		return &cp, nil
	}
	l := &model.IdentityLink{ChatID: chatID, Identity: identity, CreatedAt: time.Now().UTC()}
	m.links[chatID] = l
	cp := *l
	return &cp, nil
}

// Count returns the number of stored forecasts.
func (m *MemoryRecorder) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.forecasts)
}

func (m *MemoryRecorder) Close() error { return nil }
