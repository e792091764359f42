package recorder

import (
	"context"
	"strings"
	"time"

	"StockInsight/internal/model"
)

// Recorder persists forecasts and chat identity links.
type Recorder interface {
	// SaveForecast inserts res and sets its ID.
	SaveForecast(ctx context.Context, res *model.ForecastResult) error
	// ListForecasts returns the identity's forecasts, newest first.
	ListForecasts(ctx context.Context, identity string, filter model.ForecastFilter) ([]*model.ForecastResult, error)
	// LatestForecast returns nil without error when the identity has none.
	LatestForecast(ctx context.Context, identity string) (*model.ForecastResult, error)
	// Tickers lists every distinct ticker ever forecast.
	Tickers(ctx context.Context) ([]string, error)
	// ReferencedArtifacts returns every plot path stored in a row.
	ReferencedArtifacts(ctx context.Context) (map[string]struct{}, error)
	// LinkIdentity returns the existing link for chatID or creates one.
	LinkIdentity(ctx context.Context, chatID int64, identity string) (*model.IdentityLink, error)
	Close() error
}

func matches(res *model.ForecastResult, identity string, filter model.ForecastFilter) bool {
	if res.Identity != identity {
		return false
	}
	if filter.Ticker != "" && !strings.EqualFold(res.Ticker, filter.Ticker) {
		return false
	}
	if !filter.Date.IsZero() {
		start, end := dayBounds(filter.Date)
		if res.CreatedAt.Before(start) || !res.CreatedAt.Before(end) {
			return false
		}
	}
	return true
}

// dayBounds returns the UTC calendar day containing t as [start, end).
func dayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
