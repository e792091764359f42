package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ForecastRequest is one identity asking for one ticker.
type ForecastRequest struct {
	Identity    string
	Ticker      string
	RequestedAt time.Time
}

// ForecastResult is the persisted outcome of a pipeline run. A row exists
// only when both plot files exist on disk.
type ForecastResult struct {
	ID             int64           `json:"id"`
	Identity       string          `json:"identity"`
	Ticker         string          `json:"ticker"`
	CreatedAt      time.Time       `json:"created_at"`
	NextPrice      decimal.Decimal `json:"next_price"`
	MSE            float64         `json:"mse"`
	RMSE           float64         `json:"rmse"`
	R2             float64         `json:"r2"`
	ClosingPlot    string          `json:"closing_plot"`
	ComparisonPlot string          `json:"comparison_plot"`
	Metrics        map[string]any  `json:"metrics"`
}

// ForecastFilter narrows a listing. Zero values match everything.
type ForecastFilter struct {
	Ticker string
	Date   time.Time
}

// IdentityLink binds a chat to an application identity.
type IdentityLink struct {
	ChatID    int64
	Identity  string
	CreatedAt time.Time
}
