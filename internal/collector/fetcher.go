package collector

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"StockInsight/internal/model"
)

// Outcome tags the result of a single fetch attempt. The retry loop branches
// on it rather than inspecting error types.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetry
	OutcomeRateLimited
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Source is a primary market-data provider attempted with retries.
type Source interface {
	Fetch(ctx context.Context, symbol, period, interval string) (model.TimeSeries, Outcome, error)
	Name() string
}

// Fallback is the last-resort provider, called at most once per fetch.
type Fallback interface {
	FetchIntraday(ctx context.Context, symbol string) (model.TimeSeries, error)
	Name() string
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func classifyStatus(code int) Outcome {
	switch {
	case code == http.StatusOK:
		return OutcomeSuccess
	case code == http.StatusTooManyRequests:
		return OutcomeRateLimited
	case code == http.StatusRequestTimeout, code >= 500:
		return OutcomeRetry
	case code >= 400:
		return OutcomeFatal
	default:
		return OutcomeRetry
	}
}

// newHTTPClient builds a client with an optional proxy.
func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// defaultSymbolMap maps internal aliases to Yahoo tickers.
func defaultSymbolMap() map[string]string {
	return map[string]string{
		"SPX500": "^GSPC",
		"SPX":    "^GSPC",
		"SP500":  "^GSPC",
	}
}

func mapSymbol(m map[string]string, symbol string) string {
	if mapped, ok := m[symbol]; ok {
		return mapped
	}
	return symbol
}
