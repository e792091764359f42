package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"StockInsight/internal/model"
)

// YahooSource implements Source using the Yahoo Finance v8 chart API.
type YahooSource struct {
	Client    *http.Client
	BaseURL   string
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
}

// NewYahooSource creates a new Yahoo Finance source.
func NewYahooSource(baseURL, proxyURL string) *YahooSource {
	return &YahooSource{
		Client:    newHTTPClient(proxyURL, 30*time.Second),
		BaseURL:   strings.TrimRight(baseURL, "/"),
		SymbolMap: defaultSymbolMap(),
	}
}

func (s *YahooSource) Name() string { return "yahoo" }

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (s *YahooSource) Fetch(ctx context.Context, symbol, period, interval string) (model.TimeSeries, Outcome, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=%s",
		s.BaseURL, url.PathEscape(mapSymbol(s.SymbolMap, symbol)),
		url.QueryEscape(period), url.QueryEscape(interval))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, OutcomeFatal, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, OutcomeFatal, ctx.Err()
		}
		return nil, OutcomeRetry, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, OutcomeRetry, fmt.Errorf("yahoo read body: %w", err)
	}
	if outcome := classifyStatus(resp.StatusCode); outcome != OutcomeSuccess {
		return nil, outcome, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, truncate(body, 200))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, OutcomeRetry, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		if chart.Chart.Error.Code == "Not Found" {
			return nil, OutcomeFatal, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
		}
		return nil, OutcomeRetry, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 ||
		len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, OutcomeRetry, fmt.Errorf("yahoo: no data returned for %s", symbol)
	}

	result := chart.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close
	bars := make([]model.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue // skip null bars (holidays etc.)
		}
		bars = append(bars, model.Bar{Time: time.Unix(ts, 0).UTC(), Close: *closes[i]})
	}
	if len(bars) == 0 {
		return nil, OutcomeRetry, fmt.Errorf("yahoo: no data returned for %s", symbol)
	}

	return model.Normalize(bars), OutcomeSuccess, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
