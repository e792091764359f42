package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"StockInsight/internal/model"
)

// IntradaySource fetches one day of one-minute bars straight from the chart
// endpoint. It walks the JSON generically so a changed payload shape is
// reported instead of silently decoding to zero values.
type IntradaySource struct {
	Client    *http.Client
	BaseURL   string
	SymbolMap map[string]string
}

func NewIntradaySource(baseURL, proxyURL string) *IntradaySource {
	return &IntradaySource{
		Client:    newHTTPClient(proxyURL, 10*time.Second),
		BaseURL:   strings.TrimRight(baseURL, "/"),
		SymbolMap: defaultSymbolMap(),
	}
}

func (s *IntradaySource) Name() string { return "intraday" }

func (s *IntradaySource) FetchIntraday(ctx context.Context, symbol string) (model.TimeSeries, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?range=1d&interval=1m",
		s.BaseURL, url.PathEscape(mapSymbol(s.SymbolMap, symbol)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDataUnavailable, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Connection", "keep-alive")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: intraday fetch %s: %v", model.ErrDataUnavailable, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: intraday fetch %s: status %d", model.ErrDataUnavailable, symbol, resp.StatusCode)
	}

	var data map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: unexpected response structure for %s", model.ErrDataUnavailable, symbol)
	}

	timestamps, closes, ok := chartColumns(data)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected response structure for %s", model.ErrDataUnavailable, symbol)
	}
	if len(timestamps) == 0 || len(closes) == 0 {
		return nil, fmt.Errorf("%w: no intraday data returned for %s", model.ErrDataUnavailable, symbol)
	}

	bars := make([]model.Bar, 0, len(timestamps))
	for i, ts := range timestamps {
		if i >= len(closes) {
			break
		}
		sec, okTS := ts.(float64)
		price, okClose := closes[i].(float64)
		if !okTS || !okClose {
			continue
		}
		bars = append(bars, model.Bar{Time: time.Unix(int64(sec), 0).UTC(), Close: price})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no intraday data returned for %s", model.ErrDataUnavailable, symbol)
	}
	return model.Normalize(bars), nil
}

// chartColumns extracts chart.result[0].timestamp and
// chart.result[0].indicators.quote[0].close.
func chartColumns(data map[string]any) (timestamps, closes []any, ok bool) {
	chart, ok := data["chart"].(map[string]any)
	if !ok {
		return nil, nil, false
	}
	results, ok := chart["result"].([]any)
	if !ok || len(results) == 0 {
		return nil, nil, false
	}
	result, ok := results[0].(map[string]any)
	if !ok {
		return nil, nil, false
	}
	timestamps, ok = asList(result, "timestamp")
	if !ok {
		return nil, nil, false
	}
	indicators, ok := result["indicators"].(map[string]any)
	if !ok {
		return nil, nil, false
	}
	quotes, ok := indicators["quote"].([]any)
	if !ok || len(quotes) == 0 {
		return nil, nil, false
	}
	quote, ok := quotes[0].(map[string]any)
	if !ok {
		return nil, nil, false
	}
	closes, ok = asList(quote, "close")
	if !ok {
		return nil, nil, false
	}
	return timestamps, closes, true
}

// asList reads m[key] as a JSON array. A present null counts as empty; a
// missing key does not.
func asList(m map[string]any, key string) ([]any, bool) {
	v, present := m[key]
	if !present {
		return nil, false
	}
	if v == nil {
		return nil, true
	}
	list, ok := v.([]any)
	return list, ok
}
