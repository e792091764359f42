package notifier

import (
	"fmt"
	"html"
	"strings"

	"StockInsight/internal/model"
)

const (
	MsgThrottled     = "⏳ Rate limit: %d predictions per minute."
	MsgPredictUsage  = "Usage: /predict &lt;TICKER&gt;"
	MsgPredictFailed = "🚨 Prediction failed. Please try again later."
	MsgNoPredictions = "No predictions yet. Use /predict first."
	MsgLatestFailed  = "⚠️ Failed to load your latest prediction."
	MsgGenericError  = "⚠️ An error occurred. Please try again later."
)

// FormatWelcome is the reply to start.
func FormatWelcome() string {
	var b strings.Builder
	b.WriteString("📈 <b>Welcome to Stock Insight Bot!</b>\n\n")
	b.WriteString("/predict &lt;TICKER&gt; – Get tomorrow's price prediction\n")
	b.WriteString("/latest – Show your most recent prediction\n")
	b.WriteString("/help – Show help")
	return b.String()
}

// FormatHelp is the static capability summary.
func FormatHelp() string {
	var b strings.Builder
	b.WriteString("ℹ️ <b>Commands:</b>\n")
	b.WriteString("/predict &lt;TICKER&gt; – Predict price (e.g., /predict AAPL)\n")
	b.WriteString("/latest – Show your most recent prediction")
	return b.String()
}

func FormatThrottled(maxCalls int) string {
	return fmt.Sprintf(MsgThrottled, maxCalls)
}

func FormatAnalyzing(ticker string) string {
	return fmt.Sprintf("🔍 Analyzing %s…", html.EscapeString(ticker))
}

// FormatUserError echoes a user-facing failure such as an unknown ticker.
func FormatUserError(err error) string {
	return "❌ " + html.EscapeString(err.Error())
}

// FormatPrediction summarises a fresh forecast and how many of its two
// charts reached the chat.
func FormatPrediction(res *model.ForecastResult, chartsShown int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>%s Prediction</b>\n\n", html.EscapeString(res.Ticker)))
	b.WriteString(fmt.Sprintf("➡️ Next Price: <b>$%s</b>\n", res.NextPrice.StringFixed(2)))
	b.WriteString(fmt.Sprintf("📈 Accuracy: R² %.3f, RMSE %.4f\n", res.R2, res.RMSE))
	if rsi, ok := metricFloat(res.Metrics, "rsi_14"); ok {
		b.WriteString(fmt.Sprintf("📉 RSI(14): %.0f", rsi))
		if sma, ok := metricFloat(res.Metrics, "sma_50"); ok {
			b.WriteString(fmt.Sprintf(" | SMA(50): $%.2f", sma))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if chartsShown > 0 {
		b.WriteString("🖼️ ")
	} else {
		b.WriteString("⚠️ ")
	}
	b.WriteString(fmt.Sprintf("%d/2 charts shown", chartsShown))
	return b.String()
}

// FormatLatest summarises a stored forecast with its original creation time.
func FormatLatest(res *model.ForecastResult, chartAttached bool) string {
	var b strings.Builder
	b.WriteString("⏱️ <b>Your Latest Prediction</b>\n\n")
	b.WriteString(fmt.Sprintf("🏷️ Ticker: <b>%s</b>\n", html.EscapeString(res.Ticker)))
	b.WriteString(fmt.Sprintf("📅 Date: %s\n\n", res.CreatedAt.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("💰 Price: <b>$%s</b>\n", res.NextPrice.StringFixed(2)))
	b.WriteString(fmt.Sprintf("📊 Accuracy: R² %.3f, RMSE %.4f\n\n", res.R2, res.RMSE))
	if chartAttached {
		b.WriteString("🖼️ Chart attached")
	} else {
		b.WriteString("⚠️ Chart unavailable")
	}
	return b.String()
}

func metricFloat(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func ClosingCaption(ticker string) string    { return ticker + " Price History" }
func ComparisonCaption(ticker string) string { return ticker + " Prediction Comparison" }
func LatestCaption(ticker string) string     { return "Latest " + ticker + " Prediction" }
