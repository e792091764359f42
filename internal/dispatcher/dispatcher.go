package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"StockInsight/internal/governor"
	"StockInsight/internal/metrics"
	"StockInsight/internal/model"
	"StockInsight/internal/notifier"
	"StockInsight/internal/pipeline"
	"StockInsight/pkg/logger"
)

const summaryRetries = 2

// Messenger delivers replies and charts to a chat.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendWithRetry(ctx context.Context, chatID int64, text string, maxRetries int) error
	SendPhoto(ctx context.Context, chatID int64, path, caption string) error
}

// Predictor is the slice of the pipeline the bot needs.
type Predictor interface {
	Run(ctx context.Context, identity, ticker string) (*model.ForecastResult, error)
	Latest(ctx context.Context, identity string) (*model.ForecastResult, error)
	ArtifactPath(rel string) string
}

// Linker maps chats to identities.
type Linker interface {
	LinkIdentity(ctx context.Context, chatID int64, identity string) (*model.IdentityLink, error)
}

// Dispatcher turns chat commands into pipeline calls and replies. Every
// command ends with exactly one summary or error reply.
type Dispatcher struct {
	Governor governor.Admitter
	MaxCalls int
	Pipeline Predictor
	Links    Linker
	Out      Messenger
	Log      *logger.Logger
}

func New(gov governor.Admitter, maxCalls int, p Predictor, links Linker, out Messenger, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		Governor: gov,
		MaxCalls: maxCalls,
		Pipeline: p,
		Links:    links,
		Out:      out,
		Log:      log,
	}
}

// ParseCommand accepts "/predict AAPL", "/predict@Bot AAPL" and "predict AAPL".
func ParseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return cmd, fields[1:]
}

// IdentityFor returns the chat username, or tg_<chat_id> when there is none.
func IdentityFor(u notifier.Update) string {
	if u.Username != "" {
		return u.Username
	}
	return fmt.Sprintf("tg_%d", u.ChatID)
}

// Handle processes one update. It never panics.
func (d *Dispatcher) Handle(ctx context.Context, u notifier.Update) {
	log := d.Log.With(logger.Int64("chat_id", u.ChatID), logger.String("username", u.Username))
	defer func() {
		if r := recover(); r != nil {
			log.Error("command handler panicked",
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())),
			)
			d.reply(ctx, log, u.ChatID, notifier.MsgGenericError)
		}
	}()

	cmd, args := ParseCommand(u.Text)
	switch cmd {
	case "start":
		metrics.RecordCommand(cmd)
		d.start(ctx, log, u)
	case "help":
		metrics.RecordCommand(cmd)
		d.reply(ctx, log, u.ChatID, notifier.FormatHelp())
	case "predict":
		metrics.RecordCommand(cmd)
		d.predict(ctx, log, u, args)
	case "latest":
		metrics.RecordCommand(cmd)
		d.latest(ctx, log, u)
	default:
		metrics.RecordCommand("unknown")
		d.reply(ctx, log, u.ChatID, notifier.FormatHelp())
	}
}

func (d *Dispatcher) link(ctx context.Context, u notifier.Update) (*model.IdentityLink, error) {
	return d.Links.LinkIdentity(ctx, u.ChatID, IdentityFor(u))
}

func (d *Dispatcher) start(ctx context.Context, log *logger.Logger, u notifier.Update) {
	if _, err := d.link(ctx, u); err != nil {
		log.Error("link identity failed", logger.Error(err))
		d.reply(ctx, log, u.ChatID, notifier.MsgGenericError)
		return
	}
	d.reply(ctx, log, u.ChatID, notifier.FormatWelcome())
}

func (d *Dispatcher) predict(ctx context.Context, log *logger.Logger, u notifier.Update, args []string) {
	link, err := d.link(ctx, u)
	if err != nil {
		log.Error("link identity failed", logger.Error(err))
		d.reply(ctx, log, u.ChatID, notifier.MsgPredictFailed)
		return
	}
	log = log.With(logger.String("identity", link.Identity))

	admitted, err := d.Governor.Allow(ctx, fmt.Sprintf("tg:%d", u.ChatID))
	if err != nil {
		log.Error("rate governor failed", logger.Error(err))
		d.reply(ctx, log, u.ChatID, notifier.MsgPredictFailed)
		return
	}
	metrics.RecordGovernorDecision("telegram", admitted)
	if !admitted {
		d.reply(ctx, log, u.ChatID, notifier.FormatThrottled(d.MaxCalls))
		return
	}

	if len(args) == 0 {
		d.reply(ctx, log, u.ChatID, notifier.MsgPredictUsage)
		return
	}
	ticker := pipeline.NormalizeTicker(args[0])
	d.reply(ctx, log, u.ChatID, notifier.FormatAnalyzing(ticker))

	res, err := d.Pipeline.Run(ctx, link.Identity, ticker)
	if err != nil {
		if isUserFacing(err) {
			d.reply(ctx, log, u.ChatID, notifier.FormatUserError(err))
			return
		}
		log.Error("prediction failed", logger.String("ticker", ticker), logger.Error(err))
		d.reply(ctx, log, u.ChatID, notifier.MsgPredictFailed)
		return
	}

	shown := 0
	if d.deliver(ctx, log, u.ChatID, res.ClosingPlot, notifier.ClosingCaption(res.Ticker)) {
		shown++
	}
	if d.deliver(ctx, log, u.ChatID, res.ComparisonPlot, notifier.ComparisonCaption(res.Ticker)) {
		shown++
	}
	d.summary(ctx, log, u.ChatID, notifier.FormatPrediction(res, shown))
}

func (d *Dispatcher) latest(ctx context.Context, log *logger.Logger, u notifier.Update) {
	link, err := d.link(ctx, u)
	if err != nil {
		log.Error("link identity failed", logger.Error(err))
		d.reply(ctx, log, u.ChatID, notifier.MsgLatestFailed)
		return
	}

	res, err := d.Pipeline.Latest(ctx, link.Identity)
	if err != nil {
		log.Error("load latest prediction failed", logger.String("identity", link.Identity), logger.Error(err))
		d.reply(ctx, log, u.ChatID, notifier.MsgLatestFailed)
		return
	}
	if res == nil {
		d.reply(ctx, log, u.ChatID, notifier.MsgNoPredictions)
		return
	}

	attached := d.deliver(ctx, log, u.ChatID, res.ComparisonPlot, notifier.LatestCaption(res.Ticker))
	d.summary(ctx, log, u.ChatID, notifier.FormatLatest(res, attached))
}

// deliver sends one chart and reports whether it arrived. Failures are
// logged and counted, never returned.
func (d *Dispatcher) deliver(ctx context.Context, log *logger.Logger, chatID int64, rel, caption string) bool {
	if rel == "" {
		metrics.RecordDelivery(false)
		return false
	}
	err := d.Out.SendPhoto(ctx, chatID, d.Pipeline.ArtifactPath(rel), caption)
	metrics.RecordDelivery(err == nil)
	if err != nil {
		log.Warn("chart delivery failed", logger.String("artifact", rel), logger.Error(err))
		return false
	}
	return true
}

func (d *Dispatcher) reply(ctx context.Context, log *logger.Logger, chatID int64, text string) {
	if err := d.Out.SendMessage(ctx, chatID, text); err != nil {
		log.Warn("send reply failed", logger.Error(err))
	}
}

// summary sends the closing message of a command, with retries.
func (d *Dispatcher) summary(ctx context.Context, log *logger.Logger, chatID int64, text string) {
	if err := d.Out.SendWithRetry(ctx, chatID, text, summaryRetries); err != nil {
		log.Error("send summary failed", logger.Error(err))
	}
}

func isUserFacing(err error) bool {
	return errors.Is(err, model.ErrInsufficientData) ||
		errors.Is(err, model.ErrDataUnavailable) ||
		errors.Is(err, model.ErrInvalidTicker)
}
