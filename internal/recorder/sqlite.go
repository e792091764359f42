package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"StockInsight/internal/model"
	"StockInsight/pkg/logger"
)

// SQLiteRecorder persists forecasts to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log *logger.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *logger.Logger) (*SQLiteRecorder, error) {
	if log == nil {
		log = logger.Nop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode lets REST reads proceed while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("sqlite recorder opened", logger.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS forecasts (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			identity        TEXT NOT NULL,
			ticker          TEXT NOT NULL,
			created_at      INTEGER NOT NULL,
			next_price      TEXT NOT NULL,
			mse             REAL,
			rmse            REAL,
			r2              REAL,
			closing_plot    TEXT NOT NULL,
			comparison_plot TEXT NOT NULL,
			metrics         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_forecasts_identity_ts ON forecasts(identity, created_at)`,

		`CREATE TABLE IF NOT EXISTS identity_links (
			chat_id    INTEGER PRIMARY KEY,
			identity   TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) SaveForecast(ctx context.Context, res *model.ForecastResult) error {
	metrics, err := json.Marshal(res.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out, err := r.db.ExecContext(ctx, `INSERT INTO forecasts
		(identity, ticker, created_at, next_price, mse, rmse, r2,
		 closing_plot, comparison_plot, metrics)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		res.Identity, res.Ticker, res.CreatedAt.UnixMilli(), res.NextPrice.String(),
		res.MSE, res.RMSE, res.R2,
		res.ClosingPlot, res.ComparisonPlot, string(metrics),
	)
	if err != nil {
		return err
	}
	id, err := out.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = id
	return nil
}

const forecastColumns = `id, identity, ticker, created_at, next_price, mse, rmse, r2,
	closing_plot, comparison_plot, metrics`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanForecast(row rowScanner) (*model.ForecastResult, error) {
	var (
		res     model.ForecastResult
		created int64
		price   string
		metrics sql.NullString
	)
	if err := row.Scan(&res.ID, &res.Identity, &res.Ticker, &created, &price,
		&res.MSE, &res.RMSE, &res.R2, &res.ClosingPlot, &res.ComparisonPlot, &metrics); err != nil {
		return nil, err
	}
	res.CreatedAt = time.UnixMilli(created).UTC()

	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("decode price %q: %w", price, err)
	}
	res.NextPrice = p

	if metrics.Valid && metrics.String != "" {
		if err := json.Unmarshal([]byte(metrics.String), &res.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
	}
	return &res, nil
}

func (r *SQLiteRecorder) ListForecasts(ctx context.Context, identity string, filter model.ForecastFilter) ([]*model.ForecastResult, error) {
	var (
		where = []string{"identity = ?"}
		args  = []any{identity}
	)
	if filter.Ticker != "" {
		where = append(where, "UPPER(ticker) = UPPER(?)")
		args = append(args, filter.Ticker)
	}
	if !filter.Date.IsZero() {
		start, end := dayBounds(filter.Date)
		where = append(where, "created_at >= ? AND created_at < ?")
		args = append(args, start.UnixMilli(), end.UnixMilli())
	}

	q := `SELECT ` + forecastColumns + ` FROM forecasts WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ForecastResult
	for rows.Next() {
		res, err := scanForecast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) LatestForecast(ctx context.Context, identity string) (*model.ForecastResult, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+forecastColumns+` FROM forecasts
		WHERE identity = ? ORDER BY created_at DESC, id DESC LIMIT 1`, identity)
	res, err := scanForecast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

func (r *SQLiteRecorder) Tickers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT ticker FROM forecasts ORDER BY ticker`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) ReferencedArtifacts(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT closing_plot, comparison_plot FROM forecasts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return nil, err
		}
		out[a] = struct{}{}
		out[b] = struct{}{}
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) LinkIdentity(ctx context.Context, chatID int64, identity string) (*model.IdentityLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO identity_links
		(chat_id, identity, created_at) VALUES (?,?,?)`,
		chatID, identity, time.Now().UnixMilli()); err != nil {
		return nil, err
	}

	var (
		link    = model.IdentityLink{ChatID: chatID}
		created int64
	)
	if err := r.db.QueryRowContext(ctx, `SELECT identity, created_at FROM identity_links
		WHERE chat_id = ?`, chatID).Scan(&link.Identity, &created); err != nil {
		return nil, err
	}
	link.CreatedAt = time.UnixMilli(created).UTC()
	return &link, nil
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("closing sqlite recorder")
	return r.db.Close()
}
