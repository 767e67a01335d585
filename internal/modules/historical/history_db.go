// Package historical stores daily price and dividend history and feeds it to
// the optimization service as raw asset histories.
package historical

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskparity/internal/database"
	"github.com/aristath/riskparity/internal/domain"
)

const maxDate = "9999-12-31"

// ChangeHook is called after the stored prices of asset were written or
// deleted.
type ChangeHook func(asset string)

// HistoryDB provides access to historical price data
type HistoryDB struct {
	db    *sql.DB
	hooks []ChangeHook
	log   zerolog.Logger
}

// NewHistoryDB creates a new history database accessor
func NewHistoryDB(db *sql.DB, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
}

// OnChange registers hook for every later price write or delete. Hooks must
// be registered before the store is shared between goroutines.
func (h *HistoryDB) OnChange(hook ChangeHook) {
	h.hooks = append(h.hooks, hook)
}

func (h *HistoryDB) notify(asset string) {
	for _, hook := range h.hooks {
		hook(asset)
	}
}

// AssetSummary describes the stored coverage of one asset.
type AssetSummary struct {
	Asset     string `json:"asset"`
	FirstDate string `json:"first_date"`
	LastDate  string `json:"last_date"`
	Count     int    `json:"count"`
}

func normalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

func validatePoint(p domain.PricePoint) error {
	if p.Date.IsZero() {
		return domain.NewValidationError("date", "must be set")
	}
	if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) || p.Price <= 0 {
		return domain.NewValidationError("price", "must be a positive number on %s, got %v",
			p.Date.Format(domain.DateLayout), p.Price)
	}
	if math.IsNaN(p.Dividend) || math.IsInf(p.Dividend, 0) || p.Dividend < 0 {
		return domain.NewValidationError("dividend", "must be a non-negative number on %s, got %v",
			p.Date.Format(domain.DateLayout), p.Dividend)
	}
	return nil
}

// UpsertPrices inserts or replaces the given points for asset in a single
// transaction. Points are validated up front so a bad row stores nothing.
func (h *HistoryDB) UpsertPrices(asset string, points []domain.PricePoint, source string) error {
	asset = normalizeAsset(asset)
	if asset == "" {
		return domain.NewValidationError("asset", "must not be empty")
	}
	for _, p := range points {
		if err := validatePoint(p); err != nil {
			return fmt.Errorf("asset %s: %w", asset, err)
		}
	}
	if source == "" {
		source = "api"
	}

	now := time.Now().Unix()
	err := database.WithTransaction(h.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO daily_prices (asset, date, close, dividend, source, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(asset, date) DO UPDATE SET
				close = excluded.close,
				dividend = excluded.dividend,
				source = excluded.source,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range points {
			date := p.Date.UTC().Format(domain.DateLayout)
			if _, err := stmt.Exec(asset, date, p.Price, p.Dividend, source, now); err != nil {
				return fmt.Errorf("failed to upsert %s %s: %w", asset, date, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	h.notify(asset)

	h.log.Debug().
		Str("asset", asset).
		Int("points", len(points)).
		Str("source", source).
		Msg("Stored daily prices")
	return nil
}

// GetPrices returns the stored points of asset between from and to inclusive,
// oldest first. Zero bounds are open.
func (h *HistoryDB) GetPrices(ctx context.Context, asset string, from, to time.Time) ([]domain.PricePoint, error) {
	lower, upper := "", maxDate
	if !from.IsZero() {
		lower = from.UTC().Format(domain.DateLayout)
	}
	if !to.IsZero() {
		upper = to.UTC().Format(domain.DateLayout)
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT date, close, dividend
		FROM daily_prices
		WHERE asset = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, normalizeAsset(asset), lower, upper)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var (
			date string
			p    domain.PricePoint
		)
		if err := rows.Scan(&date, &p.Price, &p.Dividend); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		p.Date, err = time.Parse(domain.DateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("invalid stored date %q for %s: %w", date, asset, err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}
	return points, nil
}

// LoadHistory returns the stored history of asset in the given window. An
// asset with no stored prices in the window is insufficient data.
func (h *HistoryDB) LoadHistory(ctx context.Context, asset string, from, to time.Time) (domain.AssetHistory, error) {
	points, err := h.GetPrices(ctx, asset, from, to)
	if err != nil {
		return domain.AssetHistory{}, err
	}
	if len(points) == 0 {
		return domain.AssetHistory{}, fmt.Errorf("no prices stored for %s: %w", normalizeAsset(asset), domain.ErrInsufficientData)
	}
	return domain.AssetHistory{Asset: normalizeAsset(asset), Points: points}, nil
}

// ListAssets summarizes the coverage of every stored asset.
func (h *HistoryDB) ListAssets(ctx context.Context) ([]AssetSummary, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT asset, MIN(date), MAX(date), COUNT(*)
		FROM daily_prices
		GROUP BY asset
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	summaries := []AssetSummary{}
	for rows.Next() {
		var s AssetSummary
		if err := rows.Scan(&s.Asset, &s.FirstDate, &s.LastDate, &s.Count); err != nil {
			return nil, fmt.Errorf("failed to scan asset summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Asset < summaries[j].Asset })
	return summaries, nil
}

// DeleteAsset removes all stored prices of asset and returns the row count.
func (h *HistoryDB) DeleteAsset(asset string) (int64, error) {
	asset = normalizeAsset(asset)
	result, err := h.db.Exec("DELETE FROM daily_prices WHERE asset = ?", asset)
	if err != nil {
		return 0, fmt.Errorf("failed to delete prices for %s: %w", asset, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		h.notify(asset)
	}
	return deleted, nil
}

// RecordImport stores one import run.
func (h *HistoryDB) RecordImport(id, path string, rows, assets int) error {
	_, err := h.db.Exec(
		"INSERT INTO imports (id, path, rows, assets, imported_at) VALUES (?, ?, ?, ?, ?)",
		id, path, rows, assets, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record import of %s: %w", path, err)
	}
	return nil
}

// HasImported reports whether path was already imported.
func (h *HistoryDB) HasImported(path string) (bool, error) {
	var count int
	if err := h.db.QueryRow("SELECT COUNT(*) FROM imports WHERE path = ?", path).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check imports: %w", err)
	}
	return count > 0, nil
}
