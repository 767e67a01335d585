package historical

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"github.com/aristath/riskparity/internal/domain"
)

// PriceRecord is the Parquet schema for bulk daily price files.
type PriceRecord struct {
	Asset     string  `parquet:"asset"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms, UTC midnight
	Close     float64 `parquet:"close"`
	Dividend  float64 `parquet:"dividend"`
}

// ImportSummary reports the outcome of one file import.
type ImportSummary struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	Rows    int    `json:"rows"`
	Assets  int    `json:"assets"`
	Skipped bool   `json:"skipped"`
}

// ParquetImporter loads Parquet price files into the history store.
type ParquetImporter struct {
	history *HistoryDB
	log     zerolog.Logger
}

// NewParquetImporter creates an importer writing into history.
func NewParquetImporter(history *HistoryDB, log zerolog.Logger) *ParquetImporter {
	return &ParquetImporter{
		history: history,
		log:     log.With().Str("component", "parquet_importer").Logger(),
	}
}

// ImportFile reads path and upserts its rows grouped by asset. Files already
// recorded in the import log are skipped.
func (p *ParquetImporter) ImportFile(ctx context.Context, path string) (*ImportSummary, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	done, err := p.history.HasImported(absPath)
	if err != nil {
		return nil, err
	}
	if done {
		return &ImportSummary{Path: absPath, Skipped: true}, nil
	}

	records, err := readParquetFile[PriceRecord](absPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", absPath, err)
	}

	groups := make(map[string][]domain.PricePoint)
	for _, r := range records {
		asset := normalizeAsset(r.Asset)
		groups[asset] = append(groups[asset], domain.PricePoint{
			Date:     time.UnixMilli(r.Timestamp).UTC().Truncate(24 * time.Hour),
			Price:    r.Close,
			Dividend: r.Dividend,
		})
	}

	assets := make([]string, 0, len(groups))
	for asset := range groups {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.history.UpsertPrices(asset, groups[asset], "parquet"); err != nil {
			return nil, fmt.Errorf("importing %s: %w", absPath, err)
		}
	}

	summary := &ImportSummary{
		ID:     uuid.New().String(),
		Path:   absPath,
		Rows:   len(records),
		Assets: len(assets),
	}
	if err := p.history.RecordImport(summary.ID, absPath, summary.Rows, summary.Assets); err != nil {
		return nil, err
	}

	p.log.Info().
		Str("path", absPath).
		Int("rows", summary.Rows).
		Int("assets", summary.Assets).
		Msg("Imported price file")
	return summary, nil
}

// ImportDir imports every *.parquet file in dir in name order. A missing
// directory imports nothing.
func (p *ParquetImporter) ImportDir(ctx context.Context, dir string) ([]ImportSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var summaries []ImportSummary
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".parquet" {
			continue
		}
		summary, err := p.ImportFile(ctx, filepath.Join(dir, e.Name()))
		if err != nil {
			return summaries, err
		}
		summaries = append(summaries, *summary)
	}
	return summaries, nil
}

// Export writes the stored history of assets in the window to w as one
// Parquet file and returns the row count. Nothing is written when loading
// fails.
func (p *ParquetImporter) Export(ctx context.Context, w io.Writer, assets []string, from, to time.Time) (int, error) {
	if len(assets) == 0 {
		return 0, domain.NewValidationError("assets", "no assets requested")
	}

	records := []PriceRecord{}
	for _, asset := range assets {
		points, err := p.history.GetPrices(ctx, asset, from, to)
		if err != nil {
			return 0, err
		}
		for _, pt := range points {
			records = append(records, PriceRecord{
				Asset:     normalizeAsset(asset),
				Timestamp: pt.Date.UnixMilli(),
				Close:     pt.Price,
				Dividend:  pt.Dividend,
			})
		}
	}
	if err := parquet.Write(w, records); err != nil {
		return 0, fmt.Errorf("failed to write parquet export: %w", err)
	}

	p.log.Debug().
		Strs("assets", assets).
		Int("rows", len(records)).
		Msg("Exported price history")
	return len(records), nil
}

// ImportJob imports new files from a directory on a schedule.
type ImportJob struct {
	importer *ParquetImporter
	dir      string
}

// NewImportJob creates a job importing from dir.
func NewImportJob(importer *ParquetImporter, dir string) *ImportJob {
	return &ImportJob{importer: importer, dir: dir}
}

// Name returns the job name
func (j *ImportJob) Name() string {
	return "parquet_import"
}

// Run executes one import pass
func (j *ImportJob) Run() error {
	_, err := j.importer.ImportDir(context.Background(), j.dir)
	return err
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
