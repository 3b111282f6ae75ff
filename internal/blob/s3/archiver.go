package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// ContentTypeJSONL is the content type of archive objects.
const ContentTypeJSONL = "application/x-ndjson"

// multipartThreshold is the payload size above which archives upload in
// parts.
const multipartThreshold = 64 * 1024 * 1024

// TradeSource lists ledger entries older than a cutoff.
type TradeSource interface {
	ListTradesBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
}

// Archiver copies old trades to object storage as one JSONL object per
// calendar month, archive/trades/YYYY-MM.jsonl. Each run rewrites the month
// objects it touches with every trade of that month older than the cutoff,
// so repeated runs converge on the same content. Trades stay in the ledger.
type Archiver struct {
	writer    domain.BlobWriter
	trades    TradeSource
	audit     domain.AuditStore
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, trades TradeSource, audit domain.AuditStore, retention time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:    writer,
		trades:    trades,
		audit:     audit,
		retention: retention,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "trade_archiver")),
	}
}

// SetClock replaces the clock used to compute the retention cutoff.
func (a *Archiver) SetClock(now func() time.Time) { a.now = now }

// Run archives on every interval tick until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := a.now().Add(-a.retention)
			n, err := a.ArchiveTrades(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "archive failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "trades archived", slog.Int64("count", n), slog.Time("before", cutoff))
			}
		}
	}
}

// ArchiveTrades uploads every trade executed before the cutoff and returns
// how many were written.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListTradesBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	months, order := groupByMonth(trades)
	var count int64
	for _, month := range order {
		batch := months[month]
		buf, err := marshalJSONL(batch)
		if err != nil {
			return count, fmt.Errorf("s3blob: archive trades marshal: %w", err)
		}
		path := archivePath("trades", month)
		if len(buf) > multipartThreshold {
			err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
		} else {
			err = a.writer.Put(ctx, path, bytes.NewReader(buf), ContentTypeJSONL)
		}
		if err != nil {
			return count, fmt.Errorf("s3blob: archive trades upload: %w", err)
		}
		count += int64(len(batch))
		a.auditLog(ctx, path, len(batch), before)
	}
	return count, nil
}

func (a *Archiver) auditLog(ctx context.Context, path string, n int, before time.Time) {
	if a.audit == nil {
		return
	}
	err := a.audit.Log(ctx, "trades_archived", map[string]any{
		"path":   path,
		"count":  n,
		"before": before.UTC().Format(time.RFC3339),
	})
	if err != nil {
		a.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}
}

// groupByMonth buckets trades by the UTC month they executed in. order lists
// the months in first-seen order.
func groupByMonth(trades []domain.Trade) (map[string][]domain.Trade, []string) {
	months := make(map[string][]domain.Trade)
	var order []string
	for _, t := range trades {
		m := t.ExecutedAt.UTC().Format("2006-01")
		if _, ok := months[m]; !ok {
			order = append(order, m)
		}
		months[m] = append(months[m], t)
	}
	return months, order
}

func archivePath(kind, month string) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, month)
}

func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
