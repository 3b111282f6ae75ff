// Package influx records quotes and executed trades as InfluxDB time series.
package influx

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// Measurement names.
const (
	MeasurementQuotes = "price_quotes"
	MeasurementTrades = "trades"
)

// ClientConfig holds the InfluxDB v2 connection settings.
type ClientConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Recorder implements domain.PriceHistory. Writes are blocking, so a failed
// write surfaces to the caller, which logs and moves on.
type Recorder struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	logger *slog.Logger
}

// New connects and checks the server health before returning.
func New(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Recorder, error) {
	client := influxdb2.NewClientWithOptions(strings.TrimRight(cfg.URL, "/"), cfg.Token,
		influxdb2.DefaultOptions().SetHTTPRequestTimeout(10))

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influx: health check: %w", err)
	}
	if health == nil || health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("influx: server not healthy: %+v", health)
	}

	return &Recorder{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger: logger.With(slog.String("component", "influx_recorder")),
	}, nil
}

// RecordQuotes writes one point per quote in a single request.
func (r *Recorder) RecordQuotes(ctx context.Context, quotes []domain.PriceQuote) error {
	if len(quotes) == 0 {
		return nil
	}
	points := make([]*write.Point, 0, len(quotes))
	for _, q := range quotes {
		points = append(points, QuotePoint(q))
	}
	if err := r.write.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influx: write %d quotes: %w", len(points), err)
	}
	r.logger.DebugContext(ctx, "quotes recorded", slog.Int("count", len(points)))
	return nil
}

func (r *Recorder) RecordTrade(ctx context.Context, t domain.Trade) error {
	if err := r.write.WritePoint(ctx, TradePoint(t)); err != nil {
		return fmt.Errorf("influx: write trade %s: %w", t.ID, err)
	}
	return nil
}

// Ping reports whether the server is reachable and healthy.
func (r *Recorder) Ping(ctx context.Context) error {
	ok, err := r.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influx: ping: %w", err)
	}
	if !ok {
		return fmt.Errorf("influx: ping: server not ready")
	}
	return nil
}

func (r *Recorder) Close() {
	r.client.Close()
}

// QuotePoint maps a quote to a point tagged by exchange and pair.
func QuotePoint(q domain.PriceQuote) *write.Point {
	fields := map[string]interface{}{
		"price":      domain.Dec(q.Price).InexactFloat64(),
		"volume_24h": domain.Dec(q.Volume24h).InexactFloat64(),
	}
	if q.Change24h != "" {
		fields["change_24h"] = domain.Dec(q.Change24h).InexactFloat64()
	}
	return influxdb2.NewPoint(MeasurementQuotes,
		map[string]string{
			"exchange_id":     q.ExchangeID,
			"trading_pair_id": q.TradingPairID,
		},
		fields,
		stamp(q.Timestamp),
	)
}

// TradePoint maps a trade to a point tagged by route and status.
func TradePoint(t domain.Trade) *write.Point {
	fields := map[string]interface{}{
		"buy_price":  domain.Dec(t.BuyPrice).InexactFloat64(),
		"sell_price": domain.Dec(t.SellPrice).InexactFloat64(),
		"amount":     domain.Dec(t.Amount).InexactFloat64(),
		"profit":     domain.Dec(t.Profit).InexactFloat64(),
		"trade_id":   t.ID,
	}
	if t.OpportunityID != "" {
		fields["opportunity_id"] = t.OpportunityID
	}
	return influxdb2.NewPoint(MeasurementTrades,
		map[string]string{
			"trading_pair_id":  t.TradingPairID,
			"buy_exchange_id":  t.BuyExchangeID,
			"sell_exchange_id": t.SellExchangeID,
			"status":           string(t.Status),
		},
		fields,
		stamp(t.ExecutedAt),
	)
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
