package influx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeInflux answers the health and write endpoints and keeps write bodies.
type fakeInflux struct {
	mu      sync.Mutex
	status  string
	writeOK bool
	queries []string
	bodies  []string
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/health":
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"name":"influxdb","message":"ok","status":"`+f.status+`","checks":[],"version":"2.7.1","commit":"abc"}`)
	case "/api/v2/write":
		b, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.queries = append(f.queries, r.URL.RawQuery)
		f.bodies = append(f.bodies, string(b))
		f.mu.Unlock()
		if !f.writeOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"code":"invalid","message":"bad line"}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func newRecorder(t *testing.T, f *fakeInflux) *Recorder {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	r, err := New(context.Background(), ClientConfig{URL: srv.URL, Token: "t", Org: "arb", Bucket: "prices"}, discard())
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestNew_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(&fakeInflux{status: "fail"})
	defer srv.Close()
	_, err := New(context.Background(), ClientConfig{URL: srv.URL, Org: "arb", Bucket: "prices"}, discard())
	assert.Error(t, err)
}

func TestRecorder_RecordQuotes(t *testing.T) {
	f := &fakeInflux{status: "pass", writeOK: true}
	r := newRecorder(t, f)
	ts := time.Unix(1700000000, 0).UTC()

	require.NoError(t, r.RecordQuotes(context.Background(), nil))
	require.NoError(t, r.RecordQuotes(context.Background(), []domain.PriceQuote{
		{ExchangeID: "binance", TradingPairID: "eth", Price: "2845.12000000", Volume24h: "1000.00000000", Change24h: "1.50", Timestamp: ts},
		{ExchangeID: "kraken", TradingPairID: "eth", Price: "2880.00000000", Volume24h: "1", Timestamp: ts},
	}))

	require.Len(t, f.bodies, 1)
	assert.Contains(t, f.queries[0], "bucket=prices")
	assert.Contains(t, f.queries[0], "org=arb")
	body := f.bodies[0]
	assert.Contains(t, body, "price_quotes,exchange_id=binance,trading_pair_id=eth change_24h=1.5,price=2845.12,volume_24h=1000 1700000000000000000")
	assert.Contains(t, body, "price_quotes,exchange_id=kraken,trading_pair_id=eth price=2880,volume_24h=1 1700000000000000000")
}

func TestRecorder_RecordTrade(t *testing.T) {
	f := &fakeInflux{status: "pass", writeOK: true}
	r := newRecorder(t, f)

	require.NoError(t, r.RecordTrade(context.Background(), domain.Trade{
		ID: "t1", OpportunityID: "o1", TradingPairID: "eth", BuyExchangeID: "binance", SellExchangeID: "kraken",
		BuyPrice: "2845", SellPrice: "2880", Amount: "1.75746924", Profit: "61.51142355",
		Status: domain.TradeStatusCompleted, ExecutedAt: time.Unix(1700000000, 0),
	}))
	require.Len(t, f.bodies, 1)
	assert.Contains(t, f.bodies[0], "trades,buy_exchange_id=binance,sell_exchange_id=kraken,status=completed,trading_pair_id=eth ")
	assert.Contains(t, f.bodies[0], `opportunity_id="o1"`)
	assert.Contains(t, f.bodies[0], "profit=61.51142355")

	f.writeOK = false
	err := r.RecordTrade(context.Background(), domain.Trade{ID: "t2", Status: domain.TradeStatusFailed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "t2")
}
