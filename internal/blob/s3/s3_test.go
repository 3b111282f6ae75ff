package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbbot/internal/domain"
	"github.com/alanyoungcy/arbbot/internal/store/memory"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockBlobWriter struct {
	mock.Mock
	mu     sync.Mutex
	bodies map[string]string
}

func (m *MockBlobWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	b, _ := io.ReadAll(data)
	m.mu.Lock()
	if m.bodies == nil {
		m.bodies = make(map[string]string)
	}
	m.bodies[path] = string(b)
	m.mu.Unlock()
	return m.Called(ctx, path, contentType).Error(0)
}

func (m *MockBlobWriter) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	return m.Called(ctx, path, partSize).Error(0)
}

func seedTrades(t *testing.T, s *memory.Store, at ...time.Time) {
	t.Helper()
	for i, ts := range at {
		_, err := s.CreateTrade(context.Background(), domain.Trade{
			ID: string(rune('a' + i)), TradingPairID: "eth", BuyExchangeID: "binance", SellExchangeID: "kraken",
			BuyPrice: "2845", SellPrice: "2880", Amount: "1", Profit: "35",
			Status: domain.TradeStatusCompleted, ExecutedAt: ts,
		})
		require.NoError(t, err)
	}
}

func TestArchiver_ArchiveTradesByMonth(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seedTrades(t, s,
		time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC),
	)
	w := new(MockBlobWriter)
	w.On("Put", mock.Anything, "archive/trades/2026-01.jsonl", ContentTypeJSONL).Return(nil)
	w.On("Put", mock.Anything, "archive/trades/2026-02.jsonl", ContentTypeJSONL).Return(nil)
	audit := memory.NewAuditLog()

	a := NewArchiver(w, s, audit, 0, discard())
	n, err := a.ArchiveTrades(ctx, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	w.AssertExpectations(t)

	jan := strings.Split(strings.TrimSpace(w.bodies["archive/trades/2026-01.jsonl"]), "\n")
	require.Len(t, jan, 2)
	assert.Contains(t, jan[0], `"id":"a"`)
	assert.Contains(t, jan[1], `"id":"c"`)

	entries, err := audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "trades_archived", entries[0].Event)
}

func TestArchiver_NothingToArchive(t *testing.T) {
	w := new(MockBlobWriter)
	a := NewArchiver(w, memory.New(), nil, time.Hour, discard())
	n, err := a.ArchiveTrades(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	w.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
}

func TestArchiver_UploadFailure(t *testing.T) {
	s := memory.New()
	seedTrades(t, s, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	w := new(MockBlobWriter)
	w.On("Put", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("access denied"))

	_, err := NewArchiver(w, s, nil, 0, discard()).ArchiveTrades(context.Background(), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestClient_KeyPrefix(t *testing.T) {
	c := &Client{prefix: "arbbot"}
	assert.Equal(t, "arbbot/archive/trades/2026-01.jsonl", c.Key("/archive/trades/2026-01.jsonl"))
	assert.Equal(t, "x", (&Client{}).Key("x"))

	assert.Equal(t, "https://minio:9000", normaliseEndpoint("https://minio:9000", false))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
}

func TestWriter_PutAgainstFakeS3(t *testing.T) {
	var mu sync.Mutex
	var method, path, ctype string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method, path, ctype = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(context.Background(), ClientConfig{
		Endpoint: srv.URL, Region: "us-east-1", Bucket: "ledger",
		AccessKey: "k", SecretKey: "s", Prefix: "arbbot", ForcePathStyle: true,
	})
	require.NoError(t, err)

	line := []byte(`{"id":"a"}` + "\n")
	require.NoError(t, NewWriter(c).Put(context.Background(), "archive/trades/2026-01.jsonl", bytes.NewReader(line), ContentTypeJSONL))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/ledger/arbbot/archive/trades/2026-01.jsonl", path)
	assert.Equal(t, ContentTypeJSONL, ctype)
	assert.Contains(t, string(body), `{"id":"a"}`)
}
