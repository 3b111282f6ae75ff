package postgres

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}
	os.Exit(runWithPostgres(m))
}

func runWithPostgres(m *testing.M) int {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "arbbot",
			"POSTGRES_PASSWORD": "arbbot",
			"POSTGRES_DB":       "arbbot",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithDeadline(2 * time.Minute),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Fatalf("could not start postgres container: %s", err)
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			log.Printf("could not stop postgres container: %s", err)
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("could not get container host: %s", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("could not get mapped port: %s", err)
	}

	client, err := New(ctx, ClientConfig{
		DSN: fmt.Sprintf("postgres://arbbot:arbbot@%s:%s/arbbot?sslmode=disable", host, port.Port()),
	})
	if err != nil {
		log.Fatalf("could not connect to database: %s", err)
	}
	defer client.Close()

	if err := client.RunMigrations(ctx); err != nil {
		log.Fatalf("could not run migrations: %s", err)
	}
	// Applying twice must be a no-op.
	if err := client.RunMigrations(ctx); err != nil {
		log.Fatalf("could not re-run migrations: %s", err)
	}
	pool = client.Pool()

	return m.Run()
}

func requirePool(t *testing.T) {
	t.Helper()
	if pool == nil {
		t.Skip("postgres container not started in short mode")
	}
}

func resetTables(t *testing.T) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`TRUNCATE trades, opportunities, price_quotes, trading_pairs, exchanges, bot_settings, audit_log CASCADE`)
	require.NoError(t, err)
}

// seedRefs creates one pair and three exchanges.
func seedRefs(t *testing.T, s *MarketStore) (pair domain.TradingPair, exs []domain.Exchange) {
	t.Helper()
	ctx := context.Background()
	pair, err := s.CreateTradingPair(ctx, domain.TradingPair{Symbol: "ETH/USDT", BaseAsset: "ETH", QuoteAsset: "USDT", IsActive: true})
	require.NoError(t, err)
	for _, name := range []string{"Binance", "Coinbase Pro", "Kraken"} {
		ex, err := s.CreateExchange(ctx, domain.Exchange{Name: name, IsActive: true})
		require.NoError(t, err)
		exs = append(exs, ex)
	}
	return pair, exs
}

func TestPostgres_Reference(t *testing.T) {
	requirePool(t)
	resetTables(t)
	ctx := context.Background()
	s := NewMarketStore(pool)
	_, exs := seedRefs(t, s)

	got, err := s.GetExchange(ctx, exs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Binance", got.Name)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, s.SetExchangeActive(ctx, exs[1].ID, false))
	active, err := s.ListActiveExchanges(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	_, err = s.GetExchange(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.GetTradingPair(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.SetExchangeActive(ctx, "missing", true), domain.ErrNotFound)
}

func TestPostgres_UpsertPrice(t *testing.T) {
	requirePool(t)
	resetTables(t)
	ctx := context.Background()
	s := NewMarketStore(pool)
	pair, exs := seedRefs(t, s)
	now := time.Now().UTC()

	first, err := s.UpsertPrice(ctx, domain.PriceQuote{
		ExchangeID: exs[0].ID, TradingPairID: pair.ID, Price: "2845.12", Volume24h: "125000000", Change24h: "1.5", Timestamp: now,
	})
	require.NoError(t, err)
	assert.Equal(t, "2845.12000000", first.Price)
	assert.Equal(t, "1.50", first.Change24h)

	second, err := s.UpsertPrice(ctx, domain.PriceQuote{
		ExchangeID: exs[0].ID, TradingPairID: pair.ID, Price: "2846", Timestamp: now,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Empty(t, second.Change24h)

	byPair, err := s.ListPricesByPair(ctx, pair.ID)
	require.NoError(t, err)
	require.Len(t, byPair, 1)
	assert.Equal(t, "2846.00000000", byPair[0].Price)
}

func TestPostgres_OpportunityLifecycle(t *testing.T) {
	requirePool(t)
	resetTables(t)
	ctx := context.Background()
	s := NewMarketStore(pool)
	pair, exs := seedRefs(t, s)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	o := domain.Opportunity{
		TradingPairID: pair.ID, BuyExchangeID: exs[0].ID, SellExchangeID: exs[1].ID,
		BuyPrice: "2845", SellPrice: "2880", ProfitMargin: "1.2302", PotentialProfit: "61.51142355",
		CreatedAt: t0,
	}

	created, isNew, err := s.UpsertOpportunity(ctx, o)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.True(t, created.IsActive)
	assert.Equal(t, "2845.00000000", created.BuyPrice)
	assert.Equal(t, "1.2302", created.ProfitMargin)

	o.ProfitMargin = "1.5000"
	o.RefreshedAt = t0.Add(10 * time.Second)
	refreshed, isNew, err := s.UpsertOpportunity(ctx, o)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, created.ID, refreshed.ID)
	assert.True(t, refreshed.CreatedAt.Equal(t0))
	assert.Equal(t, "1.5000", refreshed.ProfitMargin)

	t.Run("expiry measured from last refresh", func(t *testing.T) {
		n, err := s.DeactivateExpiredOpportunities(ctx, t0.Add(39*time.Second), 30*time.Second)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("claim is exclusive", func(t *testing.T) {
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins, inactive := 0, 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.ClaimOpportunity(ctx, created.ID)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					wins++
				} else if assert.ErrorIs(t, err, domain.ErrOpportunityInactive) {
					inactive++
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
		assert.Equal(t, 7, inactive)

		_, err := s.ClaimOpportunity(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("route reopens after claim", func(t *testing.T) {
		again, isNew, err := s.UpsertOpportunity(ctx, o)
		require.NoError(t, err)
		assert.True(t, isNew)
		assert.NotEqual(t, created.ID, again.ID)

		n, err := s.DeactivateAllOpportunities(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		active, err := s.ListActiveOpportunities(ctx)
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("release reactivates a free route only", func(t *testing.T) {
		fresh, _, err := s.UpsertOpportunity(ctx, o)
		require.NoError(t, err)

		require.NoError(t, s.ReleaseOpportunity(ctx, created.ID))
		got, err := s.GetOpportunity(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive, "route held by a newer opportunity")

		_, err = s.ClaimOpportunity(ctx, fresh.ID)
		require.NoError(t, err)
		require.NoError(t, s.ReleaseOpportunity(ctx, fresh.ID))
		got, err = s.GetOpportunity(ctx, fresh.ID)
		require.NoError(t, err)
		assert.True(t, got.IsActive)

		assert.ErrorIs(t, s.ReleaseOpportunity(ctx, "missing"), domain.ErrNotFound)
	})
}

func TestPostgres_Trades(t *testing.T) {
	requirePool(t)
	resetTables(t)
	ctx := context.Background()
	s := NewMarketStore(pool)
	pair, exs := seedRefs(t, s)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := s.CreateTrade(ctx, domain.Trade{
			TradingPairID: pair.ID, BuyExchangeID: exs[0].ID, SellExchangeID: exs[1].ID,
			BuyPrice: "100", SellPrice: "101", Amount: "10", Profit: fmt.Sprintf("%d", i+1),
			Status: domain.TradeStatusCompleted, ExecutedAt: t0.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	recent, err := s.ListRecentTrades(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "3.00000000", recent[0].Profit)
	assert.Empty(t, recent[0].OpportunityID)

	before, err := s.ListTradesBefore(ctx, t0.Add(90*time.Second))
	require.NoError(t, err)
	assert.Len(t, before, 2)
}

func TestPostgres_Settings(t *testing.T) {
	requirePool(t)
	resetTables(t)
	ctx := context.Background()
	s := NewMarketStore(pool)

	_, err := s.GetSettings(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	margin := "1.5"
	got, err := s.UpdateSettings(ctx, domain.SettingsPatch{MinProfitMargin: &margin})
	require.NoError(t, err)
	assert.Equal(t, "1.5", got.MinProfitMargin)
	assert.Equal(t, int64(21000), got.GasLimit)

	wrote, err := s.InitSettings(ctx, domain.SeedSettings())
	require.NoError(t, err)
	assert.False(t, wrote)

	bad := "-1"
	_, err = s.UpdateSettings(ctx, domain.SettingsPatch{StopLoss: &bad})
	assert.ErrorIs(t, err, domain.ErrValidation)

	stored, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.5", stored.MinProfitMargin)
	assert.Equal(t, "5.0", stored.StopLoss)
}

func TestPostgres_Audit(t *testing.T) {
	requirePool(t)
	resetTables(t)
	ctx := context.Background()
	a := NewAuditStore(pool)

	require.NoError(t, a.Log(ctx, "bot_started", map[string]any{"by": "api"}))
	require.NoError(t, a.Log(ctx, "bot_stopped", nil))

	entries, err := a.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "bot_stopped", entries[0].Event)
	assert.Equal(t, "api", entries[1].Detail["by"])
}
