package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbbot/internal/cache/local"
	"github.com/alanyoungcy/arbbot/internal/domain"
	"github.com/alanyoungcy/arbbot/internal/store/memory"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, event, title, message string) error {
	args := m.Called(ctx, event, title, message)
	return args.Error(0)
}

func newStore(t *testing.T, active bool) *memory.Store {
	t.Helper()
	s := memory.New()
	settings := domain.SeedSettings()
	settings.IsActive = active
	_, err := s.InitSettings(context.Background(), settings)
	require.NoError(t, err)
	return s
}

func addOpp(t *testing.T, s *memory.Store, sell, margin string) domain.Opportunity {
	t.Helper()
	o, _, err := s.UpsertOpportunity(context.Background(), domain.Opportunity{
		TradingPairID:   "eth",
		BuyExchangeID:   "binance",
		SellExchangeID:  sell,
		BuyPrice:        "2845.00000000",
		SellPrice:       "2880.00000000",
		ProfitMargin:    margin,
		PotentialProfit: "61.51142355",
		CreatedAt:       fixedNow,
	})
	require.NoError(t, err)
	return o
}

func TestSelectTop_StableTieBreak(t *testing.T) {
	opps := []domain.Opportunity{
		{ID: "a", ProfitMargin: "1.0000"},
		{ID: "b", ProfitMargin: "2.0000"},
		{ID: "c", ProfitMargin: "2.0000"},
		{ID: "d", ProfitMargin: "0.5000"},
		{ID: "e", ProfitMargin: "2.0000"},
	}
	top := SelectTop(opps, 3)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"b", "c", "e"}, []string{top[0].ID, top[1].ID, top[2].ID})
	assert.Equal(t, "a", opps[0].ID, "input is not reordered")
}

func TestRunBatch_CapsAtBatchSize(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, true)
	for i, m := range []string{"1.0000", "3.0000", "2.0000", "2.0000", "0.5000"} {
		addOpp(t, s, string(rune('a'+i)), m)
	}

	e := NewExecutor(s, 0, clock, discard())
	res, err := e.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Executed)
	assert.Equal(t, "184.53427065", res.Profit.StringFixed(8))

	left, _ := s.ListActiveOpportunities(ctx)
	require.Len(t, left, 2)
	assert.Equal(t, "a", left[0].SellExchangeID)
	assert.Equal(t, "e", left[1].SellExchangeID)

	trades, _ := s.ListAllTrades(ctx)
	require.Len(t, trades, 3)
	for _, tr := range trades {
		assert.Equal(t, domain.TradeStatusCompleted, tr.Status)
		assert.Equal(t, "1.75746924", tr.Amount)
		assert.Equal(t, "61.51142355", tr.Profit)
		assert.NotEmpty(t, tr.OpportunityID)
		assert.True(t, tr.ExecutedAt.Equal(fixedNow))
	}
}

func TestRunBatch_NoopWhenInactive(t *testing.T) {
	ctx := context.Background()

	t.Run("settings inactive", func(t *testing.T) {
		s := newStore(t, false)
		addOpp(t, s, "kraken", "1.0000")
		res, err := NewExecutor(s, 3, clock, discard()).RunBatch(ctx)
		require.NoError(t, err)
		assert.Zero(t, res.Executed)
	})

	t.Run("settings missing", func(t *testing.T) {
		s := memory.New()
		res, err := NewExecutor(s, 3, clock, discard()).RunBatch(ctx)
		require.NoError(t, err)
		assert.Zero(t, res.Executed)
	})
}

func TestRunBatch_StopsOnCancel(t *testing.T) {
	s := newStore(t, true)
	addOpp(t, s, "kraken", "1.0000")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewExecutor(s, 3, clock, discard()).RunBatch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Executed)
}

func TestExecuteOne_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown opportunity", func(t *testing.T) {
		_, err := NewExecutor(newStore(t, true), 3, clock, discard()).ExecuteOne(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("inactive opportunity", func(t *testing.T) {
		s := newStore(t, true)
		o := addOpp(t, s, "kraken", "1.0000")
		_, err := s.ClaimOpportunity(ctx, o.ID)
		require.NoError(t, err)
		_, err = NewExecutor(s, 3, clock, discard()).ExecuteOne(ctx, o.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, err, domain.ErrOpportunityInactive)
	})

	t.Run("bot inactive", func(t *testing.T) {
		s := newStore(t, false)
		o := addOpp(t, s, "kraken", "1.0000")
		_, err := NewExecutor(s, 3, clock, discard()).ExecuteOne(ctx, o.ID)
		assert.ErrorIs(t, err, domain.ErrBotInactive)

		active, _ := s.ListActiveOpportunities(ctx)
		assert.Len(t, active, 1, "opportunity is left untouched")
	})

	t.Run("lock held elsewhere", func(t *testing.T) {
		s := newStore(t, true)
		o := addOpp(t, s, "kraken", "1.0000")
		locks := local.NewLocks()
		unlock, err := locks.Acquire(ctx, "exec:opportunity:"+o.ID, time.Minute)
		require.NoError(t, err)
		defer unlock()

		e := NewExecutor(s, 3, clock, discard())
		e.SetLockManager(locks)
		_, err = e.ExecuteOne(ctx, o.ID)
		assert.ErrorIs(t, err, domain.ErrOpportunityInactive)
		assert.ErrorIs(t, err, domain.ErrLockHeld)
	})
}

func TestExecuteOne_FansOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newStore(t, true)
	o := addOpp(t, s, "kraken", "1.2302")

	bus := local.NewBus()
	events, err := bus.Subscribe(ctx, domain.ChannelTrades)
	require.NoError(t, err)
	n := new(MockNotifier)
	n.On("Notify", mock.Anything, "trade_executed", "Trade executed", mock.AnythingOfType("string")).Return(errors.New("webhook down"))

	e := NewExecutor(s, 3, clock, discard())
	e.SetSinks(bus, nil, n)
	trade, err := e.ExecuteOne(ctx, o.ID)
	require.NoError(t, err, "notification failures do not fail the trade")
	assert.Equal(t, o.ID, trade.OpportunityID)

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("no trade event")
	}
	assert.Len(t, bus.Stream(domain.StreamTrades), 1)
	n.AssertExpectations(t)
}

func TestExecution_ManualAndAutomaticAreExclusive(t *testing.T) {
	ctx := context.Background()
	for round := 0; round < 20; round++ {
		s := newStore(t, true)
		o := addOpp(t, s, "kraken", "1.0000")
		e := NewExecutor(s, 3, clock, discard())

		var wg sync.WaitGroup
		var manualErr error
		var batch BatchResult
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, manualErr = e.ExecuteOne(ctx, o.ID)
		}()
		go func() {
			defer wg.Done()
			batch, _ = e.RunBatch(ctx)
		}()
		wg.Wait()

		trades, _ := s.ListAllTrades(ctx)
		require.Len(t, trades, 1, "round %d", round)
		if manualErr == nil {
			assert.Zero(t, batch.Executed)
		} else {
			assert.ErrorIs(t, manualErr, domain.ErrNotFound)
			assert.Equal(t, 1, batch.Executed)
		}
	}
}

// cancellingStore cancels the batch context as soon as a claim succeeds and
// refuses writes on a done context, like a database driver would.
type cancellingStore struct {
	*memory.Store
	cancel context.CancelFunc
}

func (s *cancellingStore) ClaimOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	o, err := s.Store.ClaimOpportunity(ctx, id)
	s.cancel()
	return o, err
}

func (s *cancellingStore) CreateTrade(ctx context.Context, t domain.Trade) (domain.Trade, error) {
	if err := ctx.Err(); err != nil {
		return domain.Trade{}, err
	}
	return s.Store.CreateTrade(ctx, t)
}

func TestRunBatch_CancelAfterClaimStillRecordsTrade(t *testing.T) {
	mem := newStore(t, true)
	first := addOpp(t, mem, "kraken", "2.0000")
	second := addOpp(t, mem, "coinbase", "1.0000")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &cancellingStore{Store: mem, cancel: cancel}

	res, err := NewExecutor(s, 3, clock, discard()).RunBatch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Executed)

	trades, err := mem.ListAllTrades(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, first.ID, trades[0].OpportunityID)

	got, err := mem.GetOpportunity(context.Background(), first.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	got, err = mem.GetOpportunity(context.Background(), second.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive, "items after the stop are left untouched")
}

type failingTradeStore struct {
	*memory.Store
}

func (s *failingTradeStore) CreateTrade(context.Context, domain.Trade) (domain.Trade, error) {
	return domain.Trade{}, errors.New("disk full")
}

func TestExecute_ReleasesClaimWhenTradeWriteFails(t *testing.T) {
	ctx := context.Background()
	mem := newStore(t, true)
	o := addOpp(t, mem, "kraken", "1.0000")
	exec := NewExecutor(&failingTradeStore{Store: mem}, 3, clock, discard())

	res, err := exec.RunBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Executed)

	got, err := mem.GetOpportunity(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive, "claim is undone when the trade is not recorded")

	_, err = exec.ExecuteOne(ctx, o.ID)
	assert.ErrorContains(t, err, "disk full")
	got, err = mem.GetOpportunity(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}
