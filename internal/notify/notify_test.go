package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	name string
	err  error
	mu   sync.Mutex
	got  []Message
}

func (r *recordingSender) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, msg)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func TestNotifier_Filter(t *testing.T) {
	ctx := context.Background()
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventEmergencyStop, " trade_executed "}, discard())

	require.NoError(t, n.Notify(ctx, EventBotStarted, "Bot started", "running"))
	require.NoError(t, n.Notify(ctx, EventTradeExecuted, "Trade executed", "ETH/USDT"))
	require.Len(t, s.got, 1)
	assert.Equal(t, Message{Event: EventTradeExecuted, Title: "Trade executed", Body: "ETH/USDT"}, s.got[0])

	all := NewNotifier([]Sender{s}, nil, discard())
	assert.True(t, all.Allowed(EventBotPaused))
	assert.True(t, all.Enabled())
	assert.False(t, NewNotifier(nil, nil, discard()).Enabled())
}

func TestNotifier_FailingSenderDoesNotBlockOthers(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.Notify(context.Background(), EventBotStopped, "Bot stopped", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, good.got, 1)
}

func TestDiscordSender(t *testing.T) {
	var payload struct {
		Embeds []discordEmbed `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	require.NoError(t, d.Send(context.Background(), Message{Event: EventEmergencyStop, Title: "Emergency stop", Body: "halted"}))
	require.Len(t, payload.Embeds, 1)
	assert.Equal(t, "Emergency stop", payload.Embeds[0].Title)
	assert.Equal(t, 0xe74c3c, payload.Embeds[0].Color)
	assert.Equal(t, EventEmergencyStop, payload.Embeds[0].Footer.Text)

	fail := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer fail.Close()
	err := NewDiscordSender(fail.URL).Send(context.Background(), Message{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestTelegramSender(t *testing.T) {
	var gotPath string
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegramSender(srv.URL+"/", "tok", "42")
	require.NoError(t, tg.Send(context.Background(), Message{Event: EventTradeExecuted, Title: "Trade <ETH>", Body: "a & b"}))
	assert.Equal(t, "/bottok/sendMessage", gotPath)
	assert.Equal(t, "42", payload["chat_id"])
	assert.Equal(t, "HTML", payload["parse_mode"])
	assert.Equal(t, "<b>Trade &lt;ETH&gt;</b>\na &amp; b\n<i>trade_executed</i>", payload["text"])

	t.Run("api error in body", func(t *testing.T) {
		bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
		}))
		defer bad.Close()
		err := NewTelegramSender(bad.URL, "tok", "1").Send(context.Background(), Message{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "chat not found")
	})
}
