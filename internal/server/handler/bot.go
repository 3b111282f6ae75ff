package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// BotController is the part of the bot service the handlers drive.
type BotController interface {
	Start(ctx context.Context) (domain.BotRuntimeStatus, error)
	Pause(ctx context.Context) (domain.BotRuntimeStatus, error)
	Stop(ctx context.Context) (domain.BotRuntimeStatus, error)
	EmergencyStop(ctx context.Context) (string, error)
	Status(ctx context.Context) (domain.BotStatusReport, error)
	Settings(ctx context.Context) (domain.BotSettings, error)
	UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (domain.BotSettings, error)
	ExecuteOpportunity(ctx context.Context, id string) (domain.Trade, error)
}

// BotHandler serves /api/bot/* and manual execution.
type BotHandler struct {
	bot    BotController
	logger *slog.Logger
}

func NewBotHandler(bot BotController, logger *slog.Logger) *BotHandler {
	return &BotHandler{bot: bot, logger: logger.With(slog.String("handler", "bot"))}
}

// POST /api/bot/start
func (h *BotHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "start bot", h.bot.Start)
}

// POST /api/bot/pause
func (h *BotHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "pause bot", h.bot.Pause)
}

// POST /api/bot/stop
func (h *BotHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "stop bot", h.bot.Stop)
}

func (h *BotHandler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context) (domain.BotRuntimeStatus, error)) {
	st, err := fn(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// EmergencyStop halts everything and answers {"message": ...}.
// POST /api/bot/emergency-stop
func (h *BotHandler) EmergencyStop(w http.ResponseWriter, r *http.Request) {
	msg, err := h.bot.EmergencyStop(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "emergency stop", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// GET /api/bot/status
func (h *BotHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.bot.Status(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "get status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GET /api/bot/settings
func (h *BotHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.bot.Settings(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UpdateSettings applies a partial update. Decimal fields may be sent as
// JSON strings or numbers.
// POST /api/bot/settings
func (h *BotHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	s, err := h.bot.UpdateSettings(r.Context(), req.patch())
	if err != nil {
		writeServiceError(w, r, h.logger, "update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// POST /api/opportunities/{id}/execute
func (h *BotHandler) ExecuteOpportunity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing opportunity id")
		return
	}
	trade, err := h.bot.ExecuteOpportunity(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "execute opportunity", err)
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

type settingsRequest struct {
	MinProfitMargin   *decimalText `json:"minProfitMargin"`
	MaxPositionSize   *decimalText `json:"maxPositionSize"`
	SlippageTolerance *decimalText `json:"slippageTolerance"`
	GasLimit          *int64       `json:"gasLimit"`
	StopLoss          *decimalText `json:"stopLoss"`
	DailyLossLimit    *decimalText `json:"dailyLossLimit"`
	AutoPauseOnLoss   *bool        `json:"autoPauseOnLoss"`
	IsActive          *bool        `json:"isActive"`
}

func (r settingsRequest) patch() domain.SettingsPatch {
	return domain.SettingsPatch{
		MinProfitMargin:   r.MinProfitMargin.ptr(),
		MaxPositionSize:   r.MaxPositionSize.ptr(),
		SlippageTolerance: r.SlippageTolerance.ptr(),
		GasLimit:          r.GasLimit,
		StopLoss:          r.StopLoss.ptr(),
		DailyLossLimit:    r.DailyLossLimit.ptr(),
		AutoPauseOnLoss:   r.AutoPauseOnLoss,
		IsActive:          r.IsActive,
	}
}

// decimalText accepts a JSON string or number and keeps its literal text.
// Validation of the value happens in the settings patch.
type decimalText string

func (d *decimalText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = decimalText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*d = decimalText(n.String())
	return nil
}

func (d *decimalText) ptr() *string {
	if d == nil {
		return nil
	}
	s := string(*d)
	return &s
}
