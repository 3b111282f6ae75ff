package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Embed colours by event; anything else is grey.
var discordColors = map[string]int{
	EventBotStarted:    0x2ecc71,
	EventBotResumed:    0x2ecc71,
	EventBotPaused:     0xf1c40f,
	EventBotStopped:    0x95a5a6,
	EventEmergencyStop: 0xe74c3c,
	EventTradeExecuted: 0x3498db,
}

// DiscordSender posts alerts to a Discord webhook as a single embed.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type discordFooter struct {
	Text string `json:"text"`
}

type discordEmbed struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Color       int           `json:"color"`
	Footer      discordFooter `json:"footer"`
}

func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	embed := discordEmbed{
		Title:       msg.Title,
		Description: msg.Body,
		Color:       0x7f8c8d,
		Footer:      discordFooter{Text: msg.Event},
	}
	if c, ok := discordColors[msg.Event]; ok {
		embed.Color = c
	}

	body, err := json.Marshal(map[string]any{"embeds": []discordEmbed{embed}})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (d *DiscordSender) Name() string { return "discord" }
