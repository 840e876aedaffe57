package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Embed accent colours per event type.
const (
	colorArbitrage = 0xE67E22
	colorScenario  = 0x2ECC71
	colorDefault   = 0x95A5A6
)

// DiscordSender delivers messages via a Discord webhook as rich embeds.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL with a
// 10-second request timeout.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
}

// Send posts the message to the webhook as one embed. Discord replies with
// 204 No Content on success.
func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	embed := discordEmbed{
		Title:       msg.Title,
		Description: msg.Body,
		Color:       embedColor(msg.Event),
	}
	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, discordField{Name: f.Name, Value: f.Value, Inline: true})
	}

	payload := map[string]any{"embeds": []discordEmbed{embed}}
	if err := postJSON(ctx, d.client, d.webhookURL, payload); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

func embedColor(event string) int {
	switch event {
	case EventArbDetected:
		return colorArbitrage
	case EventScenarioComplete:
		return colorScenario
	}
	return colorDefault
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string { return "discord" }
