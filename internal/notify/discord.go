// Package notify delivers run outcomes to a Discord webhook. Delivery is
// best effort; a failed notification is logged by the caller, never fatal.
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

// Embed colors per outcome.
const (
	ColorSuccess  = 0x3498db
	ColorError    = 0xe74c3c
	ColorNoUpdate = 0x95a5a6
)

// Level classifies a notification.
type Level int

const (
	LevelSuccess Level = iota
	LevelError
	LevelNoUpdate
)

func (l Level) color() int {
	switch l {
	case LevelError:
		return ColorError
	case LevelNoUpdate:
		return ColorNoUpdate
	default:
		return ColorSuccess
	}
}

// Field is one embed field.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is one notification.
type Message struct {
	Title       string
	Description string
	Level       Level
	Fields      []Field
}

// Notifier delivers messages to a channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(ctx context.Context, msg Message) error { return nil }

var _ Notifier = Nop{}

// DiscordClient posts embed payloads to a webhook URL.
type DiscordClient struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordClient creates a webhook notifier.
func NewDiscordClient(webhookURL string) *DiscordClient {
	return &DiscordClient{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Notify posts one embed.
func (c *DiscordClient) Notify(ctx context.Context, msg Message) error {
	embed := discordEmbed{
		Title:       msg.Title,
		Description: msg.Description,
		Color:       msg.Level.color(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Footer:      discordFooter{Text: "campusfeed"},
	}
	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, discordField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}

	body, err := json.Marshal(discordPayload{Embeds: []discordEmbed{embed}})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook error (status %d): %s", resp.StatusCode, respBody)
	}
	return nil
}

var _ Notifier = (*DiscordClient)(nil)

// Discord webhook types

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp"`
	Fields      []discordField `json:"fields,omitempty"`
	Footer      discordFooter  `json:"footer"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordFooter struct {
	Text string `json:"text"`
}
