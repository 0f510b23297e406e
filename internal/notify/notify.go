package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
)

type Kind string

const (
	KindScored   Kind = "scored"
	KindRewarded Kind = "rewarded"
	KindFailed   Kind = "failed"
)

// Event describes one oracle outcome. Amount is already formatted for humans.
type Event struct {
	Kind        Kind
	RequestID   string
	Submitter   string
	ImageURL    string
	Score       int
	Approved    bool
	Amount      string
	Reason      string
	TxHash      string
	ExplorerURL string
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

var ErrInvalidWebhook = errors.New("invalid discord webhook url")

// DiscordNotifier posts events to a Discord channel webhook.
type DiscordNotifier struct {
	session *discordgo.Session
	id      string
	token   string
}

// New returns a Discord notifier for webhookURL, or Nop when it is empty.
func New(webhookURL string) (Notifier, error) {
	if strings.TrimSpace(webhookURL) == "" {
		slog.Info("discord webhook not configured, notifications disabled")
		return Nop{}, nil
	}
	return NewDiscordNotifier(webhookURL)
}

func NewDiscordNotifier(webhookURL string) (*DiscordNotifier, error) {
	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return &DiscordNotifier{session: session, id: id, token: token}, nil
}

// parseWebhookURL accepts https://discord.com/api/webhooks/<id>/<token>.
func parseWebhookURL(raw string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("%w: %q", ErrInvalidWebhook, raw)
}

func (n *DiscordNotifier) Notify(ctx context.Context, event Event) error {
	params := &discordgo.WebhookParams{
		Username: "Diwali Lights",
		Embeds:   []*discordgo.MessageEmbed{buildEmbed(event)},
	}
	if _, err := n.session.WebhookExecute(n.id, n.token, false, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to post %s notification: %w", event.Kind, err)
	}
	return nil
}

func buildEmbed(event Event) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		URL: event.ExplorerURL,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Submitter", Value: orDash(event.Submitter), Inline: true},
			{Name: "Request", Value: orDash(event.RequestID), Inline: true},
		},
	}
	switch event.Kind {
	case KindScored:
		embed.Title = fmt.Sprintf("Submission scored %d/10", event.Score)
		embed.Color = 0xf39c12
		status := "not approved"
		if event.Approved {
			status = "approved"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Status", Value: status, Inline: true})
	case KindRewarded:
		embed.Title = "Reward distributed"
		embed.Color = 0x2ea043
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Amount", Value: orDash(event.Amount), Inline: true})
	default:
		embed.Title = "Oracle step failed"
		embed.Color = 0xe74c3c
		embed.Description = event.Reason
	}
	if event.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: event.ImageURL}
	}
	if event.TxHash != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "tx " + event.TxHash}
	}
	return embed
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
