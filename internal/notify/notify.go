// Package notify posts drafted emails to a Slack channel for human approval
// and records the reviewers' decisions.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shpitdev/inbound-lead-agent/internal/lead"
	"github.com/shpitdev/inbound-lead-agent/internal/util"
	"github.com/slack-go/slack"
)

const (
	DefaultPreviewLimit = 500

	ActionApprove = "approve_email"
	ActionReject  = "reject_email"

	// Slack rejects section text longer than this.
	maxSectionChars = 3000
)

var (
	ErrChannelNotConfigured = errors.New("slack channel id is not configured")
	ErrCredentialsMissing   = errors.New("slack bot token or signing secret is not configured")
)

type Config struct {
	BotToken      string
	SigningSecret string
	ChannelID     string
	// APIURL overrides the Slack Web API base, e.g. a local mock. It must end
	// with a slash.
	APIURL       string
	PreviewLimit int
}

// Receipt identifies the posted approval message.
type Receipt struct {
	Channel   string `json:"channel"`
	MessageTS string `json:"messageTs"`
}

type Notifier struct {
	cfg    Config
	api    *slack.Client
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PreviewLimit <= 0 {
		cfg.PreviewLimit = DefaultPreviewLimit
	}
	var opts []slack.Option
	if u := strings.TrimSpace(cfg.APIURL); u != "" {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		opts = append(opts, slack.OptionAPIURL(u))
	}
	return &Notifier{
		cfg:    cfg,
		api:    slack.New(cfg.BotToken, opts...),
		logger: logger.With("component", "notify"),
	}
}

func (n *Notifier) ready() error {
	if strings.TrimSpace(n.cfg.ChannelID) == "" {
		return ErrChannelNotConfigured
	}
	if strings.TrimSpace(n.cfg.BotToken) == "" || strings.TrimSpace(n.cfg.SigningSecret) == "" {
		return ErrCredentialsMissing
	}
	return nil
}

// Preview truncates research to limit runes, marking truncation with "...".
func Preview(research string, limit int) string {
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	return util.Truncate(research, limit)
}

// Message renders the approval request text.
func Message(research, email string, q lead.Qualification, previewLimit int) string {
	var b strings.Builder
	b.WriteString("*New Lead Qualification*\n\n")
	fmt.Fprintf(&b, "*Email:* %s\n", email)
	fmt.Fprintf(&b, "*Category:* %s\n", q.Category)
	fmt.Fprintf(&b, "*Reason:* %s\n\n", q.Reason)
	fmt.Fprintf(&b, "*Research:*\n%s\n\n", Preview(research, previewLimit))
	b.WriteString("*Please review and approve or reject this email*")
	return b.String()
}

func approvalBlocks(runID, text string) []slack.Block {
	approve := slack.NewButtonBlockElement(ActionApprove, runID,
		slack.NewTextBlockObject(slack.PlainTextType, "Approve", false, false)).
		WithStyle(slack.StylePrimary)
	reject := slack.NewButtonBlockElement(ActionReject, runID,
		slack.NewTextBlockObject(slack.PlainTextType, "Reject", false, false)).
		WithStyle(slack.StyleDanger)

	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, util.Truncate(text, maxSectionChars-3), false, false),
			nil, nil,
		),
		slack.NewActionBlock("approval", approve, reject),
	}
}

// RequestApproval posts the draft with approve/reject buttons carrying runID.
func (n *Notifier) RequestApproval(ctx context.Context, runID, research, email string, q lead.Qualification) (Receipt, error) {
	if err := n.ready(); err != nil {
		return Receipt{}, err
	}
	text := Message(research, email, q, n.cfg.PreviewLimit)

	channel, ts, err := n.api.PostMessageContext(ctx, n.cfg.ChannelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(approvalBlocks(runID, text)...),
	)
	if err != nil {
		n.logger.WarnContext(ctx, "approval request failed", "run_id", runID, "error", util.RedactSecrets(err.Error()))
		return Receipt{}, fmt.Errorf("slack post message: %w", err)
	}

	n.logger.InfoContext(ctx, "approval requested",
		"run_id", runID,
		"channel", channel,
		"message_ts", ts,
		"category", q.Category,
	)
	return Receipt{Channel: channel, MessageTS: ts}, nil
}

// CheckResult summarizes a Slack connectivity check.
type CheckResult struct {
	Team        string
	BotUser     string
	ChannelID   string
	ChannelName string
}

// Check verifies the bot token and that the configured channel is visible.
func (n *Notifier) Check(ctx context.Context) (CheckResult, error) {
	if err := n.ready(); err != nil {
		return CheckResult{}, err
	}
	auth, err := n.api.AuthTestContext(ctx)
	if err != nil {
		return CheckResult{}, fmt.Errorf("slack auth test: %w", err)
	}
	ch, err := n.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: n.cfg.ChannelID})
	if err != nil {
		return CheckResult{}, fmt.Errorf("slack channel %s: %w", n.cfg.ChannelID, err)
	}
	return CheckResult{
		Team:        auth.Team,
		BotUser:     auth.User,
		ChannelID:   ch.ID,
		ChannelName: ch.Name,
	}, nil
}
