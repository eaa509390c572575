// Package delivery sends drafted emails over authenticated SMTP.
//
// Send never returns an error: transport failures (and panics) are folded
// into Result so a failed delivery cannot fail the workflow run.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/shpitdev/inbound-lead-agent/internal/draft"
	"github.com/shpitdev/inbound-lead-agent/internal/util"
)

const (
	DefaultHost     = "smtp.gmail.com"
	DefaultPort     = 587
	DefaultFromName = "Inbound Lead Agent"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	FromName string
	// FromAddress defaults to Username.
	FromAddress string
	// RedirectTo, when set, replaces every recipient address. The display
	// name is kept.
	RedirectTo string
}

// Result describes one delivery attempt.
type Result struct {
	Success   bool   `json:"success"`
	Simulated bool   `json:"simulated"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Transport hands a composed message to a mail server.
type Transport interface {
	Send(ctx context.Context, from string, to []string, msg []byte) error
}

// SMTPTransport delivers through an SMTP relay with PLAIN auth. Port 465
// uses implicit TLS; any other port uses STARTTLS when offered.
type SMTPTransport struct {
	Host     string
	Port     int
	Username string
	Password string
}

func (t SMTPTransport) Send(ctx context.Context, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
	auth := sasl.NewPlainClient("", t.Username, t.Password)

	done := make(chan error, 1)
	go func() {
		if t.Port == 465 {
			done <- smtp.SendMailTLS(addr, auth, from, to, bytes.NewReader(msg))
			return
		}
		done <- smtp.SendMail(addr, auth, from, to, bytes.NewReader(msg))
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Mailer struct {
	cfg       Config
	transport Transport
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Mailer)

// WithTransport replaces the SMTP transport.
func WithTransport(t Transport) Option {
	return func(m *Mailer) { m.transport = t }
}

// WithClock overrides the Date header clock.
func WithClock(now func() time.Time) Option {
	return func(m *Mailer) { m.now = now }
}

func New(cfg Config, logger *slog.Logger, opts ...Option) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if strings.TrimSpace(cfg.FromName) == "" {
		cfg.FromName = DefaultFromName
	}
	if strings.TrimSpace(cfg.FromAddress) == "" {
		cfg.FromAddress = cfg.Username
	}
	m := &Mailer{
		cfg: cfg,
		transport: SMTPTransport{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		now:    time.Now,
		logger: logger.With("component", "delivery"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Configured reports whether real sends are possible.
func (m *Mailer) Configured() bool {
	return strings.TrimSpace(m.cfg.Username) != "" && m.cfg.Password != ""
}

// Send delivers draftText to the recipient. Without credentials the send is
// simulated and reported as successful.
func (m *Mailer) Send(ctx context.Context, draftText, recipientEmail, recipientName string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Error: util.RedactSecrets(fmt.Sprintf("delivery panic: %v", r))}
			m.logger.ErrorContext(ctx, "delivery panicked", "error", res.Error)
		}
	}()

	if !m.Configured() {
		m.logger.InfoContext(ctx, "email simulated, smtp credentials not configured", "to", recipientEmail)
		return Result{Success: true, Simulated: true}
	}

	to := strings.TrimSpace(recipientEmail)
	if m.cfg.RedirectTo != "" {
		to = m.cfg.RedirectTo
	}
	if to == "" {
		return m.fail(ctx, recipientEmail, errors.New("no recipient address"))
	}

	subject, body := draft.SplitSubject(draftText)
	msg, id, err := compose(envelope{
		From:    &mail.Address{Name: m.cfg.FromName, Address: m.cfg.FromAddress},
		To:      &mail.Address{Name: strings.TrimSpace(recipientName), Address: to},
		Subject: subject,
		Text:    body,
		Date:    m.now(),
	})
	if err != nil {
		return m.fail(ctx, recipientEmail, err)
	}

	if err := m.transport.Send(ctx, m.cfg.FromAddress, []string{to}, msg); err != nil {
		return m.fail(ctx, recipientEmail, err)
	}

	m.logger.InfoContext(ctx, "email sent",
		"to", to,
		"redirected", m.cfg.RedirectTo != "",
		"subject", subject,
		"message_id", id,
	)
	return Result{Success: true, MessageID: id}
}

func (m *Mailer) fail(ctx context.Context, recipient string, err error) Result {
	msg := util.RedactSecrets(err.Error())
	m.logger.WarnContext(ctx, "email delivery failed", "to", recipient, "error", msg)
	return Result{Error: msg}
}
