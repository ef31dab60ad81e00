package quote

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"jimshazmatremoval.com.au/auburn-web/internal/config"
)

// Transport delivers a fully built message.
type Transport interface {
	Send(ctx context.Context, msg *mail.Msg) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, msg *mail.Msg) error

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, msg *mail.Msg) error { return f(ctx, msg) }

// NewTransport builds the transport named by cfg.Transport.
func NewTransport(cfg config.MailConfig, logger *zap.Logger) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case config.TransportSendmail:
		return &SendmailTransport{Path: cfg.SendmailPath}, nil
	case config.TransportSMTP:
		return NewSMTPTransport(cfg)
	case config.TransportLog:
		return &LogTransport{Logger: logger}, nil
	default:
		return nil, fmt.Errorf("quote: unknown mail transport %q", cfg.Transport)
	}
}

// SendmailTransport pipes messages to the local sendmail binary.
type SendmailTransport struct {
	Path string
}

// Send writes msg to sendmail with -oi -t so recipients are read from the headers.
func (s *SendmailTransport) Send(ctx context.Context, msg *mail.Msg) error {
	path := s.Path
	if path == "" {
		path = mail.SendmailPath
	}
	if err := msg.WriteToSendmailWithContext(ctx, path, "-oi", "-t"); err != nil {
		return fmt.Errorf("quote: sendmail: %w", err)
	}
	return nil
}

// SMTPTransport relays through an SMTP server.
type SMTPTransport struct {
	client *mail.Client
}

// NewSMTPTransport configures an SMTP client. Auth is enabled when a username is set.
func NewSMTPTransport(cfg config.MailConfig) (*SMTPTransport, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUsername),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}
	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("quote: smtp client: %w", err)
	}
	return &SMTPTransport{client: client}, nil
}

// Send dials, delivers and closes the connection.
func (s *SMTPTransport) Send(ctx context.Context, msg *mail.Msg) error {
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("quote: smtp: %w", err)
	}
	return nil
}

// LogTransport logs messages instead of delivering them.
type LogTransport struct {
	Logger *zap.Logger
}

// Send logs the headers and the encoded size of msg.
func (l *LogTransport) Send(_ context.Context, msg *mail.Msg) error {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return fmt.Errorf("quote: encode message: %w", err)
	}
	logger.Info("mail not delivered (log transport)",
		zap.Strings("to", msg.GetAddrHeaderString(mail.HeaderTo)),
		zap.Strings("subject", msg.GetGenHeader(mail.HeaderSubject)),
		zap.Int("bytes", buf.Len()),
	)
	return nil
}
