package quote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"jimshazmatremoval.com.au/auburn-web/internal/archive"
	"jimshazmatremoval.com.au/auburn-web/internal/config"
)

var (
	// ErrPrimaryDelivery wraps the transport error when the primary recipient could not be reached.
	ErrPrimaryDelivery = errors.New("quote: primary delivery failed")

	errRelayTransportRequired = errors.New("quote: transport is required")
	errRelayRendererRequired  = errors.New("quote: renderer is required")
	errRelayPrimaryRequired   = errors.New("quote: primary recipient is required")
)

// Archiver stores a copy of each submission.
type Archiver interface {
	Archive(ctx context.Context, rec archive.Record, files []archive.File) error
}

// RelayDeps wires a Relay.
type RelayDeps struct {
	Transport Transport
	Renderer  *Renderer
	Mail      config.MailConfig
	Archiver  Archiver
	Logger    *zap.Logger
	Clock     func() time.Time
	NewID     func() string
}

// Outcome reports what happened to a submission that reached the primary recipient.
type Outcome struct {
	ID           string
	SecondaryErr error
	// Partial is set when the secondary send failed and the policy asks to surface it.
	Partial bool
}

// Relay turns submissions into notification mails.
type Relay struct {
	transport Transport
	renderer  *Renderer
	mail      config.MailConfig
	archiver  Archiver
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewRelay validates deps and applies defaults.
func NewRelay(deps RelayDeps) (*Relay, error) {
	if deps.Transport == nil {
		return nil, errRelayTransportRequired
	}
	if deps.Renderer == nil {
		return nil, errRelayRendererRequired
	}
	if strings.TrimSpace(deps.Mail.Primary) == "" {
		return nil, errRelayPrimaryRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	if deps.Mail.SecondaryPolicy == "" {
		deps.Mail.SecondaryPolicy = config.SecondaryLog
	}
	return &Relay{
		transport: deps.Transport,
		renderer:  deps.Renderer,
		mail:      deps.Mail,
		archiver:  deps.Archiver,
		logger:    logger,
		now:       clock,
		newID:     newID,
	}, nil
}

// Submit delivers sub to the primary recipient and then the secondary one. Only a primary failure
// is returned as an error; secondary failures are reported through Outcome according to policy.
func (r *Relay) Submit(ctx context.Context, sub Submission) (Outcome, error) {
	if sub.ID == "" {
		sub.ID = r.newID()
	}
	if sub.ReceivedAt.IsZero() {
		sub.ReceivedAt = r.now()
	}
	out := Outcome{ID: sub.ID}
	logger := r.logger.With(zap.String("submissionID", sub.ID), zap.String("service", sub.Service))

	subject := r.renderer.Subject(sub, sub.ReceivedAt)
	body, err := r.renderer.Notification(sub, sub.ReceivedAt)
	if err != nil {
		return out, err
	}

	primaryErr := r.deliver(ctx, r.mail.Primary, sub, subject, body)
	r.archive(ctx, sub, primaryErr == nil)
	if primaryErr != nil {
		logger.Error("quote notification failed", zap.String("recipient", r.mail.Primary), zap.Error(primaryErr))
		return out, fmt.Errorf("%w: %w", ErrPrimaryDelivery, primaryErr)
	}
	logger.Info("quote notification sent", zap.String("recipient", r.mail.Primary), zap.Int("attachments", len(sub.Attachments)))

	if strings.TrimSpace(r.mail.Secondary) == "" {
		return out, nil
	}
	if err := r.deliver(ctx, r.mail.Secondary, sub, subject, body); err != nil {
		out.SecondaryErr = err
		switch r.mail.SecondaryPolicy {
		case config.SecondaryIgnore:
		case config.SecondarySurface:
			out.Partial = true
			logger.Warn("secondary quote notification failed", zap.String("recipient", r.mail.Secondary), zap.Error(err))
		default:
			logger.Warn("secondary quote notification failed", zap.String("recipient", r.mail.Secondary), zap.Error(err))
		}
	}
	return out, nil
}

func (r *Relay) deliver(ctx context.Context, to string, sub Submission, subject, body string) error {
	msg, err := r.buildMessage(to, sub, subject, body)
	if err != nil {
		return err
	}
	return r.transport.Send(ctx, msg)
}

func (r *Relay) buildMessage(to string, sub Submission, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(r.mail.From); err != nil {
		return nil, fmt.Errorf("quote: from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("quote: recipient %s: %w", to, err)
	}
	if err := msg.ReplyTo(r.replyTo(sub)); err != nil {
		return nil, fmt.Errorf("quote: reply-to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, body)
	for _, att := range sub.Attachments {
		if err := msg.AttachReader(att.Filename, bytes.NewReader(att.Data),
			mail.WithFileContentType(mail.ContentType(att.ContentType))); err != nil {
			return nil, fmt.Errorf("quote: attach %s: %w", att.Filename, err)
		}
	}
	return msg, nil
}

// replyTo prefers the submitter's address when it parses, else the no-reply address.
func (r *Relay) replyTo(sub Submission) string {
	if sub.Email != "" {
		if _, err := netmail.ParseAddress(sub.Email); err == nil {
			return sub.Email
		}
	}
	if r.mail.NoReply != "" {
		return r.mail.NoReply
	}
	return r.mail.From
}

func (r *Relay) archive(ctx context.Context, sub Submission, delivered bool) {
	if r.archiver == nil {
		return
	}
	rec := archive.Record{
		ID:           sub.ID,
		ReceivedAt:   sub.ReceivedAt.UTC(),
		Service:      sub.Service,
		Name:         sub.FullName(),
		Email:        sub.Email,
		Phone:        sub.Phone,
		Address:      sub.Address,
		Suburb:       sub.Suburb,
		OccupantType: sub.OccupantType,
		Preference:   sub.Preference(),
		Questions:    sub.Questions,
		Details:      sub.details(),
		Delivered:    delivered,
	}
	files := make([]archive.File, 0, len(sub.Attachments))
	for _, att := range sub.Attachments {
		files = append(files, archive.File{Name: att.Filename, ContentType: att.ContentType, Data: att.Data})
	}
	if err := r.archiver.Archive(ctx, rec, files); err != nil {
		r.logger.Debug("quote archive incomplete", zap.String("submissionID", sub.ID), zap.Error(err))
	}
}

// details flattens the service-specific answers, dropping empty ones.
func (s Submission) details() map[string]string {
	out := map[string]string{}
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	if s.IsMould() {
		put("rooms", s.Mould.Rooms)
		put("cause", s.Mould.Cause)
		put("locations", s.Mould.Locations)
		put("description", s.Mould.Description)
		put("additional", s.Mould.Additional)
	} else {
		put("areas", s.Asbestos.Areas)
		put("tested", s.Asbestos.Tested)
		put("locations", s.Asbestos.Locations)
		put("description", s.Asbestos.Description)
		put("size", s.Asbestos.Size)
	}
	return out
}
