package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/schemagov/modules/schemas/domain/directory"
	"github.com/iota-uz/schemagov/modules/schemas/domain/events"
	"github.com/iota-uz/schemagov/pkg/outbox"
)

type Mail struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// MailHandler turns relayed schema request events into mails for the requestor.
type MailHandler struct {
	base          context.Context
	dir           directory.Repository
	mailer        Mailer
	defaultDomain string
	timeout       time.Duration
	logger        *logrus.Entry
}

func NewMailHandler(dir directory.Repository, mailer Mailer, defaultDomain string, logger *logrus.Entry) *MailHandler {
	return &MailHandler{
		base:          context.Background(),
		dir:           dir,
		mailer:        mailer,
		defaultDomain: defaultDomain,
		timeout:       30 * time.Second,
		logger:        logger.WithField("component", "schemas.mail"),
	}
}

// WithBaseContext sets the context deliveries derive from, typically one carrying the db pool.
func (h *MailHandler) WithBaseContext(ctx context.Context) *MailHandler {
	h.base = ctx
	return h
}

// Handle is subscribed on the event bus. A returned error makes the relay retry the event.
func (h *MailHandler) Handle(meta *outbox.Meta, ev *events.SchemaRequestEventV1) error {
	ctx, cancel := context.WithTimeout(h.base, h.timeout)
	defer cancel()

	logger := h.logger.WithFields(logrus.Fields{
		"event_id":   meta.EventID.String(),
		"attempts":   meta.Attempts,
		"request_id": ev.RequestID,
		"mail_type":  ev.Type,
	})

	to, err := h.address(ctx, ev.Recipient)
	if err != nil {
		return err
	}
	m, err := composeMail(ev)
	if err != nil {
		logger.WithError(err).Warn("schemas: dropping event with unknown mail type")
		return nil
	}
	m.To = to
	if err := h.mailer.Send(ctx, m); err != nil {
		notificationsTotal.WithLabelValues(string(ev.Type), "mail_failed").Inc()
		return gerrors.Wrap(err, "send mail")
	}
	notificationsTotal.WithLabelValues(string(ev.Type), "mailed").Inc()
	logger.Info("schemas: notification mailed")
	return nil
}

func (h *MailHandler) address(ctx context.Context, username string) (string, error) {
	u, err := h.dir.UserByName(ctx, username)
	if err != nil && !errors.Is(err, directory.ErrUserNotFound) {
		return "", gerrors.Wrap(err, "recipient lookup")
	}
	if u != nil && u.Email != "" {
		return u.Email, nil
	}
	return username + "@" + h.defaultDomain, nil
}

func composeMail(ev *events.SchemaRequestEventV1) (Mail, error) {
	var subject, body string
	switch ev.Type {
	case events.SchemaRequested:
		subject = "Schema request submitted"
		body = fmt.Sprintf("A new schema request for topic %s has been submitted and is waiting for approval.", ev.TopicName)
	case events.SchemaRequestApproved:
		subject = "Schema request approved"
		body = fmt.Sprintf("Your schema request for topic %s has been approved.", ev.TopicName)
	case events.SchemaRequestDenied:
		subject = "Schema request declined"
		body = fmt.Sprintf("Your schema request for topic %s has been declined.", ev.TopicName)
		if strings.TrimSpace(ev.Reason) != "" {
			body += "\nReason: " + ev.Reason
		}
	default:
		return Mail{}, fmt.Errorf("unsupported mail type %q", ev.Type)
	}
	if ev.LoginURL != "" {
		body += "\n\nSign in to review: " + ev.LoginURL
	}
	return Mail{Subject: subject, Body: body}, nil
}
