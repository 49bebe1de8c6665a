// Package mail delivers transactional email: certificate notices and
// password reset links.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
)

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Validate checks the message has a parseable recipient and some content.
func (m Message) Validate() error {
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", m.To, err)
	}
	if strings.TrimSpace(m.Text) == "" && strings.TrimSpace(m.HTML) == "" {
		return fmt.Errorf("message to %s has no content", m.To)
	}
	return nil
}

// Sender sends a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Console writes messages to the log instead of sending them.
type Console struct {
	From       string
	SubjPrefix string
}

var _ Sender = (*Console)(nil)

func (c Console) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	slog.Info("email (console)",
		"from", c.From,
		"to", msg.To,
		"subject", c.SubjPrefix+msg.Subject,
		"text", msg.Text,
	)
	return nil
}
