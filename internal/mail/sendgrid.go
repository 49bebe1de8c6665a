package mail

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGrid sends messages through the SendGrid v3 API.
type SendGrid struct {
	client     *sendgrid.Client
	from       *sgmail.Email
	subjPrefix string
}

var _ Sender = (*SendGrid)(nil)

// NewSendGrid creates a SendGrid sender. fromName may be empty.
func NewSendGrid(apiKey, fromName, fromAddress, subjPrefix string) *SendGrid {
	return &SendGrid{
		client:     sendgrid.NewSendClient(apiKey),
		from:       sgmail.NewEmail(fromName, fromAddress),
		subjPrefix: subjPrefix,
	}
}

func (s *SendGrid) prepare(msg Message) *sgmail.SGMailV3 {
	to := sgmail.NewEmail("", msg.To)
	return sgmail.NewSingleEmail(s.from, s.subjPrefix+msg.Subject, to, msg.Text, msg.HTML)
}

func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	res, err := s.client.SendWithContext(ctx, s.prepare(msg))
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, snippet([]byte(res.Body), 300))
	}
	return nil
}
