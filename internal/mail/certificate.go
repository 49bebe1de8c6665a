package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	appI18n "github.com/cvglobal/aula/internal/i18n"
)

// CertificateNotice tells a learner where their certificate is.
type CertificateNotice struct {
	Email          string `json:"email"`
	CourseName     string `json:"courseName"`
	CertificateURL string `json:"certificateUrl"`
}

// HTTPError carries status and body of a non-2xx webhook response.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: POST %s status=%d body=%s", e.URL, e.StatusCode, snippet(e.Body, 300))
}

func snippet(b []byte, max int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// Webhook posts certificate notices as JSON to an endpoint that sends the
// email on our behalf. Requests are not retried.
type Webhook struct {
	URL    string
	Client *http.Client
}

// NewWebhook creates a Webhook with a bounded HTTP client.
func NewWebhook(url string) *Webhook {
	return &Webhook{URL: url, Client: &http.Client{Timeout: 20 * time.Second}}
}

func (w *Webhook) NotifyCertificate(ctx context.Context, n CertificateNotice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post notice: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{URL: w.URL, StatusCode: resp.StatusCode, Body: respBody}
	}
	return nil
}

// SenderNotifier composes the certificate email itself and hands it to a Sender.
type SenderNotifier struct {
	Sender Sender
}

func (n SenderNotifier) NotifyCertificate(ctx context.Context, c CertificateNotice) error {
	data := map[string]any{"Course": c.CourseName, "URL": c.CertificateURL}
	return n.Sender.Send(ctx, Message{
		To:      c.Email,
		Subject: appI18n.Td(ctx, "CertificateMailSubject", data),
		Text:    appI18n.Td(ctx, "CertificateMailBody", data),
	})
}

// PasswordResetMessage builds the reset email for a link.
func PasswordResetMessage(ctx context.Context, to, link string) Message {
	data := map[string]any{"Link": link}
	return Message{
		To:      to,
		Subject: appI18n.T(ctx, "ResetMailSubject"),
		Text:    appI18n.Td(ctx, "ResetMailBody", data),
	}
}
