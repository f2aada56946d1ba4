// Package relay forwards validated form submissions to third-party
// services: contact messages to the EmailJS REST API and newsletter
// signups into the subscriber store.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/msouli/folio/pkg/config"
)

const defaultEmailEndpoint = "https://api.emailjs.com/api/v1.0/email/send"

// ContactMessage is one contact-form submission.
type ContactMessage struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
	Company string `json:"company,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// Validate trims all fields and checks the form bounds. The error text is
// for server logs only; clients get a generic message.
func (m *ContactMessage) Validate() error {
	m.Name = strings.TrimSpace(m.Name)
	m.Email = strings.TrimSpace(m.Email)
	m.Subject = strings.TrimSpace(m.Subject)
	m.Message = strings.TrimSpace(m.Message)
	m.Company = strings.TrimSpace(m.Company)
	m.Phone = strings.TrimSpace(m.Phone)

	switch {
	case len(m.Name) < 2 || len(m.Name) > 50:
		return fmt.Errorf("name must be 2-50 characters")
	case len(m.Subject) < 5 || len(m.Subject) > 100:
		return fmt.Errorf("subject must be 5-100 characters")
	case len(m.Message) < 10 || len(m.Message) > 1000:
		return fmt.Errorf("message must be 10-1000 characters")
	case len(m.Company) > 100:
		return fmt.Errorf("company too long")
	case len(m.Phone) > 50:
		return fmt.Errorf("phone too long")
	}
	if _, err := mail.ParseAddress(m.Email); err != nil {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

// EmailSender relays contact messages through EmailJS. Keeping the private
// key server-side is the whole point of relaying instead of posting from
// the browser.
type EmailSender struct {
	cfg      config.EmailConfig
	endpoint string
	client   *http.Client
}

type EmailOption func(*EmailSender)

// WithEmailEndpoint overrides the EmailJS endpoint, for tests.
func WithEmailEndpoint(endpoint string) EmailOption {
	return func(s *EmailSender) { s.endpoint = endpoint }
}

func NewEmailSender(cfg config.EmailConfig, opts ...EmailOption) *EmailSender {
	s := &EmailSender{
		cfg:      cfg,
		endpoint: defaultEmailEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured reports whether the required EmailJS credentials are present.
func (s *EmailSender) Configured() bool {
	return s.cfg.ServiceID != "" && s.cfg.TemplateID != "" && s.cfg.PublicKey != ""
}

func (s *EmailSender) Send(ctx context.Context, msg ContactMessage) error {
	company := msg.Company
	if company == "" {
		company = "Not specified"
	}
	phone := msg.Phone
	if phone == "" {
		phone = "Not provided"
	}
	payload := map[string]any{
		"service_id":  s.cfg.ServiceID,
		"template_id": s.cfg.TemplateID,
		"user_id":     s.cfg.PublicKey,
		"template_params": map[string]string{
			"from_name":  msg.Name,
			"from_email": msg.Email,
			"subject":    msg.Subject,
			"message":    msg.Message,
			"company":    company,
			"phone":      phone,
		},
	}
	if s.cfg.PrivateKey != "" {
		payload["accessToken"] = s.cfg.PrivateKey
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("relay: encode email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay: send email: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("relay: emailjs status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
