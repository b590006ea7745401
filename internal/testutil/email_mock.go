package testutil

import (
	"context"
	"sync"

	"github.com/WailSalutem-Health-Care/user-service/internal/email"
)

// SentEmail is one call recorded by MockSender.
type SentEmail struct {
	Recipient  string
	Subject    string
	TextBody   string
	HTMLBody   string
	TemplateID string
	Variables  map[string]interface{}
}

// MockSender is a recording email.Sender. Fail makes every send report
// failure while still recording the attempt.
type MockSender struct {
	mu   sync.Mutex
	sent []SentEmail
	Fail bool
}

var _ email.Sender = (*MockSender)(nil)

func NewMockSender() *MockSender {
	return &MockSender{}
}

func (m *MockSender) Send(_ context.Context, recipient, subject, textBody, htmlBody string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, SentEmail{
		Recipient: recipient,
		Subject:   subject,
		TextBody:  textBody,
		HTMLBody:  htmlBody,
	})
	return !m.Fail
}

func (m *MockSender) SendTemplate(_ context.Context, recipient, templateID string, variables map[string]interface{}) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, SentEmail{
		Recipient:  recipient,
		TemplateID: templateID,
		Variables:  variables,
	})
	return !m.Fail
}

// Sent returns a copy of every recorded email.
func (m *MockSender) Sent() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SentEmail, len(m.sent))
	copy(out, m.sent)
	return out
}
