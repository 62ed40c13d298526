// Package mailer delivers rendered campaign emails.
package mailer

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/unclebandit/certificate-service/internal/config"
)

// Message is one personalized email. HTML is optional; Text is always set.
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a single message. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New builds the sender selected by cfg.Driver.
func New(cfg config.MailConfig) (Sender, error) {
	switch cfg.Driver {
	case "smtp":
		return NewSMTPSender(cfg), nil
	case "mock":
		return &MockSender{FailureRate: cfg.MockFailureRate}, nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
}

// MockSender records messages instead of delivering them and fails a
// random share of sends.
type MockSender struct {
	// FailureRate is the probability (0..1) that a send fails.
	FailureRate float64

	mu   sync.Mutex
	sent []Message
}

func (m *MockSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.FailureRate > 0 && rand.Float64() < m.FailureRate {
		return fmt.Errorf("mock sending failed")
	}
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

// Sent returns a copy of every delivered message in send order.
func (m *MockSender) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}
