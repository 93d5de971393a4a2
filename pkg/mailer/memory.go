package mailer

import (
	"context"
	"sync"

	"github.com/reapflow/reapflow/pkg/protocol"
)

// MemorySender records messages instead of delivering them. Used in tests
// and local development. Duplicate idempotency keys are dropped, matching
// the delivery contract of the real sender.
type MemorySender struct {
	mu   sync.Mutex
	sent []protocol.EmailMessage
	keys map[string]bool
}

func NewMemorySender() *MemorySender {
	return &MemorySender{keys: make(map[string]bool)}
}

func (s *MemorySender) Send(_ context.Context, msg protocol.EmailMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.IdempotencyKey != "" && s.keys[msg.IdempotencyKey] {
		return nil
	}

	if msg.IdempotencyKey != "" {
		s.keys[msg.IdempotencyKey] = true
	}

	s.sent = append(s.sent, msg)

	return nil
}

// Sent returns a copy of the delivered messages.
func (s *MemorySender) Sent() []protocol.EmailMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]protocol.EmailMessage, len(s.sent))
	copy(out, s.sent)

	return out
}
