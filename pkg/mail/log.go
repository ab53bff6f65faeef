package mail

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/tom2984/aac-sub001/pkg/logger"
)

// LogMailer writes messages to the application log instead of delivering them.
// Intended for local development.
type LogMailer struct {
	from string
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(from string) *LogMailer {
	return &LogMailer{from: from}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	from := msg.From
	if from == "" {
		from = m.from
	}
	logger.WithModule("mail").Info("email (log driver)",
		zap.String("from", from),
		zap.Strings("to", uniqueAddresses(msg.To)),
		zap.String("subject", msg.Subject),
		zap.String("template", msg.Template),
		zap.String("body", msg.Body),
	)
	return nil
}

// MemoryMailer records messages in memory. Fail, when set, is consulted before each
// send and its error is returned without recording the message.
type MemoryMailer struct {
	mu       sync.Mutex
	messages []Message

	Fail func(msg Message) error
}

// NewMemoryMailer constructs an empty MemoryMailer.
func NewMemoryMailer() *MemoryMailer {
	return &MemoryMailer{}
}

func (m *MemoryMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail != nil {
		if err := m.Fail(msg); err != nil {
			return err
		}
	}
	if len(uniqueAddresses(msg.To)) == 0 {
		return errors.New("memory mailer: at least one recipient is required")
	}
	m.messages = append(m.messages, msg)
	return nil
}

// Messages returns a copy of the recorded messages.
func (m *MemoryMailer) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}
