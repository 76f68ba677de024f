package external

import (
	"context"
	"log/slog"
	"sync"

	"noticebox/internal/types"
)

// MemoryBackend implements MailBackend by recording messages in memory
// instead of delivering them. It lets the application boot in local mode
// without provider credentials and gives tests a way to observe exactly
// what would have been sent.
//
// Failures are injectable: set OpenErr or SendErr to exercise the error
// paths of callers.
type MemoryBackend struct {
	mu       sync.Mutex
	messages []types.MailMessage
	logger   *slog.Logger

	// OpenErr, when set, is returned by every Open call.
	OpenErr error

	// SendErr, when set, is returned by every SendBatch call after the
	// batch has been recorded.
	SendErr error
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend(logger *slog.Logger) *MemoryBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryBackend{logger: logger}
}

// Name returns the backend identifier.
func (b *MemoryBackend) Name() string { return "memory" }

// Open returns the backend itself; a memory "connection" has no state beyond
// the shared message log.
func (b *MemoryBackend) Open(ctx context.Context, opts BackendOptions) (MailConnection, error) {
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	b.logger.DebugContext(ctx, "memory backend opened",
		"fail_silently", opts.FailSilently,
	)
	return b, nil
}

// SendBatch records the messages and logs each one.
func (b *MemoryBackend) SendBatch(ctx context.Context, messages []types.MailMessage) (int, error) {
	b.mu.Lock()
	b.messages = append(b.messages, messages...)
	b.mu.Unlock()

	for _, msg := range messages {
		b.logger.InfoContext(ctx, "memory backend recorded message",
			"to", msg.To,
			"subject", msg.Subject,
		)
	}

	if b.SendErr != nil {
		return 0, b.SendErr
	}
	return len(messages), nil
}

// Messages returns a copy of every message recorded so far.
func (b *MemoryBackend) Messages() []types.MailMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.MailMessage, len(b.messages))
	copy(out, b.messages)
	return out
}

// Reset clears the recorded messages.
func (b *MemoryBackend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
}

// Compile-time assertions.
var _ MailBackend = (*MemoryBackend)(nil)
var _ MailConnection = (*MemoryBackend)(nil)
