package external

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"noticebox/internal/types"
)

func TestMemoryBackendRecordsMessages(t *testing.T) {
	backend := NewMemoryBackend(slog.Default())

	conn, err := backend.Open(context.Background(), BackendOptions{})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	msgs := []types.MailMessage{
		{To: "ada@example.com", Subject: "one"},
		{To: "grace@example.com", Subject: "two"},
	}
	sent, err := conn.SendBatch(context.Background(), msgs)
	if err != nil {
		t.Fatalf("SendBatch() error: %v", err)
	}
	if sent != 2 {
		t.Errorf("sent = %d, want 2", sent)
	}

	recorded := backend.Messages()
	if len(recorded) != 2 {
		t.Fatalf("recorded %d messages, want 2", len(recorded))
	}
	if recorded[0].To != "ada@example.com" || recorded[1].To != "grace@example.com" {
		t.Errorf("recorded = %+v, want delivery order preserved", recorded)
	}

	backend.Reset()
	if len(backend.Messages()) != 0 {
		t.Error("Reset() left messages behind")
	}
}

func TestMemoryBackendInjectedFailures(t *testing.T) {
	backend := NewMemoryBackend(slog.Default())

	backend.OpenErr = errors.New("open refused")
	if _, err := backend.Open(context.Background(), BackendOptions{}); !errors.Is(err, backend.OpenErr) {
		t.Errorf("Open() error = %v, want injected failure", err)
	}

	backend.OpenErr = nil
	backend.SendErr = errors.New("send refused")
	conn, _ := backend.Open(context.Background(), BackendOptions{})

	sent, err := conn.SendBatch(context.Background(), []types.MailMessage{{To: "a@example.com"}})
	if !errors.Is(err, backend.SendErr) {
		t.Errorf("SendBatch() error = %v, want injected failure", err)
	}
	if sent != 0 {
		t.Errorf("sent = %d, want 0 on injected failure", sent)
	}
	// The message is still recorded so tests can assert what was attempted.
	if len(backend.Messages()) != 1 {
		t.Errorf("recorded %d messages, want the attempted send", len(backend.Messages()))
	}
}
