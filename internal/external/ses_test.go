package external

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"noticebox/internal/types"
)

// mockSESAPI implements SESAPI for testing.
type mockSESAPI struct {
	mu       sync.Mutex
	inputs   []*sesv2.SendEmailInput
	failFunc func(params *sesv2.SendEmailInput) error
}

func (m *mockSESAPI) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, params)
	m.mu.Unlock()
	if m.failFunc != nil {
		if err := m.failFunc(params); err != nil {
			return nil, err
		}
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-msg-abc123")}, nil
}

func sesTestMessages(n int) []types.MailMessage {
	from := types.SenderIdentity{Name: "Noticebox", Address: "notices@example.com"}
	msgs := make([]types.MailMessage, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, types.MailMessage{
			From:        from,
			To:          string(rune('a'+i)) + "@example.com",
			Subject:     "New notice",
			Body:        "You have a new notice.",
			ReferenceID: "ntc_" + string(rune('a'+i)),
		})
	}
	return msgs
}

func TestSESSendBatchSuccess(t *testing.T) {
	mock := &mockSESAPI{}
	backend := NewSESBackendWithAPI(mock, SESBackendConfig{
		ConfigSetName: "notices-tracking",
		Concurrency:   2,
	})

	conn, err := backend.Open(context.Background(), BackendOptions{})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	sent, err := conn.SendBatch(context.Background(), sesTestMessages(3))
	if err != nil {
		t.Fatalf("SendBatch() error: %v", err)
	}
	if sent != 3 {
		t.Errorf("sent = %d, want 3", sent)
	}
	if len(mock.inputs) != 3 {
		t.Fatalf("SendEmail called %d times, want 3", len(mock.inputs))
	}

	input := mock.inputs[0]
	if got := aws.ToString(input.FromEmailAddress); got != "Noticebox <notices@example.com>" {
		t.Errorf("FromEmailAddress = %q, want RFC 5322 formatted sender", got)
	}
	if got := aws.ToString(input.ConfigurationSetName); got != "notices-tracking" {
		t.Errorf("ConfigurationSetName = %q", got)
	}
	if got := aws.ToString(input.Content.Simple.Body.Text.Data); got != "You have a new notice." {
		t.Errorf("body text = %q", got)
	}
	if len(input.EmailTags) != 1 || aws.ToString(input.EmailTags[0].Name) != "ReferenceID" {
		t.Errorf("EmailTags = %v, want ReferenceID tag", input.EmailTags)
	}
}

func TestSESConfigSetOverride(t *testing.T) {
	mock := &mockSESAPI{}
	backend := NewSESBackendWithAPI(mock, SESBackendConfig{ConfigSetName: "default-set"})

	conn, err := backend.Open(context.Background(), BackendOptions{
		Options: map[string]any{"configuration_set": "override-set"},
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	if _, err := conn.SendBatch(context.Background(), sesTestMessages(1)); err != nil {
		t.Fatalf("SendBatch() error: %v", err)
	}
	if got := aws.ToString(mock.inputs[0].ConfigurationSetName); got != "override-set" {
		t.Errorf("ConfigurationSetName = %q, want per-call override", got)
	}
}

func TestSESPartialFailure(t *testing.T) {
	mock := &mockSESAPI{
		failFunc: func(params *sesv2.SendEmailInput) error {
			if params.Destination.ToAddresses[0] == "b@example.com" {
				return &sestypes.MessageRejected{Message: aws.String("address suppressed")}
			}
			return nil
		},
	}
	// Sequential so the accepted count is deterministic.
	backend := NewSESBackendWithAPI(mock, SESBackendConfig{Concurrency: 1})

	conn, _ := backend.Open(context.Background(), BackendOptions{})
	sent, err := conn.SendBatch(context.Background(), sesTestMessages(3))
	if err == nil {
		t.Fatal("SendBatch() expected error for rejected message")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeEmailBlocked {
		t.Errorf("error = %v, want %v", err, types.ErrCodeEmailBlocked)
	}
	if sent != 2 {
		t.Errorf("sent = %d, want 2 accepted alongside the rejection", sent)
	}
}

func TestMapSESError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.ErrorCode
	}{
		{"message rejected", &sestypes.MessageRejected{}, types.ErrCodeEmailBlocked},
		{"rate limited", &sestypes.TooManyRequestsException{}, types.ErrCodeUpstreamRateLimited},
		{"sending paused", &sestypes.SendingPausedException{}, types.ErrCodeUpstreamMailProvider},
		{"unknown", errors.New("wire error"), types.ErrCodeUpstreamMailProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var appErr *types.AppError
			if !errors.As(mapSESError(tt.err), &appErr) {
				t.Fatal("mapSESError() did not produce an AppError")
			}
			if appErr.Code != tt.want {
				t.Errorf("code = %v, want %v", appErr.Code, tt.want)
			}
		})
	}
}
