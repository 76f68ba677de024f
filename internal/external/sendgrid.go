package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"noticebox/internal/types"
)

// sendGridAPIBase is the default SendGrid API base URL.
// Overridable in tests via SendGridBackendConfig.BaseURL.
const sendGridAPIBase = "https://api.sendgrid.com"

// SendGridBackendConfig holds the configuration for creating a
// SendGridBackend.
type SendGridBackendConfig struct {
	APIKey  string
	BaseURL string // Override for testing; defaults to sendGridAPIBase
	Logger  *slog.Logger
}

// SendGridBackend implements MailBackend by making direct HTTP calls to the
// SendGrid v3 Mail Send API through BaseClient. This routes all requests
// through the shared resilience infrastructure (circuit breaker, retries,
// error mapping) and makes testing with httptest straightforward.
type SendGridBackend struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewSendGridBackend creates a new SendGridBackend. The httpClient timeout
// should be around 10 seconds; SendGrid accepts sends quickly or not at all.
func NewSendGridBackend(httpClient *http.Client, cfg SendGridBackendConfig) *SendGridBackend {
	base := NewBaseClient(
		httpClient,
		"sendgrid",
		DefaultRetryPolicy(),
		"noticebox/1.0",
	)
	return NewSendGridBackendWithBase(base, cfg)
}

// NewSendGridBackendWithBase creates a SendGridBackend with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration (e.g., disable retries).
func NewSendGridBackendWithBase(base *BaseClient, cfg SendGridBackendConfig) *SendGridBackend {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SendGridBackend{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Name returns the backend identifier.
func (b *SendGridBackend) Name() string { return "sendgrid" }

// Open returns a connection bound to the per-call options. The only
// recognized option is "sandbox" (bool), which enables SendGrid's sandbox
// mode so messages are validated but never delivered.
func (b *SendGridBackend) Open(_ context.Context, opts BackendOptions) (MailConnection, error) {
	sandbox, _ := opts.Options["sandbox"].(bool)
	return &sendGridConnection{backend: b, sandbox: sandbox}, nil
}

// sendGridConnection submits one mail/send request per message. Each message
// carries its own subject and body, so they cannot share a single request's
// personalizations.
type sendGridConnection struct {
	backend *SendGridBackend
	sandbox bool
}

// SendBatch sends the messages sequentially and returns how many SendGrid
// accepted. The first rejection stops the batch; the count reflects the
// accepted prefix.
func (c *sendGridConnection) SendBatch(ctx context.Context, messages []types.MailMessage) (int, error) {
	for i, msg := range messages {
		if err := c.sendOne(ctx, msg); err != nil {
			return i, err
		}
	}
	return len(messages), nil
}

// sendOne transmits one message via SendGrid's v3 Mail Send API.
//
// Error mapping:
//   - 403 Forbidden -> types.ErrCodeEmailBlocked (recipient on suppression list)
//   - 429 Too Many Requests -> handled by BaseClient (retry + ErrCodeUpstreamRateLimited)
//   - 5xx -> handled by BaseClient (retry + ErrCodeUpstreamMailProvider)
//   - Other 4xx -> types.ErrCodeUpstreamMailProvider
func (c *sendGridConnection) sendOne(ctx context.Context, msg types.MailMessage) error {
	body, err := json.Marshal(c.buildMailPayload(msg))
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal SendGrid mail payload",
			err,
		)
	}

	reqURL := c.backend.baseURL + "/v3/mail/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create SendGrid mail send request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.backend.apiKey)

	resp, err := c.backend.base.Do(req)
	if err != nil {
		return wrapSendGridError("Send", err)
	}
	defer resp.Body.Close()

	// SendGrid returns 202 Accepted on success.
	if resp.StatusCode == http.StatusAccepted {
		if msgID := resp.Header.Get("X-Message-Id"); msgID != "" {
			c.backend.logger.DebugContext(ctx, "sendgrid accepted message",
				"message_id", msgID,
				"to", msg.To,
			)
		}
		return nil
	}

	return handleSendGridErrorResponse(resp, "Send")
}

// ---------------------------------------------------------------------------
// Payload Construction
// ---------------------------------------------------------------------------

// sendGridMailPayload represents the SendGrid v3 mail/send JSON request body
// with inline plain-text content.
type sendGridMailPayload struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	MailSettings     *sendGridMailSettings     `json:"mail_settings,omitempty"`
	// custom_args allows correlation with the originating notice.
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridMailSettings struct {
	SandboxMode *sendGridSetting `json:"sandbox_mode,omitempty"`
}

type sendGridSetting struct {
	Enable bool `json:"enable"`
}

// buildMailPayload maps a domain mail message to the SendGrid v3 payload.
func (c *sendGridConnection) buildMailPayload(msg types.MailMessage) sendGridMailPayload {
	payload := sendGridMailPayload{
		Personalizations: []sendGridPersonalization{
			{To: []sendGridAddress{{Email: msg.To}}},
		},
		From: sendGridAddress{
			Email: msg.From.Address,
			Name:  msg.From.Name,
		},
		Subject: msg.Subject,
		Content: []sendGridContent{
			{Type: "text/plain", Value: msg.Body},
		},
	}

	if c.sandbox {
		payload.MailSettings = &sendGridMailSettings{
			SandboxMode: &sendGridSetting{Enable: true},
		}
	}

	if msg.ReferenceID != "" {
		payload.CustomArgs = map[string]string{
			"reference_id": msg.ReferenceID,
		}
	}

	return payload
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// sendGridErrorResponse represents the JSON error body returned by SendGrid.
type sendGridErrorResponse struct {
	Errors []sendGridErrorDetail `json:"errors"`
}

type sendGridErrorDetail struct {
	Message string `json:"message"`
	Field   string `json:"field"`
	Help    string `json:"help"`
}

// handleSendGridErrorResponse reads a SendGrid error response and maps it to
// a types.AppError.
func handleSendGridErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamMailProvider,
			fmt.Sprintf("%s: SendGrid returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var sgErr sendGridErrorResponse
	errMsg := ""
	if jsonErr := json.Unmarshal(body, &sgErr); jsonErr == nil && len(sgErr.Errors) > 0 {
		errMsg = sgErr.Errors[0].Message
	} else {
		errMsg = string(body)
	}

	return mapSendGridError(operation, resp.StatusCode, errMsg)
}

// mapSendGridError translates a SendGrid HTTP error into a types.AppError.
func mapSendGridError(operation string, statusCode int, message string) error {
	switch {
	case statusCode == http.StatusForbidden:
		// 403: Recipient is on a suppression list / blocked.
		return types.NewAppError(
			types.ErrCodeEmailBlocked,
			fmt.Sprintf("%s: SendGrid blocked delivery: %s", operation, message),
			nil,
		)
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: SendGrid rate limit exceeded", operation),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamMailProvider,
			fmt.Sprintf("%s: SendGrid error (%d): %s", operation, statusCode, message),
			nil,
		)
	}
}

// wrapSendGridError wraps a BaseClient transport error with context.
func wrapSendGridError(operation string, err error) error {
	// AppErrors from BaseClient (circuit breaker, retries exhausted) already
	// carry the right error code.
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamMailProvider,
		fmt.Sprintf("%s: SendGrid request failed: %v", operation, err),
		err,
	)
}

// Compile-time assertion that SendGridBackend satisfies MailBackend.
var _ MailBackend = (*SendGridBackend)(nil)
