package notify

import (
	"context"
	"strings"

	"noticebox/internal/external"
	"noticebox/internal/types"
)

// EmailHandler sends notices as email messages through a pluggable mail
// backend. Recipients without a usable address are silently skipped. One
// connection is opened per dispatch call and all messages of the call are
// submitted as a single batch.
//
// Failure tolerance: when the resolved fail-silently flag is true, transport
// failures (opening the connection or sending the batch) are swallowed
// entirely — the call returns nil and the loss is logged but not reported.
// This is a deliberate best-effort mode, not a defect. Precedence of the
// flag: per-call value > instance default > false.
type EmailHandler struct {
	backends     external.BackendSource
	renderer     *Renderer
	backend      string
	backendOpts  map[string]any
	failSilently bool
	from         types.SenderIdentity
	preset       string
	subject      string
	body         string
	clock        types.Clock
	logger       types.Logger
	metrics      Metrics
}

// EmailHandlerConfig holds the dependencies and per-instance defaults for an
// EmailHandler. Backends, Renderer, Backend, and From are required.
type EmailHandlerConfig struct {
	Backends external.BackendSource
	Renderer *Renderer

	// Backend identifies which mail backend to open ("ses", "sendgrid",
	// "memory").
	Backend string

	// BackendOptions carries backend-specific settings forwarded verbatim
	// into Open.
	BackendOptions map[string]any

	// FailSilently is the instance default failure-tolerance flag.
	FailSilently bool

	// From is the sender identity on outgoing messages.
	From types.SenderIdentity

	// Preset is the instance default preset. Empty means "default".
	Preset string

	// SubjectTemplate and BodyTemplate pin the template paths for this
	// instance, bypassing preset-derived resolution.
	SubjectTemplate string
	BodyTemplate    string

	Clock   types.Clock
	Logger  types.Logger
	Metrics Metrics
}

// NewEmailHandler creates an EmailHandler from the given configuration.
func NewEmailHandler(cfg EmailHandlerConfig) *EmailHandler {
	logger, metrics, clock := orDefaults(cfg.Logger, cfg.Metrics, cfg.Clock)
	preset := cfg.Preset
	if preset == "" {
		preset = types.DefaultPreset
	}
	return &EmailHandler{
		backends:     cfg.Backends,
		renderer:     cfg.Renderer,
		backend:      cfg.Backend,
		backendOpts:  cfg.BackendOptions,
		failSilently: cfg.FailSilently,
		from:         cfg.From,
		preset:       preset,
		subject:      cfg.SubjectTemplate,
		body:         cfg.BodyTemplate,
		clock:        clock,
		logger:       logger,
		metrics:      metrics,
	}
}

// Dispatch renders and sends one email per addressable recipient. Recipients
// lacking an email address are filtered out before rendering; if nothing
// remains, no connection is opened and no send occurs.
//
// Rendering errors are NOT covered by fail-silently: a missing template is a
// programming error and always propagates. Only transport-level failures are
// eligible for suppression.
func (h *EmailHandler) Dispatch(ctx context.Context, recipients []types.Recipient, msg Message) error {
	start := h.clock.Now()
	tolerant := h.effectiveFailSilently(msg.FailSilently)
	preset := effectivePreset(msg.Preset, h.preset)

	var messages []types.MailMessage
	skipped := 0
	for _, rcpt := range recipients {
		if !rcpt.HasEmail() {
			skipped++
			continue
		}
		subject, body, err := h.render(rcpt, preset, msg)
		if err != nil {
			h.metrics.RecordDispatch(ctx, types.ChannelEmail, MetricFailed, len(recipients))
			return err
		}
		messages = append(messages, types.MailMessage{
			From:    h.from,
			To:      rcpt.Email,
			Subject: subject,
			Body:    body,
		})
	}

	if skipped > 0 {
		h.metrics.RecordDispatch(ctx, types.ChannelEmail, MetricSkipped, skipped)
	}
	if len(messages) == 0 {
		return nil
	}

	if err := h.send(ctx, messages, tolerant); err != nil {
		h.metrics.RecordDispatch(ctx, types.ChannelEmail, MetricFailed, len(messages))
		if tolerant {
			h.logger.Warn("suppressing mail transport failure (fail silently)",
				"backend", h.backend,
				"messages", len(messages),
				"error", err.Error(),
			)
			return nil
		}
		return err
	}

	h.metrics.RecordDispatch(ctx, types.ChannelEmail, MetricSuccess, len(messages))
	h.metrics.RecordLatency(ctx, types.ChannelEmail, h.clock.Now().Sub(start))
	return nil
}

// send opens one connection and submits the whole batch.
func (h *EmailHandler) send(ctx context.Context, messages []types.MailMessage, tolerant bool) error {
	backend, err := h.backends.Get(h.backend)
	if err != nil {
		return err
	}

	conn, err := backend.Open(ctx, external.BackendOptions{
		FailSilently: tolerant,
		Options:      h.backendOpts,
	})
	if err != nil {
		return err
	}

	_, err = conn.SendBatch(ctx, messages)
	return err
}

// render produces the (subject, body) pair for one recipient, with the same
// precedence rules as the database handler but email-channel escaping (none).
func (h *EmailHandler) render(rcpt types.Recipient, preset string, msg Message) (string, string, error) {
	var subject, body string
	var err error

	if msg.Subject != "" {
		subject = h.renderer.Literal(types.ChannelEmail, msg.Subject)
	} else {
		path := firstNonEmpty(msg.SubjectTemplate, h.subject)
		subject, err = h.renderer.Render(types.ChannelEmail, types.RoleSubject, preset, path, rcpt, msg.Context)
		if err != nil {
			return "", "", err
		}
	}

	if msg.Body != "" {
		body = h.renderer.Literal(types.ChannelEmail, msg.Body)
	} else {
		path := firstNonEmpty(msg.BodyTemplate, h.body)
		body, err = h.renderer.Render(types.ChannelEmail, types.RoleBody, preset, path, rcpt, msg.Context)
		if err != nil {
			return "", "", err
		}
	}

	// Subject lines must be single-line; templates leave trailing newlines.
	return strings.TrimSpace(subject), body, nil
}

// effectiveFailSilently resolves the failure-tolerance flag: per-call value
// overrides the instance default, which overrides the library default of
// "not tolerant".
func (h *EmailHandler) effectiveFailSilently(call *bool) bool {
	if call != nil {
		return *call
	}
	return h.failSilently
}

// Compile-time assertion that EmailHandler implements Handler.
var _ Handler = (*EmailHandler)(nil)
