package notify

import (
	"context"

	"noticebox/internal/types"
)

// DatabaseHandler saves notices in the database so they can later be
// displayed on site. It renders the web-channel templates per recipient and
// performs a single bulk insert for the whole dispatch call.
//
// The handler makes no atomicity promise of its own: all-or-nothing behavior
// is exactly what the store's batch primitive provides. Storage failures are
// always propagated; there is no tolerant mode for persistence.
type DatabaseHandler struct {
	store    NoticeStore
	renderer *Renderer
	preset   string
	subject  string // per-instance subject template path override
	body     string // per-instance body template path override
	clock    types.Clock
	logger   types.Logger
	metrics  Metrics
}

// DatabaseHandlerConfig holds the dependencies and per-instance defaults for
// a DatabaseHandler. Store and Renderer are required; everything else has a
// sensible zero value.
type DatabaseHandlerConfig struct {
	Store    NoticeStore
	Renderer *Renderer

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

// NewDatabaseHandler creates a DatabaseHandler from the given configuration.
func NewDatabaseHandler(cfg DatabaseHandlerConfig) *DatabaseHandler {
	logger, metrics, clock := orDefaults(cfg.Logger, cfg.Metrics, cfg.Clock)
	preset := cfg.Preset
	if preset == "" {
		preset = types.DefaultPreset
	}
	return &DatabaseHandler{
		store:    cfg.Store,
		renderer: cfg.Renderer,
		preset:   preset,
		subject:  cfg.SubjectTemplate,
		body:     cfg.BodyTemplate,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// Dispatch renders one notice per recipient and bulk-inserts them. An empty
// recipient slice produces zero records and zero storage calls.
func (h *DatabaseHandler) Dispatch(ctx context.Context, recipients []types.Recipient, msg Message) error {
	if len(recipients) == 0 {
		return nil
	}

	start := h.clock.Now()
	preset := effectivePreset(msg.Preset, h.preset)

	notices := make([]*types.Notice, 0, len(recipients))
	for _, rcpt := range recipients {
		subject, body, err := h.render(rcpt, preset, msg)
		if err != nil {
			h.metrics.RecordDispatch(ctx, types.ChannelWeb, MetricFailed, len(recipients))
			return err
		}
		notices = append(notices, &types.Notice{
			ID:        types.NewNoticeID(),
			UserID:    rcpt.ID,
			Subject:   types.TruncateSubject(subject),
			Body:      body,
			CreatedAt: start,
		})
	}

	if err := h.store.CreateBatch(ctx, notices); err != nil {
		h.metrics.RecordDispatch(ctx, types.ChannelWeb, MetricFailed, len(notices))
		return err
	}

	h.metrics.RecordDispatch(ctx, types.ChannelWeb, MetricSuccess, len(notices))
	h.metrics.RecordLatency(ctx, types.ChannelWeb, h.clock.Now().Sub(start))
	return nil
}

// render produces the (subject, body) pair for one recipient, honoring the
// override precedence: literal override > per-call template path >
// instance template path > preset-derived path.
func (h *DatabaseHandler) render(rcpt types.Recipient, preset string, msg Message) (string, string, error) {
	var subject, body string
	var err error

	if msg.Subject != "" {
		subject = h.renderer.Literal(types.ChannelWeb, msg.Subject)
	} else {
		path := firstNonEmpty(msg.SubjectTemplate, h.subject)
		subject, err = h.renderer.Render(types.ChannelWeb, types.RoleSubject, preset, path, rcpt, msg.Context)
		if err != nil {
			return "", "", err
		}
	}

	if msg.Body != "" {
		body = h.renderer.Literal(types.ChannelWeb, msg.Body)
	} else {
		path := firstNonEmpty(msg.BodyTemplate, h.body)
		body, err = h.renderer.Render(types.ChannelWeb, types.RoleBody, preset, path, rcpt, msg.Context)
		if err != nil {
			return "", "", err
		}
	}

	return subject, body, nil
}

// effectivePreset applies the per-call over per-instance precedence.
func effectivePreset(call, instance string) string {
	if call != "" {
		return call
	}
	return instance
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// Compile-time assertion that DatabaseHandler implements Handler.
var _ Handler = (*DatabaseHandler)(nil)
