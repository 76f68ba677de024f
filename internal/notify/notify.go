// Package notify implements the notice dispatch pipeline: rendering
// per-recipient subject/body content from preset templates and delivering it
// through pluggable channel handlers. Two handlers are provided —
// DatabaseHandler persists notices for on-site display and EmailHandler
// sends them as email messages — plus a MultiHandler that fans one dispatch
// call out to several handlers.
//
// Handlers are explicitly constructed and explicitly passed; there are no
// package-level singleton instances. The composition root (cmd/api,
// cmd/tools/send-notice) owns the wiring.
package notify

import (
	"context"
	"time"

	"noticebox/internal/types"
)

// Message carries the per-call dispatch parameters shared by all channel
// handlers. The zero value dispatches the handler's default preset with no
// overrides.
type Message struct {
	// Preset selects a named template variant. Empty means the handler's
	// default preset.
	Preset string

	// Subject and Body are literal override strings. When set, template
	// resolution for that role is skipped entirely. The channel escaping
	// rules still apply: the web channel HTML-escapes overrides, the email
	// channel passes them through verbatim.
	Subject string
	Body    string

	// SubjectTemplate and BodyTemplate override the preset-derived template
	// path for a single call.
	SubjectTemplate string
	BodyTemplate    string

	// FailSilently overrides the email handler's failure-tolerance default
	// for this call. Nil means "use the handler default". Ignored by the
	// database handler, which has no tolerant mode.
	FailSilently *bool

	// Context holds extra named values forwarded into template rendering.
	// The recipient is always bound under the "User" key and wins over a
	// colliding context entry.
	Context map[string]any
}

// Handler is a delivery channel (or a composition of channels) for notices.
// Dispatch delivers one message to every recipient, returning nil on success
// and an error on hard failure. An empty recipient slice is the zero-length
// happy path: no rendering, no delivery, nil error.
type Handler interface {
	Dispatch(ctx context.Context, recipients []types.Recipient, msg Message) error
}

// To wraps a single recipient in the one-element slice that Dispatch
// expects. It exists so call sites never hand a bare recipient to a
// collection parameter.
func To(r types.Recipient) []types.Recipient {
	return []types.Recipient{r}
}

// NoticeStore is the persistence dependency of the DatabaseHandler.
// Implemented by db.NoticeRepository.
type NoticeStore interface {
	CreateBatch(ctx context.Context, notices []*types.Notice) error
}

// UnreadQuerier is the count dependency of the unread accessor.
// Implemented by db.NoticeRepository.
type UnreadQuerier interface {
	CountUnread(ctx context.Context, userID string) (int, error)
}

// MetricResult categorizes a dispatch outcome for metrics reporting.
type MetricResult string

const (
	MetricSuccess MetricResult = "success"
	MetricFailed  MetricResult = "failed"
	MetricSkipped MetricResult = "skipped"
)

// Metrics abstracts the telemetry sink for dispatch outcomes. The pipeline
// reports outcomes but never fails a dispatch because of its metrics sink.
type Metrics interface {
	RecordDispatch(ctx context.Context, channel types.ChannelType, result MetricResult, count int)
	RecordLatency(ctx context.Context, channel types.ChannelType, d time.Duration)
}

// NoopMetrics discards all measurements. Used when metrics are disabled.
type NoopMetrics struct{}

func (NoopMetrics) RecordDispatch(context.Context, types.ChannelType, MetricResult, int) {}
func (NoopMetrics) RecordLatency(context.Context, types.ChannelType, time.Duration)     {}

// nopLogger discards all log output. Handlers fall back to it when
// constructed without a logger so the dispatch path never nil-checks.
type nopLogger struct{}

func (nopLogger) Info(string, ...any)        {}
func (nopLogger) Error(string, ...any)       {}
func (nopLogger) Warn(string, ...any)        {}
func (l nopLogger) With(...any) types.Logger { return l }

// orDefaults fills the optional cross-cutting dependencies of a handler.
func orDefaults(logger types.Logger, metrics Metrics, clock types.Clock) (types.Logger, Metrics, types.Clock) {
	if logger == nil {
		logger = nopLogger{}
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return logger, metrics, clock
}
