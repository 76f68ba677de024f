package notify

import (
	"context"
	"errors"

	"noticebox/internal/types"
)

// MultiHandler invokes an ordered list of handlers with the same arguments.
// Registration is append-only and invocation order equals registration
// order.
//
// The default mode is fail-fast: the first handler error stops the chain and
// later handlers are never invoked for that call. CollectErrors mode invokes
// every handler regardless and returns the joined errors; the default stays
// fail-fast because callers and tests depend on the short-circuit ordering.
type MultiHandler struct {
	handlers      []Handler
	collectErrors bool
	logger        types.Logger
}

// MultiHandlerOption configures a MultiHandler.
type MultiHandlerOption func(*MultiHandler)

// WithCollectErrors switches the handler chain to invoke every handler and
// return the accumulated errors instead of stopping at the first failure.
func WithCollectErrors() MultiHandlerOption {
	return func(m *MultiHandler) {
		m.collectErrors = true
	}
}

// WithLogger attaches a logger used to note mid-chain failures in
// collect-errors mode.
func WithLogger(logger types.Logger) MultiHandlerOption {
	return func(m *MultiHandler) {
		m.logger = logger
	}
}

// NewMultiHandler creates a MultiHandler over the given handlers.
func NewMultiHandler(handlers []Handler, opts ...MultiHandlerOption) *MultiHandler {
	m := &MultiHandler{
		handlers: append([]Handler(nil), handlers...),
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register appends a handler to the end of the chain.
func (m *MultiHandler) Register(h Handler) {
	m.handlers = append(m.handlers, h)
}

// Dispatch invokes each registered handler in order with the same arguments.
func (m *MultiHandler) Dispatch(ctx context.Context, recipients []types.Recipient, msg Message) error {
	if !m.collectErrors {
		for _, h := range m.handlers {
			if err := h.Dispatch(ctx, recipients, msg); err != nil {
				return err
			}
		}
		return nil
	}

	var errs []error
	for i, h := range m.handlers {
		if err := h.Dispatch(ctx, recipients, msg); err != nil {
			m.logger.Error("handler failed, continuing chain",
				"handler_index", i,
				"error", err.Error(),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Compile-time assertion that MultiHandler implements Handler.
var _ Handler = (*MultiHandler)(nil)
