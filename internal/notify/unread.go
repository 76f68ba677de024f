package notify

import "context"

// UnreadCount delays the unread-notice count query until the value is
// actually needed, then caches it for the lifetime of the accessor. One
// accessor is created per inbound request and discarded with it, so the
// cache never leaks across requests. There is no locking: the accessor is
// request-scoped and never shared between goroutines.
//
// The cache is an explicit pointer field checked before querying — a miss is
// represented by nil, not by a sentinel error.
type UnreadCount struct {
	querier UnreadQuerier
	userID  string
	cached  *int
}

// NewUnreadCount creates an accessor for the given user's unread count.
func NewUnreadCount(querier UnreadQuerier, userID string) *UnreadCount {
	return &UnreadCount{querier: querier, userID: userID}
}

// Value returns the unread count, querying at most once per accessor
// instance. A query error is returned without caching, so a later call
// retries.
func (c *UnreadCount) Value(ctx context.Context) (int, error) {
	if c.cached != nil {
		return *c.cached, nil
	}

	count, err := c.querier.CountUnread(ctx, c.userID)
	if err != nil {
		return 0, err
	}

	c.cached = &count
	return count, nil
}

// unreadKey carries the accessor through a request context.
type unreadKey struct{}

// WithUnreadCount stores an accessor in the context. Installed by API
// middleware once per authenticated request.
func WithUnreadCount(ctx context.Context, c *UnreadCount) context.Context {
	return context.WithValue(ctx, unreadKey{}, c)
}

// UnreadCountFromContext retrieves the request's accessor, or nil when the
// request is unauthenticated or middleware did not run.
func UnreadCountFromContext(ctx context.Context) *UnreadCount {
	c, _ := ctx.Value(unreadKey{}).(*UnreadCount)
	return c
}
