package notify

import (
	"context"
	"errors"
	"testing"
)

// mockUnreadQuerier implements UnreadQuerier for testing.
type mockUnreadQuerier struct {
	count int
	err   error
	calls int
}

func (q *mockUnreadQuerier) CountUnread(_ context.Context, userID string) (int, error) {
	q.calls++
	if q.err != nil {
		return 0, q.err
	}
	return q.count, nil
}

func TestUnreadCountQueriesOnce(t *testing.T) {
	q := &mockUnreadQuerier{count: 3}
	c := NewUnreadCount(q, "u1")

	for i := 0; i < 2; i++ {
		got, err := c.Value(context.Background())
		if err != nil {
			t.Fatalf("Value() call %d error: %v", i+1, err)
		}
		if got != 3 {
			t.Errorf("Value() call %d = %d, want 3", i+1, got)
		}
	}
	if q.calls != 1 {
		t.Errorf("querier invoked %d times across two reads, want 1", q.calls)
	}
}

func TestUnreadCountErrorNotCached(t *testing.T) {
	q := &mockUnreadQuerier{err: errors.New("connection reset")}
	c := NewUnreadCount(q, "u1")

	if _, err := c.Value(context.Background()); err == nil {
		t.Fatal("Value() expected error")
	}

	// The failure is not memoized: the next read retries and succeeds.
	q.err = nil
	q.count = 7
	got, err := c.Value(context.Background())
	if err != nil {
		t.Fatalf("Value() after recovery error: %v", err)
	}
	if got != 7 {
		t.Errorf("Value() = %d, want 7", got)
	}
	if q.calls != 2 {
		t.Errorf("querier invoked %d times, want 2", q.calls)
	}
}

func TestUnreadCountZeroIsCached(t *testing.T) {
	q := &mockUnreadQuerier{count: 0}
	c := NewUnreadCount(q, "u1")

	for i := 0; i < 2; i++ {
		got, err := c.Value(context.Background())
		if err != nil {
			t.Fatalf("Value() error: %v", err)
		}
		if got != 0 {
			t.Errorf("Value() = %d, want 0", got)
		}
	}
	if q.calls != 1 {
		t.Errorf("querier invoked %d times, a zero count must still cache", q.calls)
	}
}

func TestUnreadCountContextRoundTrip(t *testing.T) {
	c := NewUnreadCount(&mockUnreadQuerier{}, "u1")
	ctx := WithUnreadCount(context.Background(), c)

	if got := UnreadCountFromContext(ctx); got != c {
		t.Errorf("UnreadCountFromContext() = %v, want the stored accessor", got)
	}
	if got := UnreadCountFromContext(context.Background()); got != nil {
		t.Errorf("UnreadCountFromContext() on bare context = %v, want nil", got)
	}
}
