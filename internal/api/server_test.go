package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noticebox/internal/config"
	"noticebox/internal/types"
)

// =============================================================================
// Mock Implementations
// =============================================================================

type mockNoticeService struct {
	listFn     func(ctx context.Context, filter types.NoticeFilter) ([]*types.Notice, types.PageInfo, error)
	getFn      func(ctx context.Context, userID, noticeID string) (*types.Notice, error)
	markReadFn func(ctx context.Context, userID, noticeID string) (*types.Notice, error)

	countUnread      int
	countUnreadErr   error
	countUnreadCalls int
}

func (m *mockNoticeService) ListByUser(ctx context.Context, filter types.NoticeFilter) ([]*types.Notice, types.PageInfo, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, types.PageInfo{}, nil
}

func (m *mockNoticeService) GetByUser(ctx context.Context, userID, noticeID string) (*types.Notice, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, noticeID)
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundNotice, "notice not found", nil)
}

func (m *mockNoticeService) MarkRead(ctx context.Context, userID, noticeID string) (*types.Notice, error) {
	if m.markReadFn != nil {
		return m.markReadFn(ctx, userID, noticeID)
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundNotice, "notice not found", nil)
}

func (m *mockNoticeService) CountUnread(ctx context.Context, userID string) (int, error) {
	m.countUnreadCalls++
	return m.countUnread, m.countUnreadErr
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error { return m.err }

// =============================================================================
// Test Helpers
// =============================================================================

func newTestServer(t *testing.T, notices *mockNoticeService) *Server {
	t.Helper()

	cfg := &config.Config{Environment: "local"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := NewServer(cfg, notices, logger)
	require.NoError(t, err)

	s.Authenticator = NewStaticTokenAuthenticator(map[string]string{
		"tok-ada": "u1;ada@example.com",
	})
	s.MountRoutes()
	return s
}

func doRequest(s *Server, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func testNotice(id, userID string) *types.Notice {
	return &types.Notice{
		ID:        id,
		UserID:    userID,
		Subject:   "New notice",
		Body:      "You have a new notice.",
		CreatedAt: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
	}
}

// =============================================================================
// List Notices
// =============================================================================

func TestListNotices(t *testing.T) {
	var capturedFilter types.NoticeFilter
	notices := &mockNoticeService{
		countUnread: 4,
		listFn: func(ctx context.Context, filter types.NoticeFilter) ([]*types.Notice, types.PageInfo, error) {
			capturedFilter = filter
			return []*types.Notice{testNotice("ntc_1", filter.UserID)},
				types.PageInfo{HasMore: true, NextCursor: "2026-03-15T10:00:00Z"}, nil
		},
	}
	s := newTestServer(t, notices)

	rec := doRequest(s, http.MethodGet, "/v1/notices?unread=true&limit=5", "tok-ada")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "u1", capturedFilter.UserID)
	assert.True(t, capturedFilter.UnreadOnly)
	assert.Equal(t, 5, capturedFilter.Limit)

	var resp struct {
		Data []*types.Notice     `json:"data"`
		Meta *types.ResponseMeta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.NotNil(t, resp.Meta)
	require.NotNil(t, resp.Meta.UnreadCount)
	assert.Equal(t, 4, *resp.Meta.UnreadCount)
	require.NotNil(t, resp.Meta.Pagination)
	assert.True(t, resp.Meta.Pagination.HasMore)

	assert.Equal(t, 1, notices.countUnreadCalls, "unread count must be queried exactly once per request")
}

func TestListNoticesInvalidLimit(t *testing.T) {
	s := newTestServer(t, &mockNoticeService{})

	rec := doRequest(s, http.MethodGet, "/v1/notices?limit=banana", "tok-ada")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeResponse(t, rec)
	var detail ErrorDetail
	require.NoError(t, json.Unmarshal(body["error"], &detail))
	assert.Equal(t, "validation_invalid_param", detail.Code)
}

func TestListNoticesCountFailureOmitsMeta(t *testing.T) {
	notices := &mockNoticeService{
		countUnreadErr: errors.New("connection reset"),
		listFn: func(ctx context.Context, filter types.NoticeFilter) ([]*types.Notice, types.PageInfo, error) {
			return nil, types.PageInfo{}, nil
		},
	}
	s := newTestServer(t, notices)

	rec := doRequest(s, http.MethodGet, "/v1/notices", "tok-ada")
	require.Equal(t, http.StatusOK, rec.Code, "a failed count must not fail the listing")

	var resp struct {
		Meta *types.ResponseMeta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	if resp.Meta != nil {
		assert.Nil(t, resp.Meta.UnreadCount)
	}
}

func TestListNoticesStorageError(t *testing.T) {
	notices := &mockNoticeService{
		listFn: func(ctx context.Context, filter types.NoticeFilter) ([]*types.Notice, types.PageInfo, error) {
			return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "query failed", nil)
		},
	}
	s := newTestServer(t, notices)

	rec := doRequest(s, http.MethodGet, "/v1/notices", "tok-ada")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// =============================================================================
// Get / Mark Read
// =============================================================================

func TestGetNoticeMarksRead(t *testing.T) {
	var markedUser, markedNotice string
	notices := &mockNoticeService{
		markReadFn: func(ctx context.Context, userID, noticeID string) (*types.Notice, error) {
			markedUser, markedNotice = userID, noticeID
			n := testNotice(noticeID, userID)
			readAt := n.CreatedAt.Add(time.Hour)
			n.ReadAt = &readAt
			return n, nil
		},
	}
	s := newTestServer(t, notices)

	rec := doRequest(s, http.MethodGet, "/v1/notices/ntc_42", "tok-ada")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "u1", markedUser)
	assert.Equal(t, "ntc_42", markedNotice)

	var resp struct {
		Data *types.Notice `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data)
	assert.NotNil(t, resp.Data.ReadAt)
}

func TestGetNoticeNotFound(t *testing.T) {
	s := newTestServer(t, &mockNoticeService{})

	rec := doRequest(s, http.MethodGet, "/v1/notices/ntc_missing", "tok-ada")
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := decodeResponse(t, rec)
	var detail ErrorDetail
	require.NoError(t, json.Unmarshal(body["error"], &detail))
	assert.Equal(t, string(types.ErrCodeNotFoundNotice), detail.Code)
	assert.NotEmpty(t, detail.RequestID)
}

func TestMarkNoticeRead(t *testing.T) {
	notices := &mockNoticeService{
		markReadFn: func(ctx context.Context, userID, noticeID string) (*types.Notice, error) {
			return testNotice(noticeID, userID), nil
		},
	}
	s := newTestServer(t, notices)

	rec := doRequest(s, http.MethodPost, "/v1/notices/ntc_42/read", "tok-ada")
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// Auth
// =============================================================================

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, &mockNoticeService{})

	rec := doRequest(s, http.MethodGet, "/v1/notices", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	body := decodeResponse(t, rec)
	var detail ErrorDetail
	require.NoError(t, json.Unmarshal(body["error"], &detail))
	assert.Equal(t, string(types.ErrCodeAuthTokenMissing), detail.Code)
}

func TestAuthInvalidToken(t *testing.T) {
	s := newTestServer(t, &mockNoticeService{})

	rec := doRequest(s, http.MethodGet, "/v1/notices", "tok-wrong")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	body := decodeResponse(t, rec)
	var detail ErrorDetail
	require.NoError(t, json.Unmarshal(body["error"], &detail))
	assert.Equal(t, string(types.ErrCodeAuthTokenInvalid), detail.Code)
}

func TestHealthBypassesAuth(t *testing.T) {
	s := newTestServer(t, &mockNoticeService{})

	rec := doRequest(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// Health
// =============================================================================

func TestHealthWithPinger(t *testing.T) {
	s := newTestServer(t, &mockNoticeService{})
	s.Pinger = &mockPinger{}

	rec := doRequest(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"ok"`)
}

func TestHealthDegraded(t *testing.T) {
	s := newTestServer(t, &mockNoticeService{})
	s.Pinger = &mockPinger{err: errors.New("no route to host")}

	rec := doRequest(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"unreachable"`)
}

// =============================================================================
// Request ID
// =============================================================================

func TestRequestIDPropagation(t *testing.T) {
	s := newTestServer(t, &mockNoticeService{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-from-client")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-from-client", rec.Header().Get("X-Request-Id"))

	// Without a client-provided ID, one is generated.
	rec2 := doRequest(s, http.MethodGet, "/health", "")
	assert.NotEmpty(t, rec2.Header().Get("X-Request-Id"))
}
