package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"noticebox/internal/notify"
	"noticebox/internal/types"
)

// errCodeValidationInvalidParam covers malformed query parameters. Local to
// the API layer; the validation_ prefix maps it to a 400.
const errCodeValidationInvalidParam types.ErrorCode = "validation_invalid_param"

// HandleListNotices serves GET /v1/notices.
//
// Query parameters:
//   - unread=true  only unread notices
//   - cursor       opaque pagination cursor from a previous response
//   - limit        page size (server-side default and cap apply)
//
// The response meta carries the caller's unread count and the pagination
// state for the next page.
func (s *Server) HandleListNotices(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	filter := types.NoticeFilter{
		UserID:     actor.UserID,
		UnreadOnly: r.URL.Query().Get("unread") == "true",
		Cursor:     r.URL.Query().Get("cursor"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, convErr := strconv.Atoi(raw)
		if convErr != nil || limit < 1 {
			Error(w, r, types.NewAppError(errCodeValidationInvalidParam,
				"limit must be a positive integer", convErr))
			return
		}
		filter.Limit = limit
	}

	notices, page, err := s.Notices.ListByUser(r.Context(), filter)
	if err != nil {
		Error(w, r, err)
		return
	}

	meta := s.responseMeta(r, &page)
	JSON(w, r, http.StatusOK, APIResponse{Data: notices, Meta: meta})
}

// HandleGetNotice serves GET /v1/notices/{noticeID}. Viewing a notice marks
// it read: the first read stamps the timestamp, later reads leave it
// untouched.
func (s *Server) HandleGetNotice(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	notice, err := s.Notices.MarkRead(r.Context(), actor.UserID, chi.URLParam(r, "noticeID"))
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: notice, Meta: s.responseMeta(r, nil)})
}

// HandleMarkNoticeRead serves POST /v1/notices/{noticeID}/read, the explicit
// mark-read operation for clients that prefetch bodies without displaying
// them.
func (s *Server) HandleMarkNoticeRead(w http.ResponseWriter, r *http.Request) {
	actor, err := requireActor(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	notice, err := s.Notices.MarkRead(r.Context(), actor.UserID, chi.URLParam(r, "noticeID"))
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: notice})
}

// requireActor returns the authenticated Actor or an auth error. Handlers
// behind AuthMiddleware should never hit the error path; it guards routes
// mounted without auth in tests or embeddings.
func requireActor(r *http.Request) (types.Actor, error) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil)
	}
	return actor, nil
}

// responseMeta assembles the response meta block: the unread count from the
// request's accessor (queried at most once per request) and optional
// pagination state. A failed count query is logged and omitted rather than
// failing the response.
func (s *Server) responseMeta(r *http.Request, page *types.PageInfo) *types.ResponseMeta {
	meta := &types.ResponseMeta{Pagination: page}

	if accessor := notify.UnreadCountFromContext(r.Context()); accessor != nil {
		count, err := accessor.Value(r.Context())
		if err != nil {
			s.Logger.Warn("unread count unavailable",
				"request_id", types.GetRequestID(r.Context()),
				"error", err.Error(),
			)
		} else {
			meta.UnreadCount = &count
		}
	}

	if meta.UnreadCount == nil && meta.Pagination == nil {
		return nil
	}
	return meta
}
