package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"noticebox/internal/config"
	"noticebox/internal/types"
)

// NoticeService is the persistence dependency of the API handlers.
// Implemented by db.NoticeRepository.
type NoticeService interface {
	ListByUser(ctx context.Context, filter types.NoticeFilter) ([]*types.Notice, types.PageInfo, error)
	GetByUser(ctx context.Context, userID, noticeID string) (*types.Notice, error)
	MarkRead(ctx context.Context, userID, noticeID string) (*types.Notice, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

// Pinger reports backing-store health. Implemented by pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server encapsulates the API dependencies, allowing injection during
// testing and distinct wiring per environment.
type Server struct {
	Config        *config.Config
	Notices       NoticeService
	Logger        *slog.Logger
	Authenticator Authenticator
	Pinger        Pinger

	router *chi.Mux
}

// NewServer initializes dependencies and prepares the router. The caller
// mounts routes afterwards via MountRoutes; the separation lets tests
// customize registration.
func NewServer(cfg *config.Config, notices NoticeService, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if notices == nil {
		return nil, fmt.Errorf("notice service must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:  cfg,
		Notices: notices,
		Logger:  logger,
		router:  chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// MountRoutes registers the global middleware chain and all endpoints.
//
// Middleware order matters: Recoverer catches everything downstream,
// RequestID must precede logging so completion logs carry the ID, and the
// unread-count accessor depends on the Actor installed by auth.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger))

	s.router.Get("/health", s.HandleHealth)

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.AuthMiddleware)
		r.Use(s.UnreadCountMiddleware)

		r.Get("/notices", s.HandleListNotices)
		r.Get("/notices/{noticeID}", s.HandleGetNotice)
		r.Post("/notices/{noticeID}/read", s.HandleMarkNoticeRead)
	})
}

// HandleHealth reports service liveness, including a backing-store ping when
// a Pinger is wired.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if s.Pinger != nil {
		if err := s.Pinger.Ping(r.Context()); err != nil {
			s.Logger.Error("health check database ping failed", "error", err.Error())
			status["status"] = "degraded"
			status["database"] = "unreachable"
			JSON(w, r, http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	JSON(w, r, http.StatusOK, status)
}
