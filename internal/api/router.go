package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/soaringjerry/pia-workflow/internal/middleware"
	"github.com/soaringjerry/pia-workflow/internal/services"
)

type Router struct {
	auth        *services.AuthService
	assessments *services.AssessmentService
	threads     *services.ThreadService
	logger      *slog.Logger
}

func NewRouter(auth *services.AuthService, assessments *services.AssessmentService, threads *services.ThreadService, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{auth: auth, assessments: assessments, threads: threads, logger: logger}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/register", rt.handleRegister)
	mux.HandleFunc("POST /api/auth/login", rt.handleLogin)

	protected := middleware.RequireAuth(rt.auth, rt.rejectUnauthorized)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, protected(h))
	}

	handle("GET /api/auth/me", rt.handleMe)
	handle("GET /api/approvers", rt.handleApprovers)

	handle("POST /api/assessments", rt.handleCreateAssessment)
	handle("GET /api/assessments", rt.handleListAssessments)
	handle("GET /api/assessments/{id}", rt.handleGetAssessment)
	handle("DELETE /api/assessments/{id}", rt.handleDeleteAssessment)
	handle("POST /api/assessments/{id}/screening", rt.handleSubmitScreening)
	handle("GET /api/assessments/{id}/screening", rt.handleGetScreening)
	handle("POST /api/assessments/{id}/status", rt.handleUpdateStatus)
	handle("GET /api/assessments/{id}/audit", rt.handleAudit)

	handle("POST /api/threads", rt.handleOpenThread)
	handle("GET /api/threads", rt.handleListThreads)
	handle("POST /api/threads/{id}/comments", rt.handleAddComment)
	handle("GET /api/threads/{id}/comments", rt.handleListComments)
	handle("POST /api/threads/{id}/resolve", rt.handleResolveThread)
}

func (rt *Router) rejectUnauthorized(w http.ResponseWriter, r *http.Request, err error) {
	if _, ok := services.AsServiceError(err); !ok {
		rt.logger.Error("authentication failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "internal")
		return
	}
	rt.writeServiceError(w, r, err)
}
