package api

import (
	"net/http"

	"github.com/soaringjerry/pia-workflow/internal/services"
)

type openThreadRequest struct {
	AssessmentID int64  `json:"assessment_id"`
	QuestionText string `json:"question_text"`
}

type commentRequest struct {
	Body string `json:"body"`
}

// POST /api/threads
func (rt *Router) handleOpenThread(w http.ResponseWriter, r *http.Request) {
	var req openThreadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	t, err := rt.threads.Open(r.Context(), req.AssessmentID, req.QuestionText, caller(r))
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// GET /api/threads?assessment_id=N
func (rt *Router) handleListThreads(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("assessment_id")
	if raw == "" {
		rt.writeServiceError(w, r, services.NewInvalidError("assessment_id required"))
		return
	}
	id, err := parseID(raw, "assessment_id")
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	out, err := rt.threads.List(r.Context(), id)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/threads/{id}/comments
func (rt *Router) handleAddComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	c, err := rt.threads.AddComment(r.Context(), id, req.Body, caller(r))
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// GET /api/threads/{id}/comments
func (rt *Router) handleListComments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	out, err := rt.threads.Comments(r.Context(), id)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/threads/{id}/resolve
func (rt *Router) handleResolveThread(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	t, err := rt.threads.Resolve(r.Context(), id, caller(r))
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
