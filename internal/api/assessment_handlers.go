package api

import (
	"net/http"

	"github.com/soaringjerry/pia-workflow/internal/services"
)

type screeningRequest struct {
	Answers []services.ScreeningResponse `json:"answers"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// GET /api/approvers
func (rt *Router) handleApprovers(w http.ResponseWriter, r *http.Request) {
	out, err := rt.assessments.ListApprovers(r.Context())
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/assessments
func (rt *Router) handleCreateAssessment(w http.ResponseWriter, r *http.Request) {
	var req services.CreateAssessmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	a, err := rt.assessments.Create(r.Context(), caller(r), req)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// GET /api/assessments
func (rt *Router) handleListAssessments(w http.ResponseWriter, r *http.Request) {
	out, err := rt.assessments.List(r.Context(), caller(r))
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/assessments/{id}
func (rt *Router) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	a, err := rt.assessments.Get(r.Context(), id)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DELETE /api/assessments/{id}
func (rt *Router) handleDeleteAssessment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	if err := rt.assessments.Delete(r.Context(), id, caller(r)); err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

// POST /api/assessments/{id}/screening
func (rt *Router) handleSubmitScreening(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	var req screeningRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	next, err := rt.assessments.SubmitScreening(r.Context(), id, req.Answers, caller(r))
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "next_status": next})
}

// GET /api/assessments/{id}/screening
func (rt *Router) handleGetScreening(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	out, err := rt.assessments.ScreeningAnswers(r.Context(), id, caller(r))
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/assessments/{id}/status
func (rt *Router) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	a, err := rt.assessments.UpdateStatus(r.Context(), id, req.Status, caller(r))
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GET /api/assessments/{id}/audit
func (rt *Router) handleAudit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	out, err := rt.assessments.AuditTrail(r.Context(), id, caller(r))
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
