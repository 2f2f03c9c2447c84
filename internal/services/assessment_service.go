package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/soaringjerry/pia-workflow/internal/models"
)

type AssessmentStore interface {
	InsertAssessment(ctx context.Context, a *models.Assessment) (*models.Assessment, error)
	GetAssessment(ctx context.Context, id int64) (*models.Assessment, error)
	ListAssessments(ctx context.Context) ([]models.AssessmentSummary, error)
	ListAssessmentsByOwner(ctx context.Context, ownerID int64) ([]models.AssessmentSummary, error)
	// ReplaceScreeningAnswers swaps the full answer set and sets status in one transaction.
	ReplaceScreeningAnswers(ctx context.Context, assessmentID int64, answers []models.ScreeningAnswer, status models.AssessmentStatus) error
	ListScreeningAnswers(ctx context.Context, assessmentID int64) ([]models.ScreeningAnswer, error)
	UpdateAssessmentStatus(ctx context.Context, id int64, status models.AssessmentStatus) error
	// DeleteAssessment removes comments, threads, answers and the assessment in one transaction.
	DeleteAssessment(ctx context.Context, id int64) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	ListUsersByRole(ctx context.Context, role models.Role) ([]*models.User, error)
	AddAudit(ctx context.Context, entry models.AuditEntry)
	ListAudit(ctx context.Context, target string) ([]models.AuditEntry, error)
}

type AssessmentService struct {
	store  AssessmentStore
	policy Policy
	locks  *keyedMutex
	now    func() time.Time
}

type CreateAssessmentRequest struct {
	Title          string `json:"title"`
	IsNew          *bool  `json:"is_new"`
	ApproverUserID *int64 `json:"approver_user_id"`
}

func NewAssessmentService(store AssessmentStore) *AssessmentService {
	return &AssessmentService{
		store: store,
		locks: newKeyedMutex(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func assessmentTarget(id int64) string { return "assessment:" + strconv.FormatInt(id, 10) }

func actorOf(caller Identity) string { return "user:" + strconv.FormatInt(caller.UserID, 10) }

func (s *AssessmentService) Create(ctx context.Context, caller Identity, req CreateAssessmentRequest) (*models.Assessment, error) {
	if err := s.policy.Authorize(ActionCreateAssessment, caller, 0).Err(); err != nil {
		return nil, err
	}
	if req.ApproverUserID != nil {
		u, err := s.store.GetUser(ctx, *req.ApproverUserID)
		if err != nil {
			return nil, err
		}
		if u == nil || u.Role != models.RoleApprover {
			return nil, NewInvalidError("approver_user_id must reference an approver")
		}
	}
	isNew := true
	if req.IsNew != nil {
		isNew = *req.IsNew
	}
	created, err := s.store.InsertAssessment(ctx, &models.Assessment{
		Title:          req.Title,
		OwnerUserID:    caller.UserID,
		ApproverUserID: req.ApproverUserID,
		Status:         models.StatusScreening,
		IsNew:          isNew,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return nil, err
	}
	s.store.AddAudit(ctx, models.AuditEntry{Time: s.now(), Actor: actorOf(caller), Action: "assessment.create", Target: assessmentTarget(created.ID)})
	return created, nil
}

// List returns every assessment to approvers and only their own to owners.
func (s *AssessmentService) List(ctx context.Context, caller Identity) ([]models.AssessmentSummary, error) {
	switch caller.Role {
	case models.RoleApprover:
		return s.store.ListAssessments(ctx)
	case models.RoleOwner:
		return s.store.ListAssessmentsByOwner(ctx, caller.UserID)
	}
	return nil, NewForbiddenError("unknown role")
}

func (s *AssessmentService) Get(ctx context.Context, id int64) (*models.Assessment, error) {
	a, err := s.store.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, NewNotFoundError("assessment not found")
	}
	return a, nil
}

// SubmitScreening replaces all stored answers and moves the assessment to the
// status the evaluator picks. An empty answer set is rejected.
func (s *AssessmentService) SubmitScreening(ctx context.Context, id int64, answers []ScreeningResponse, caller Identity) (models.AssessmentStatus, error) {
	if len(answers) == 0 {
		return "", NewInvalidError("answers required")
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	a, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if err := s.policy.Authorize(ActionSubmitScreening, caller, a.OwnerUserID).Err(); err != nil {
		return "", err
	}
	next := EvaluateScreening(answers)
	switch {
	case a.Status == models.StatusRedFlag:
		return "", NewConflictError("assessment has been escalated and can no longer be rescreened")
	case a.Status == models.StatusCompleted && next != models.StatusCompleted:
		// A completed assessment only accepts answers that keep it completed.
		return "", NewConflictError("assessment is completed and cannot be reopened by rescreening")
	}

	now := s.now()
	rows := make([]models.ScreeningAnswer, 0, len(answers))
	for _, item := range answers {
		rows = append(rows, models.ScreeningAnswer{
			AssessmentID: id,
			QuestionText: item.Question,
			Answer:       item.Answer,
			Notes:        item.Notes,
			CreatedAt:    now,
		})
	}
	if err := s.store.ReplaceScreeningAnswers(ctx, id, rows, next); err != nil {
		return "", err
	}
	s.store.AddAudit(ctx, models.AuditEntry{
		Time: now, Actor: actorOf(caller), Action: "screening.submit", Target: assessmentTarget(id),
		Note: fmt.Sprintf("%d answers: %s -> %s", len(rows), a.Status, next),
	})
	return next, nil
}

func (s *AssessmentService) ScreeningAnswers(ctx context.Context, id int64, caller Identity) ([]models.ScreeningAnswer, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(ActionViewScreening, caller, a.OwnerUserID).Err(); err != nil {
		return nil, err
	}
	answers, err := s.store.ListScreeningAnswers(ctx, id)
	if err != nil {
		return nil, err
	}
	if answers == nil {
		answers = []models.ScreeningAnswer{}
	}
	return answers, nil
}

// UpdateStatus is the approver's review decision. Only completed and red_flag
// can be requested, and only from a status awaiting review.
func (s *AssessmentService) UpdateStatus(ctx context.Context, id int64, requested string, caller Identity) (*models.Assessment, error) {
	if err := s.policy.Authorize(ActionUpdateStatus, caller, 0).Err(); err != nil {
		return nil, err
	}
	status := models.AssessmentStatus(requested)
	if status != models.StatusCompleted && status != models.StatusRedFlag {
		return nil, NewInvalidError("invalid status, use 'completed' or 'red_flag'")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == status {
		return a, nil
	}
	if a.Status != models.StatusInDPIA && a.Status != models.StatusAwaitingApproval {
		return nil, NewConflictError(fmt.Sprintf("cannot move assessment from %s to %s", a.Status, status))
	}
	if err := s.store.UpdateAssessmentStatus(ctx, id, status); err != nil {
		return nil, err
	}
	s.store.AddAudit(ctx, models.AuditEntry{
		Time: s.now(), Actor: actorOf(caller), Action: "status.update", Target: assessmentTarget(id),
		Note: string(a.Status) + " -> " + string(status),
	})
	a.Status = status
	return a, nil
}

func (s *AssessmentService) Delete(ctx context.Context, id int64, caller Identity) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.Authorize(ActionDeleteAssessment, caller, a.OwnerUserID).Err(); err != nil {
		return err
	}
	if err := s.store.DeleteAssessment(ctx, id); err != nil {
		return err
	}
	s.store.AddAudit(ctx, models.AuditEntry{Time: s.now(), Actor: actorOf(caller), Action: "assessment.delete", Target: assessmentTarget(id), Note: a.Title})
	return nil
}

func (s *AssessmentService) ListApprovers(ctx context.Context) ([]models.Approver, error) {
	users, err := s.store.ListUsersByRole(ctx, models.RoleApprover)
	if err != nil {
		return nil, err
	}
	out := make([]models.Approver, 0, len(users))
	for _, u := range users {
		out = append(out, models.Approver{ID: u.ID, Email: u.Email})
	}
	return out, nil
}

// AuditTrail lists recorded lifecycle events for one assessment. Entries
// outlive the assessment itself.
func (s *AssessmentService) AuditTrail(ctx context.Context, id int64, caller Identity) ([]models.AuditEntry, error) {
	if err := s.policy.Authorize(ActionViewAudit, caller, 0).Err(); err != nil {
		return nil, err
	}
	entries, err := s.store.ListAudit(ctx, assessmentTarget(id))
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return entries, nil
}
