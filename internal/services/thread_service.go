package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/soaringjerry/pia-workflow/internal/models"
)

type ThreadStore interface {
	GetAssessment(ctx context.Context, id int64) (*models.Assessment, error)
	InsertThread(ctx context.Context, t *models.Thread) (*models.Thread, error)
	GetThread(ctx context.Context, id int64) (*models.ThreadView, error)
	ListThreads(ctx context.Context, assessmentID int64) ([]models.ThreadView, error)
	SetThreadStatus(ctx context.Context, id int64, status models.ThreadStatus) error
	InsertComment(ctx context.Context, c *models.Comment) (*models.Comment, error)
	ListComments(ctx context.Context, threadID int64) ([]models.CommentView, error)
	AddAudit(ctx context.Context, entry models.AuditEntry)
}

// ThreadService manages clarification threads and their comments.
type ThreadService struct {
	store  ThreadStore
	policy Policy
	now    func() time.Time
}

func NewThreadService(store ThreadStore) *ThreadService {
	return &ThreadService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *ThreadService) Open(ctx context.Context, assessmentID int64, question string, caller Identity) (*models.Thread, error) {
	if err := s.policy.Authorize(ActionOpenThread, caller, 0).Err(); err != nil {
		return nil, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, NewInvalidError("question_text required")
	}
	a, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, NewNotFoundError("assessment not found")
	}
	t, err := s.store.InsertThread(ctx, &models.Thread{
		AssessmentID: assessmentID,
		QuestionText: question,
		OpenedBy:     caller.UserID,
		Status:       models.ThreadOpen,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return nil, err
	}
	s.store.AddAudit(ctx, models.AuditEntry{Time: s.now(), Actor: actorOf(caller), Action: "thread.open", Target: assessmentTarget(assessmentID), Note: "thread:" + strconv.FormatInt(t.ID, 10)})
	return t, nil
}

func (s *ThreadService) List(ctx context.Context, assessmentID int64) ([]models.ThreadView, error) {
	threads, err := s.store.ListThreads(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if threads == nil {
		threads = []models.ThreadView{}
	}
	return threads, nil
}

func (s *ThreadService) getThread(ctx context.Context, id int64) (*models.ThreadView, error) {
	t, err := s.store.GetThread(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, NewNotFoundError("thread not found")
	}
	return t, nil
}

// AddComment appends a comment. Approvers and the owner of the thread's
// assessment may comment.
func (s *ThreadService) AddComment(ctx context.Context, threadID int64, body string, caller Identity) (*models.Comment, error) {
	t, err := s.getThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	var ownerID int64
	a, err := s.store.GetAssessment(ctx, t.AssessmentID)
	if err != nil {
		return nil, err
	}
	if a != nil {
		ownerID = a.OwnerUserID
	}
	if err := s.policy.Authorize(ActionCommentThread, caller, ownerID).Err(); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, NewInvalidError("body required")
	}
	return s.store.InsertComment(ctx, &models.Comment{
		ThreadID:  threadID,
		AuthorID:  caller.UserID,
		Body:      body,
		CreatedAt: s.now(),
	})
}

func (s *ThreadService) Comments(ctx context.Context, threadID int64) ([]models.CommentView, error) {
	comments, err := s.store.ListComments(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []models.CommentView{}
	}
	return comments, nil
}

// Resolve closes a thread. There is no way back to open; resolving an already
// resolved thread succeeds without changing anything.
func (s *ThreadService) Resolve(ctx context.Context, threadID int64, caller Identity) (*models.ThreadView, error) {
	if err := s.policy.Authorize(ActionResolveThread, caller, 0).Err(); err != nil {
		return nil, err
	}
	t, err := s.getThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if t.Status == models.ThreadResolved {
		return t, nil
	}
	if err := s.store.SetThreadStatus(ctx, threadID, models.ThreadResolved); err != nil {
		return nil, err
	}
	s.store.AddAudit(ctx, models.AuditEntry{Time: s.now(), Actor: actorOf(caller), Action: "thread.resolve", Target: assessmentTarget(t.AssessmentID), Note: "thread:" + strconv.FormatInt(threadID, 10)})
	t.Status = models.ThreadResolved
	return t, nil
}
