package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/soaringjerry/pia-workflow/internal/models"
)

// stubStore is an in-memory implementation of every store interface the
// services depend on.
type stubStore struct {
	mu          sync.Mutex
	nextID      int64
	users       map[int64]*models.User
	assessments map[int64]*models.Assessment
	answers     map[int64][]models.ScreeningAnswer
	threads     map[int64]*models.Thread
	comments    []models.Comment
	audit       []models.AuditEntry
	failReplace bool
}

func newStubStore() *stubStore {
	return &stubStore{
		users:       map[int64]*models.User{},
		assessments: map[int64]*models.Assessment{},
		answers:     map[int64][]models.ScreeningAnswer{},
		threads:     map[int64]*models.Thread{},
	}
}

func (s *stubStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *stubStore) addUser(email string, role models.Role) Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{ID: s.id(), Email: email, Role: role}
	s.users[u.ID] = u
	return Identity{UserID: u.ID, Email: email, Role: role}
}

func (s *stubStore) emailOf(id int64) string {
	if u := s.users[id]; u != nil {
		return u.Email
	}
	return ""
}

func (s *stubStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubStore) GetUser(_ context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) InsertUser(_ context.Context, u *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	cp.ID = s.id()
	s.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *stubStore) ListUsersByRole(_ context.Context, role models.Role) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.User
	for _, u := range s.users {
		if u.Role == role {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubStore) InsertAssessment(_ context.Context, a *models.Assessment) (*models.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	cp.ID = s.id()
	s.assessments[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *stubStore) GetAssessment(_ context.Context, id int64) (*models.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.assessments[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) summaries(keep func(*models.Assessment) bool) []models.AssessmentSummary {
	out := []models.AssessmentSummary{}
	for _, a := range s.assessments {
		if !keep(a) {
			continue
		}
		sum := models.AssessmentSummary{Assessment: *a, OwnerEmail: s.emailOf(a.OwnerUserID)}
		if a.ApproverUserID != nil {
			sum.ApproverEmail = s.emailOf(*a.ApproverUserID)
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *stubStore) ListAssessments(_ context.Context) ([]models.AssessmentSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaries(func(*models.Assessment) bool { return true }), nil
}

func (s *stubStore) ListAssessmentsByOwner(_ context.Context, ownerID int64) ([]models.AssessmentSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaries(func(a *models.Assessment) bool { return a.OwnerUserID == ownerID }), nil
}

func (s *stubStore) ReplaceScreeningAnswers(_ context.Context, id int64, answers []models.ScreeningAnswer, status models.AssessmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReplace {
		return errors.New("replace failed")
	}
	a, ok := s.assessments[id]
	if !ok {
		return NewNotFoundError("assessment not found")
	}
	rows := make([]models.ScreeningAnswer, 0, len(answers))
	for _, ans := range answers {
		ans.ID = s.id()
		rows = append(rows, ans)
	}
	s.answers[id] = rows
	a.Status = status
	return nil
}

func (s *stubStore) ListScreeningAnswers(_ context.Context, id int64) ([]models.ScreeningAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ScreeningAnswer(nil), s.answers[id]...), nil
}

func (s *stubStore) UpdateAssessmentStatus(_ context.Context, id int64, status models.AssessmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assessments[id]
	if !ok {
		return NewNotFoundError("assessment not found")
	}
	a.Status = status
	return nil
}

func (s *stubStore) DeleteAssessment(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tid, t := range s.threads {
		if t.AssessmentID != id {
			continue
		}
		kept := s.comments[:0]
		for _, c := range s.comments {
			if c.ThreadID != tid {
				kept = append(kept, c)
			}
		}
		s.comments = kept
		delete(s.threads, tid)
	}
	delete(s.answers, id)
	delete(s.assessments, id)
	return nil
}

func (s *stubStore) AddAudit(_ context.Context, e models.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
}

func (s *stubStore) ListAudit(_ context.Context, target string) ([]models.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AuditEntry
	for _, e := range s.audit {
		if e.Target == target {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubStore) InsertThread(_ context.Context, t *models.Thread) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	cp.ID = s.id()
	s.threads[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *stubStore) GetThread(_ context.Context, id int64) (*models.ThreadView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, nil
	}
	return &models.ThreadView{Thread: *t, OpenerEmail: s.emailOf(t.OpenedBy)}, nil
}

func (s *stubStore) ListThreads(_ context.Context, assessmentID int64) ([]models.ThreadView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ThreadView
	for _, t := range s.threads {
		if t.AssessmentID == assessmentID {
			out = append(out, models.ThreadView{Thread: *t, OpenerEmail: s.emailOf(t.OpenedBy)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubStore) SetThreadStatus(_ context.Context, id int64, status models.ThreadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return NewNotFoundError("thread not found")
	}
	t.Status = status
	return nil
}

func (s *stubStore) InsertComment(_ context.Context, c *models.Comment) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	cp.ID = s.id()
	s.comments = append(s.comments, cp)
	out := cp
	return &out, nil
}

func (s *stubStore) ListComments(_ context.Context, threadID int64) ([]models.CommentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CommentView
	for _, c := range s.comments {
		if c.ThreadID == threadID {
			out = append(out, models.CommentView{Comment: c, AuthorEmail: s.emailOf(c.AuthorID)})
		}
	}
	return out, nil
}

var (
	_ AssessmentStore = (*stubStore)(nil)
	_ ThreadStore     = (*stubStore)(nil)
	_ AuthStore       = (*stubStore)(nil)
)
