package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/soaringjerry/pia-workflow/internal/models"
	"github.com/soaringjerry/pia-workflow/internal/services"
)

type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(db *sql.DB, logger *slog.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db, logger: logger.With("component", "sqlite_store")}, nil
}

func (s *SQLiteStore) logErr(op string, err error) {
	if err != nil {
		s.logger.Error("sqlite store error", "op", op, "error", err)
	}
}

// withTx runs fn inside a transaction and commits only if fn succeeds.
func (s *SQLiteStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
				s.logErr(op+" rollback", rerr)
			}
			return
		}
		if err = tx.Commit(); err != nil {
			err = fmt.Errorf("%s: commit: %w", op, err)
		}
	}()
	return fn(tx)
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func int64ToBool(v int64) bool { return v != 0 }

func toNullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func fromNullInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// --- Users ---

const userColumns = `id, email, password_hash, role, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	var role, created string
	if err := row.Scan(&u.ID, &u.Email, &u.PassHash, &role, &created); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.CreatedAt = parseTime(created)
	return &u, nil
}

func (s *SQLiteStore) InsertUser(ctx context.Context, u *models.User) (*models.User, error) {
	if u == nil {
		return nil, services.NewInvalidError("user required")
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO users (email, password_hash, role, created_at) VALUES (?, ?, ?, ?)`,
		strings.TrimSpace(u.Email), u.PassHash, string(u.Role), formatTime(u.CreatedAt))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return nil, services.NewConflictError("email taken")
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert user: last id: %w", err)
	}
	out := *u
	out.ID = id
	return &out, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) ListUsersByRole(ctx context.Context, role models.Role) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE role = ? ORDER BY email ASC`, string(role))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	out := []*models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list users: scan: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// --- Assessments ---

const assessmentColumns = `a.id, a.title, a.owner_user_id, a.approver_user_id, a.status, a.is_new, a.created_at`

type assessmentRow struct {
	a        models.Assessment
	approver sql.NullInt64
	status   string
	isNew    int64
	created  string
}

func (r *assessmentRow) targets() []any {
	return []any{&r.a.ID, &r.a.Title, &r.a.OwnerUserID, &r.approver, &r.status, &r.isNew, &r.created}
}

func (r *assessmentRow) assessment() (models.Assessment, error) {
	out := r.a
	out.ApproverUserID = fromNullInt(r.approver)
	out.Status = models.AssessmentStatus(r.status)
	if !out.Status.Valid() {
		return models.Assessment{}, fmt.Errorf("assessment %d: unknown status %q", out.ID, r.status)
	}
	out.IsNew = int64ToBool(r.isNew)
	out.CreatedAt = parseTime(r.created)
	return out, nil
}

func isForeignKeyViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "foreign key")
}

func (s *SQLiteStore) InsertAssessment(ctx context.Context, a *models.Assessment) (*models.Assessment, error) {
	if a == nil {
		return nil, services.NewInvalidError("assessment required")
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO assessments (title, owner_user_id, approver_user_id, status, is_new, created_at)
      VALUES (?, ?, ?, ?, ?, ?)`,
		a.Title, a.OwnerUserID, toNullInt(a.ApproverUserID), string(a.Status), boolToInt64(a.IsNew), formatTime(a.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert assessment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert assessment: last id: %w", err)
	}
	out := *a
	out.ID = id
	return &out, nil
}

func (s *SQLiteStore) GetAssessment(ctx context.Context, id int64) (*models.Assessment, error) {
	var r assessmentRow
	err := s.db.QueryRowContext(ctx, `SELECT `+assessmentColumns+` FROM assessments a WHERE a.id = ?`, id).Scan(r.targets()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	a, err := r.assessment()
	if err != nil {
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	return &a, nil
}

func (s *SQLiteStore) listSummaries(ctx context.Context, where string, args ...any) ([]models.AssessmentSummary, error) {
	q := `SELECT ` + assessmentColumns + `, COALESCE(o.email, ''), COALESCE(ap.email, '')
      FROM assessments a
      LEFT JOIN users o ON o.id = a.owner_user_id
      LEFT JOIN users ap ON ap.id = a.approver_user_id` + where + ` ORDER BY a.id ASC`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()
	out := []models.AssessmentSummary{}
	for rows.Next() {
		var r assessmentRow
		var ownerEmail, approverEmail string
		if err := rows.Scan(append(r.targets(), &ownerEmail, &approverEmail)...); err != nil {
			return nil, fmt.Errorf("list assessments: scan: %w", err)
		}
		a, err := r.assessment()
		if err != nil {
			return nil, fmt.Errorf("list assessments: %w", err)
		}
		out = append(out, models.AssessmentSummary{Assessment: a, OwnerEmail: ownerEmail, ApproverEmail: approverEmail})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListAssessments(ctx context.Context) ([]models.AssessmentSummary, error) {
	return s.listSummaries(ctx, "")
}

func (s *SQLiteStore) ListAssessmentsByOwner(ctx context.Context, ownerID int64) ([]models.AssessmentSummary, error) {
	return s.listSummaries(ctx, " WHERE a.owner_user_id = ?", ownerID)
}

func (s *SQLiteStore) UpdateAssessmentStatus(ctx context.Context, id int64, status models.AssessmentStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE assessments SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update assessment status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.NewNotFoundError("assessment not found")
	}
	return nil
}

// ReplaceScreeningAnswers deletes the previous answer set, inserts the new one
// and records the resulting status. Readers never observe the gap.
func (s *SQLiteStore) ReplaceScreeningAnswers(ctx context.Context, assessmentID int64, answers []models.ScreeningAnswer, status models.AssessmentStatus) error {
	return s.withTx(ctx, "replace screening answers", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE assessments SET status = ? WHERE id = ?`, string(status), assessmentID)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return services.NewNotFoundError("assessment not found")
		}
		res, err = tx.ExecContext(ctx, `DELETE FROM screening_answers WHERE assessment_id = ?`, assessmentID)
		if err != nil {
			return fmt.Errorf("delete answers: %w", err)
		}
		revised, _ := res.RowsAffected()
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO screening_answers (assessment_id, question_text, answer, notes, created_at, updated_at)
          VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert answer: %w", err)
		}
		defer stmt.Close()
		for _, a := range answers {
			created := formatTime(a.CreatedAt)
			var updated sql.NullString
			if revised > 0 {
				updated = sql.NullString{String: created, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, assessmentID, a.QuestionText, boolToInt64(a.Answer), a.Notes, created, updated); err != nil {
				return fmt.Errorf("insert answer: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListScreeningAnswers(ctx context.Context, assessmentID int64) ([]models.ScreeningAnswer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, assessment_id, question_text, answer, notes, created_at, updated_at
      FROM screening_answers WHERE assessment_id = ? ORDER BY id ASC`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()
	out := []models.ScreeningAnswer{}
	for rows.Next() {
		var a models.ScreeningAnswer
		var answer int64
		var created string
		var updated sql.NullString
		if err := rows.Scan(&a.ID, &a.AssessmentID, &a.QuestionText, &answer, &a.Notes, &created, &updated); err != nil {
			return nil, fmt.Errorf("list answers: scan: %w", err)
		}
		a.Answer = int64ToBool(answer)
		a.CreatedAt = parseTime(created)
		if updated.Valid {
			t := parseTime(updated.String)
			a.UpdatedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAssessment removes the assessment with its comments, threads and
// answers. Either all of them go or none do.
func (s *SQLiteStore) DeleteAssessment(ctx context.Context, id int64) error {
	return s.withTx(ctx, "delete assessment", func(tx *sql.Tx) error {
		steps := []struct {
			name string
			stmt string
		}{
			{"comments", `DELETE FROM thread_comments WHERE thread_id IN (SELECT id FROM question_threads WHERE assessment_id = ?)`},
			{"threads", `DELETE FROM question_threads WHERE assessment_id = ?`},
			{"answers", `DELETE FROM screening_answers WHERE assessment_id = ?`},
		}
		for _, step := range steps {
			if _, err := tx.ExecContext(ctx, step.stmt, id); err != nil {
				return fmt.Errorf("delete %s: %w", step.name, err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM assessments WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete assessment row: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return services.NewNotFoundError("assessment not found")
		}
		return nil
	})
}

// --- Threads ---

const threadColumns = `t.id, t.assessment_id, t.question_text, t.opened_by, t.status, t.created_at, COALESCE(u.email, '')`

func scanThread(row interface{ Scan(...any) error }) (*models.ThreadView, error) {
	var t models.ThreadView
	var status, created string
	if err := row.Scan(&t.ID, &t.AssessmentID, &t.QuestionText, &t.OpenedBy, &status, &created, &t.OpenerEmail); err != nil {
		return nil, err
	}
	t.Status = models.ThreadStatus(status)
	t.CreatedAt = parseTime(created)
	return &t, nil
}

func (s *SQLiteStore) InsertThread(ctx context.Context, t *models.Thread) (*models.Thread, error) {
	if t == nil {
		return nil, services.NewInvalidError("thread required")
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO question_threads (assessment_id, question_text, opened_by, status, created_at)
      VALUES (?, ?, ?, ?, ?)`, t.AssessmentID, t.QuestionText, t.OpenedBy, string(t.Status), formatTime(t.CreatedAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, services.NewNotFoundError("assessment not found")
		}
		return nil, fmt.Errorf("insert thread: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert thread: last id: %w", err)
	}
	out := *t
	out.ID = id
	return &out, nil
}

func (s *SQLiteStore) GetThread(ctx context.Context, id int64) (*models.ThreadView, error) {
	t, err := scanThread(s.db.QueryRowContext(ctx, `SELECT `+threadColumns+`
      FROM question_threads t LEFT JOIN users u ON u.id = t.opened_by WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) ListThreads(ctx context.Context, assessmentID int64) ([]models.ThreadView, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+threadColumns+`
      FROM question_threads t LEFT JOIN users u ON u.id = t.opened_by
      WHERE t.assessment_id = ? ORDER BY t.id ASC`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()
	out := []models.ThreadView{}
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("list threads: scan: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetThreadStatus(ctx context.Context, id int64, status models.ThreadStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE question_threads SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("set thread status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.NewNotFoundError("thread not found")
	}
	return nil
}

func (s *SQLiteStore) InsertComment(ctx context.Context, c *models.Comment) (*models.Comment, error) {
	if c == nil {
		return nil, services.NewInvalidError("comment required")
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO thread_comments (thread_id, author_id, body, created_at) VALUES (?, ?, ?, ?)`,
		c.ThreadID, c.AuthorID, c.Body, formatTime(c.CreatedAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, services.NewNotFoundError("thread not found")
		}
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert comment: last id: %w", err)
	}
	out := *c
	out.ID = id
	return &out, nil
}

func (s *SQLiteStore) ListComments(ctx context.Context, threadID int64) ([]models.CommentView, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT c.id, c.thread_id, c.author_id, c.body, c.created_at, COALESCE(u.email, '')
      FROM thread_comments c LEFT JOIN users u ON u.id = c.author_id
      WHERE c.thread_id = ? ORDER BY c.id ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()
	out := []models.CommentView{}
	for rows.Next() {
		var c models.CommentView
		var created string
		if err := rows.Scan(&c.ID, &c.ThreadID, &c.AuthorID, &c.Body, &created, &c.AuthorEmail); err != nil {
			return nil, fmt.Errorf("list comments: scan: %w", err)
		}
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Audit ---

// AddAudit records an entry. Failures are logged, never surfaced to the
// operation that triggered them.
func (s *SQLiteStore) AddAudit(ctx context.Context, e models.AuditEntry) {
	_, err := s.db.ExecContext(ctx, `INSERT INTO audit_log (time, actor, action, target, note) VALUES (?, ?, ?, ?, ?)`,
		formatTime(e.Time), e.Actor, e.Action, e.Target, e.Note)
	s.logErr("AddAudit", err)
}

func (s *SQLiteStore) ListAudit(ctx context.Context, target string) ([]models.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT time, actor, action, target, note FROM audit_log WHERE target = ? ORDER BY id ASC`, target)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()
	out := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		var ts string
		if err := rows.Scan(&ts, &e.Actor, &e.Action, &e.Target, &e.Note); err != nil {
			return nil, fmt.Errorf("list audit: scan: %w", err)
		}
		e.Time = parseTime(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

var (
	_ services.AssessmentStore = (*SQLiteStore)(nil)
	_ services.ThreadStore     = (*SQLiteStore)(nil)
	_ services.AuthStore       = (*SQLiteStore)(nil)
)
