package models

import "time"

// Role is the only axis access decisions are made on. It is fixed at registration.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleApprover Role = "approver"
)

// ParseRole returns the role named by s and whether it is a known role.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleOwner:
		return RoleOwner, true
	case RoleApprover:
		return RoleApprover, true
	}
	return "", false
}

// AssessmentStatus is the lifecycle state of an assessment.
type AssessmentStatus string

const (
	StatusScreening        AssessmentStatus = "screening"
	StatusInDPIA           AssessmentStatus = "in_dpia"
	StatusAwaitingApproval AssessmentStatus = "awaiting_approval"
	StatusApproved         AssessmentStatus = "approved"
	StatusChangesRequested AssessmentStatus = "changes_requested"
	StatusCompleted        AssessmentStatus = "completed"
	StatusRedFlag          AssessmentStatus = "red_flag" // taken over by the internal team
)

// Valid reports whether s is one of the declared statuses.
func (s AssessmentStatus) Valid() bool {
	switch s {
	case StatusScreening, StatusInDPIA, StatusAwaitingApproval, StatusApproved,
		StatusChangesRequested, StatusCompleted, StatusRedFlag:
		return true
	}
	return false
}

type ThreadStatus string

const (
	ThreadOpen     ThreadStatus = "open"
	ThreadResolved ThreadStatus = "resolved"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	PassHash  []byte    `json:"-"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Assessment is a single privacy impact assessment. OwnerUserID never changes
// after creation.
type Assessment struct {
	ID             int64            `json:"id"`
	Title          string           `json:"title"`
	OwnerUserID    int64            `json:"owner_user_id"`
	ApproverUserID *int64           `json:"approver_user_id"`
	Status         AssessmentStatus `json:"status"`
	IsNew          bool             `json:"is_new"`
	CreatedAt      time.Time        `json:"created_at"`
}

// AssessmentSummary is an assessment joined with its participants' emails.
type AssessmentSummary struct {
	Assessment
	OwnerEmail    string `json:"owner_email"`
	ApproverEmail string `json:"approver_email,omitempty"`
}

type ScreeningAnswer struct {
	ID           int64      `json:"id"`
	AssessmentID int64      `json:"assessment_id"`
	QuestionText string     `json:"question"`
	Answer       bool       `json:"answer"`
	Notes        string     `json:"notes"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// Thread is a clarification question an approver raised against an assessment.
type Thread struct {
	ID           int64        `json:"id"`
	AssessmentID int64        `json:"assessment_id"`
	QuestionText string       `json:"question_text"`
	OpenedBy     int64        `json:"opened_by"`
	Status       ThreadStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
}

type ThreadView struct {
	Thread
	OpenerEmail string `json:"opener_email"`
}

type Comment struct {
	ID        int64     `json:"id"`
	ThreadID  int64     `json:"thread_id"`
	AuthorID  int64     `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type CommentView struct {
	Comment
	AuthorEmail string `json:"author_email"`
}

// Approver is a directory entry used when assigning an assessment.
type Approver struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type AuditEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Note   string    `json:"note,omitempty"`
}
