package services

import "github.com/soaringjerry/pia-workflow/internal/models"

// Identity is an authenticated caller.
type Identity struct {
	UserID int64       `json:"id"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
}

type Action string

const (
	ActionCreateAssessment Action = "create_assessment"
	ActionSubmitScreening  Action = "submit_screening"
	ActionViewScreening    Action = "view_screening"
	ActionUpdateStatus     Action = "update_status"
	ActionDeleteAssessment Action = "delete_assessment"
	ActionOpenThread       Action = "open_thread"
	ActionCommentThread    Action = "comment_thread"
	ActionResolveThread    Action = "resolve_thread"
	ActionViewAudit        Action = "view_audit"
)

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// Err converts a denial into a forbidden error. It returns nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return NewForbiddenError(d.Reason)
}

// Policy is the single place role and ownership rules live. Services ask it
// before every mutation and every restricted read.
type Policy struct{}

// Authorize decides whether caller may perform action on a resource owned by
// resourceOwnerID. Actions that are not resource scoped ignore the owner.
func (Policy) Authorize(action Action, caller Identity, resourceOwnerID int64) Decision {
	isOwner := caller.UserID != 0 && caller.UserID == resourceOwnerID

	switch caller.Role {
	case models.RoleApprover:
		switch action {
		case ActionCreateAssessment, ActionViewScreening, ActionUpdateStatus, ActionDeleteAssessment,
			ActionOpenThread, ActionCommentThread, ActionResolveThread, ActionViewAudit:
			return allow()
		case ActionSubmitScreening:
			return deny("only the assessment owner can submit screening")
		}
	case models.RoleOwner:
		switch action {
		case ActionCreateAssessment:
			return allow()
		case ActionSubmitScreening:
			if isOwner {
				return allow()
			}
			return deny("only the assessment owner can submit screening")
		case ActionViewScreening:
			if isOwner {
				return allow()
			}
			return deny("you can only view your own assessment answers")
		case ActionDeleteAssessment:
			if isOwner {
				return allow()
			}
			return deny("you don't have permission to delete this assessment")
		case ActionCommentThread:
			if isOwner {
				return allow()
			}
			return deny("only participants of the assessment can comment")
		case ActionUpdateStatus:
			return deny("only approvers can update assessment status")
		case ActionOpenThread:
			return deny("only approvers can create threads")
		case ActionResolveThread:
			return deny("only approvers can resolve threads")
		case ActionViewAudit:
			return deny("only approvers can view the audit trail")
		}
	default:
		return deny("unknown role")
	}
	return deny("unknown action")
}
