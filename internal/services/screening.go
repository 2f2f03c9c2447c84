package services

import "github.com/soaringjerry/pia-workflow/internal/models"

// GatingQuestion is matched by exact text. A "no" answer means the system
// holds no personal information and the assessment completes immediately.
const GatingQuestion = "Does the system collect any Personal information from individuals?"

type ScreeningResponse struct {
	Question string `json:"question"`
	Answer   bool   `json:"answer"`
	Notes    string `json:"notes"`
}

// EvaluateScreening maps a submitted questionnaire to the next lifecycle status.
// A false gating answer wins over any other true answer.
func EvaluateScreening(answers []ScreeningResponse) models.AssessmentStatus {
	for _, a := range answers {
		if a.Question == GatingQuestion {
			if !a.Answer {
				return models.StatusCompleted
			}
			break
		}
	}
	for _, a := range answers {
		if a.Answer {
			return models.StatusInDPIA
		}
	}
	return models.StatusAwaitingApproval
}
