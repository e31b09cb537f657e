package fiscal

import "strings"

// Action is a workflow operation recorded in the audit trail.
type Action string

const (
	ActionConfirm Action = "CONFIRMAR"
	ActionReview  Action = "REVISAR"
)

// Transition describes which statuses an action may start from and the
// status it leaves the document in.
type Transition struct {
	Action Action
	From   []Status
	To     Status
}

var transitions = map[Action]Transition{
	ActionConfirm: {
		Action: ActionConfirm,
		From:   []Status{StatusPending, StatusReview},
		To:     StatusProvisioned,
	},
	ActionReview: {
		Action: ActionReview,
		From:   []Status{StatusPending, StatusProvisioned, StatusProcessed},
		To:     StatusReview,
	},
}

// Allows reports whether the transition may start from current.
func (t Transition) Allows(current Status) bool {
	for _, s := range t.From {
		if s == current {
			return true
		}
	}
	return false
}

// NextStatus applies action to a document in status current. It returns
// an InvalidTransitionError (with DocumentID left zero) when the action is
// not allowed from current.
func NextStatus(action Action, current Status) (Status, error) {
	t, ok := transitions[action]
	if !ok || !t.Allows(current) {
		return "", &InvalidTransitionError{Action: action, Current: current}
	}
	return t.To, nil
}

// ValidateComment rejects blank workflow comments.
func ValidateComment(comment string) error {
	if strings.TrimSpace(comment) == "" {
		return &ValidationError{Field: "comentarios", Message: "comment is required"}
	}
	return nil
}
