package onboarding

import (
	"context"

	"megabot.app/onboarding/internal/model"
)

// Interpreter reads a member message semantically. Its output is advisory:
// the evaluator honours MatchedTaskID only when it names an incomplete task
// of the current day, and Reply is only conversation text.
type Interpreter interface {
	Interpret(ctx context.Context, req InterpretRequest) (*Interpretation, error)
}

type InterpretRequest struct {
	Message  Message
	UserName string
	Day      model.DayProgress
	History  []model.ConversationEntry
}

type Interpretation struct {
	MatchedTaskID string
	Reply         string
}

// Hint converts the interpretation into an evaluator hint.
func (i *Interpretation) Hint() *Hint {
	if i == nil || i.MatchedTaskID == "" {
		return nil
	}
	return &Hint{TaskID: i.MatchedTaskID}
}
