// Package brain reads member messages with an LLM and drafts replies.
package brain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"megabot.app/onboarding/common/llm"
	"megabot.app/onboarding/internal/model"
	"megabot.app/onboarding/internal/onboarding"
)

type InterpretationResponse struct {
	MatchedTaskID string `json:"matched_task_id" jsonschema_description:"ID of the one task this message completes, or empty string when none"`
	Reply         string `json:"reply" jsonschema_description:"Short, friendly reply to post in the member's onboarding channel"`
}

var interpretationSchema = llm.GenerateSchema[InterpretationResponse]()

const (
	interpreterPromptVersion = "v1"
	interpreterMaxAttempts   = 3
	// historyWindow is how many recent history entries are replayed.
	historyWindow = 20
)

// TaskInterpreter implements onboarding.Interpreter with a structured chat call.
type TaskInterpreter struct {
	llm        llm.Client
	retryDelay time.Duration
}

type Option func(*TaskInterpreter)

// WithRetryDelay sets the base backoff between retryable failures.
func WithRetryDelay(d time.Duration) Option {
	return func(t *TaskInterpreter) { t.retryDelay = d }
}

func NewTaskInterpreter(client llm.Client, opts ...Option) *TaskInterpreter {
	t := &TaskInterpreter{llm: client, retryDelay: time.Second}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var _ onboarding.Interpreter = (*TaskInterpreter)(nil)

func (t *TaskInterpreter) Interpret(ctx context.Context, req onboarding.InterpretRequest) (*onboarding.Interpretation, error) {
	var response InterpretationResponse
	start := time.Now()

	// Exponential backoff (1s, 2s) for transient rate limits. The keyword
	// heuristic still runs if this gives up.
	var (
		llmResp *llm.Response
		err     error
	)
	for attempt := 0; attempt < interpreterMaxAttempts; attempt++ {
		response = InterpretationResponse{}
		llmResp, err = t.llm.Chat(ctx, llm.Request{
			SystemPrompt: buildSystemPrompt(req.Day),
			History:      buildHistory(req.History),
			UserPrompt:   buildUserPrompt(req),
			SchemaName:   "onboarding_interpretation",
			Schema:       interpretationSchema,
			MaxTokens:    600,
			Temperature:  llm.Temp(0.3),
		}, &response)

		if err == nil {
			break
		}
		if !llm.IsRetryable(ctx, err) {
			return nil, fmt.Errorf("interpreting message: %w", err)
		}
		if attempt == interpreterMaxAttempts-1 {
			break
		}
		slog.WarnContext(ctx, "interpreter retry",
			"attempt", attempt+1,
			"error", err)
		if waitErr := sleep(ctx, t.retryDelay*time.Duration(1<<attempt)); waitErr != nil {
			return nil, waitErr
		}
	}
	if err != nil {
		return nil, fmt.Errorf("interpreting message after %d attempts: %w", interpreterMaxAttempts, err)
	}

	matched := strings.TrimSpace(response.MatchedTaskID)
	if matched != "" && !hasPendingTask(req.Day, matched) {
		slog.InfoContext(ctx, "dropping interpreter match for unknown or completed task",
			"matched_task_id", matched)
		matched = ""
	}

	reply, stripped := SanitizeReply(response.Reply)
	if stripped > 0 {
		slog.WarnContext(ctx, "stripped mass mentions from reply", "count", stripped)
	}
	reply = strings.TrimSpace(reply)

	attrs := []any{
		"matched_task_id", matched,
		"latency_ms", time.Since(start).Milliseconds(),
		"model", t.llm.Model(),
		"prompt_version", interpreterPromptVersion,
	}
	if llmResp != nil {
		attrs = append(attrs, "prompt_tokens", llmResp.PromptTokens, "completion_tokens", llmResp.CompletionTokens)
	}
	slog.DebugContext(ctx, "message interpreted", attrs...)

	return &onboarding.Interpretation{MatchedTaskID: matched, Reply: reply}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func hasPendingTask(day model.DayProgress, taskID string) bool {
	t := day.Task(taskID)
	return t != nil && !t.Completed
}

func buildHistory(entries []model.ConversationEntry) []llm.Message {
	if len(entries) > historyWindow {
		entries = entries[len(entries)-historyWindow:]
	}
	out := make([]llm.Message, 0, len(entries))
	for _, e := range entries {
		content := e.Content
		if len(e.Images) > 0 {
			content += fmt.Sprintf("\n[attached %d image(s)]", len(e.Images))
		}
		switch e.Role {
		case model.ConversationRoleAssistant:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: content})
		case model.ConversationRoleStaff:
			out = append(out, llm.Message{Role: llm.RoleUser, Name: "staff", Content: content})
		default:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: content})
		}
	}
	return out
}

func buildUserPrompt(req onboarding.InterpretRequest) string {
	var sb strings.Builder
	if req.UserName != "" {
		fmt.Fprintf(&sb, "Member: %s\n", req.UserName)
	}
	if len(req.Message.Images) > 0 {
		fmt.Fprintf(&sb, "Attached images: %d\n", len(req.Message.Images))
	}
	sb.WriteString("Message:\n")
	sb.WriteString(req.Message.Text)
	return sb.String()
}

func buildSystemPrompt(day model.DayProgress) string {
	var sb strings.Builder
	sb.WriteString(interpreterSystemPrompt)
	fmt.Fprintf(&sb, "\n\n## Today: Day %d of 5 - %s\n", day.DayNumber, day.Title)
	if day.Description != "" {
		sb.WriteString(day.Description)
		sb.WriteString("\n")
	}
	sb.WriteString("\n## Tasks\n")
	for _, t := range day.Tasks {
		state := "pending"
		if t.Completed {
			state = "done"
		}
		req := "optional"
		if t.Required {
			req = "required"
		}
		fmt.Fprintf(&sb, "- id=%s [%s, %s, %s] %s", t.TaskID, t.Kind, req, state, t.Title)
		if t.Description != "" {
			fmt.Fprintf(&sb, ": %s", t.Description)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

const interpreterSystemPrompt = `You are MegaBot, the onboarding coach of a TikTok clipping community. New members spend five days setting up an account, warming it up, making clips, posting them and getting verified for payouts.

Each message comes from a member in their private onboarding channel. Decide whether the message shows that the member finished one of today's pending tasks, then write a reply.

## Matching

- Set matched_task_id to the id of exactly one pending task the message completes.
- Upload tasks need an attached image or a clear statement that a screenshot or clip was sent.
- Confirmation tasks need the member to say they did it.
- Text response tasks are complete when the member answers the question.
- Questions, plans ("I will", "tomorrow") and greetings complete nothing: use an empty string.
- Never name a task that is already done or is not in the list.

## Reply

- Two or three sentences, warm and direct, no hashtags.
- If a task was completed, acknowledge it and point to the next pending task.
- If nothing was completed, answer the question or nudge toward the next pending task.
- Never mention @everyone or @here.`
