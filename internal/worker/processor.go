package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"megabot.app/onboarding/internal/onboarding"
	"megabot.app/onboarding/internal/queue"
)

var ErrUnknownTaskType = errors.New("unknown task type")

// Handler processes one task type.
type Handler func(ctx context.Context, msg queue.Message) error

// Registry maps task types to handlers.
type Registry struct {
	handlers map[queue.TaskType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[queue.TaskType]Handler)}
}

// Register replaces any handler already registered for taskType.
func (r *Registry) Register(taskType queue.TaskType, h Handler) {
	r.handlers[taskType] = h
}

func (r *Registry) Dispatch(ctx context.Context, msg queue.Message) error {
	h, ok := r.handlers[msg.TaskType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTaskType, msg.TaskType)
	}
	return h(ctx, msg)
}

// NewOnboardingRegistry registers the handlers for every onboarding task.
func NewOnboardingRegistry(svc Onboarding) *Registry {
	r := NewRegistry()
	r.Register(queue.TaskTypeStartOnboarding, func(ctx context.Context, msg queue.Message) error {
		res, err := svc.Start(ctx, msg.UserID, msg.UserName)
		if err != nil {
			return fmt.Errorf("starting onboarding: %w", err)
		}
		slog.DebugContext(ctx, "start onboarding handled",
			"record_id", res.Record.ID,
			"created", res.Created)
		return nil
	})
	r.Register(queue.TaskTypeMessageReceived, func(ctx context.Context, msg queue.Message) error {
		res, err := svc.HandleMessage(ctx, msg.InboundMessage())
		if err != nil {
			return fmt.Errorf("handling message: %w", err)
		}
		if res.Ignored {
			slog.DebugContext(ctx, "message ignored")
		}
		return nil
	})
	return r
}

// isPermanent reports errors that retrying cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, ErrUnknownTaskType) ||
		errors.Is(err, onboarding.ErrInvariantViolation) ||
		errors.Is(err, onboarding.ErrInvalidDay)
}
