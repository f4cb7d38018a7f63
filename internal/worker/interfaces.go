package worker

import (
	"context"

	"megabot.app/onboarding/internal/gateway"
	"megabot.app/onboarding/internal/onboarding"
	"megabot.app/onboarding/internal/queue"
	"megabot.app/onboarding/internal/service"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// Dispatcher routes a task to its handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg queue.Message) error
}

// Onboarding is the part of service.OnboardingService driven by queued tasks.
type Onboarding interface {
	Start(ctx context.Context, userID, userName string) (*service.StartResult, error)
	HandleMessage(ctx context.Context, msg gateway.InboundMessage) (*service.MessageResult, error)
}

// Sweeper runs one reaping pass.
type Sweeper interface {
	Sweep(ctx context.Context) (onboarding.SweepResult, error)
}
