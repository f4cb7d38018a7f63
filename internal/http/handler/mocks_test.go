package handler_test

import (
	"context"

	"megabot.app/onboarding/internal/gateway"
	"megabot.app/onboarding/internal/model"
	"megabot.app/onboarding/internal/service"
)

type mockOnboardingService struct {
	startFn         func(ctx context.Context, userID, userName string) (*service.StartResult, error)
	handleMessageFn func(ctx context.Context, msg gateway.InboundMessage) (*service.MessageResult, error)
	advanceFn       func(ctx context.Context, userID string, force bool) (*service.AdvanceResult, error)
	setMutedFn      func(ctx context.Context, userID string, muted bool) (*model.ProgressRecord, error)
	pauseFn         func(ctx context.Context, userID string) (*model.ProgressRecord, error)
	resumeFn        func(ctx context.Context, userID string) (*model.ProgressRecord, error)
	getFn           func(ctx context.Context, userID string) (*model.ProgressRecord, error)
	historyFn       func(ctx context.Context, userID string) ([]model.ProgressRecord, error)
}

func (m *mockOnboardingService) Start(ctx context.Context, userID, userName string) (*service.StartResult, error) {
	if m.startFn != nil {
		return m.startFn(ctx, userID, userName)
	}
	return nil, nil
}

func (m *mockOnboardingService) HandleMessage(ctx context.Context, msg gateway.InboundMessage) (*service.MessageResult, error) {
	if m.handleMessageFn != nil {
		return m.handleMessageFn(ctx, msg)
	}
	return nil, nil
}

func (m *mockOnboardingService) Advance(ctx context.Context, userID string, force bool) (*service.AdvanceResult, error) {
	if m.advanceFn != nil {
		return m.advanceFn(ctx, userID, force)
	}
	return nil, nil
}

func (m *mockOnboardingService) SetMuted(ctx context.Context, userID string, muted bool) (*model.ProgressRecord, error) {
	if m.setMutedFn != nil {
		return m.setMutedFn(ctx, userID, muted)
	}
	return nil, nil
}

func (m *mockOnboardingService) Pause(ctx context.Context, userID string) (*model.ProgressRecord, error) {
	if m.pauseFn != nil {
		return m.pauseFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockOnboardingService) Resume(ctx context.Context, userID string) (*model.ProgressRecord, error) {
	if m.resumeFn != nil {
		return m.resumeFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockOnboardingService) Get(ctx context.Context, userID string) (*model.ProgressRecord, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockOnboardingService) History(ctx context.Context, userID string) ([]model.ProgressRecord, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, userID)
	}
	return nil, nil
}
