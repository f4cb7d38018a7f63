package service

import (
	"megabot.app/onboarding/core/config"
	"megabot.app/onboarding/internal/gateway"
	"megabot.app/onboarding/internal/onboarding"
	"megabot.app/onboarding/internal/queue"
	"megabot.app/onboarding/internal/store"
)

type Services struct {
	stores      *store.Stores
	txRunner    TxRunner
	gateway     gateway.Gateway
	catalog     CatalogSource
	interpreter onboarding.Interpreter
	completions queue.CompletionPublisher
	cfg         config.OnboardingConfig
}

// NewServices wires services from shared collaborators. interpreter and
// completions may be nil.
func NewServices(stores *store.Stores, txRunner TxRunner, gw gateway.Gateway, catalog CatalogSource, interpreter onboarding.Interpreter, completions queue.CompletionPublisher, cfg config.OnboardingConfig) *Services {
	return &Services{
		stores:      stores,
		txRunner:    txRunner,
		gateway:     gw,
		catalog:     catalog,
		interpreter: interpreter,
		completions: completions,
		cfg:         cfg,
	}
}

func (s *Services) Onboarding() OnboardingService {
	return NewOnboardingService(OnboardingDeps{
		Store:       s.stores.Progress(),
		TxRunner:    s.txRunner,
		Gateway:     s.gateway,
		Catalog:     s.catalog,
		Interpreter: s.interpreter,
		Completions: s.completions,
	})
}

func (s *Services) Reaper() *onboarding.Reaper {
	policy := onboarding.ReapPolicy{
		Timeout: s.cfg.InactivityTimeout,
		MaxDay:  s.cfg.ReapMaxDay,
	}
	return onboarding.NewReaper(s.stores.Progress(), s.gateway, onboarding.SystemClock{}, policy, s.cfg.ReaperBatchSize)
}
