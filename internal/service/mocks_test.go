package service_test

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"megabot.app/onboarding/internal/gateway"
	"megabot.app/onboarding/internal/model"
	"megabot.app/onboarding/internal/onboarding"
	"megabot.app/onboarding/internal/queue"
	"megabot.app/onboarding/internal/service"
	"megabot.app/onboarding/internal/store"
)

type mockProgressStore struct {
	createFn             func(ctx context.Context, rec *model.ProgressRecord) error
	getByIDFn            func(ctx context.Context, id int64) (*model.ProgressRecord, error)
	getByIDForUpdateFn   func(ctx context.Context, id int64) (*model.ProgressRecord, error)
	getLiveByUserFn      func(ctx context.Context, userID string) (*model.ProgressRecord, error)
	getLiveByChannelFn   func(ctx context.Context, channelRef string) (*model.ProgressRecord, error)
	saveFn               func(ctx context.Context, rec *model.ProgressRecord) error
	listByUserFn         func(ctx context.Context, userID string) ([]model.ProgressRecord, error)
	listReapCandidatesFn func(ctx context.Context, c onboarding.ReapCriteria) ([]model.ProgressRecord, error)
	markInactiveFn       func(ctx context.Context, id int64, now time.Time) (bool, error)
}

func (m *mockProgressStore) Create(ctx context.Context, rec *model.ProgressRecord) error {
	if m.createFn != nil {
		return m.createFn(ctx, rec)
	}
	return nil
}

func (m *mockProgressStore) GetByID(ctx context.Context, id int64) (*model.ProgressRecord, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockProgressStore) GetByIDForUpdate(ctx context.Context, id int64) (*model.ProgressRecord, error) {
	if m.getByIDForUpdateFn != nil {
		return m.getByIDForUpdateFn(ctx, id)
	}
	return m.GetByID(ctx, id)
}

func (m *mockProgressStore) GetLiveByUser(ctx context.Context, userID string) (*model.ProgressRecord, error) {
	if m.getLiveByUserFn != nil {
		return m.getLiveByUserFn(ctx, userID)
	}
	return nil, store.ErrNotFound
}

func (m *mockProgressStore) GetLiveByChannel(ctx context.Context, channelRef string) (*model.ProgressRecord, error) {
	if m.getLiveByChannelFn != nil {
		return m.getLiveByChannelFn(ctx, channelRef)
	}
	return nil, store.ErrNotFound
}

func (m *mockProgressStore) Save(ctx context.Context, rec *model.ProgressRecord) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, rec)
	}
	return nil
}

func (m *mockProgressStore) ListByUser(ctx context.Context, userID string) ([]model.ProgressRecord, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockProgressStore) ListReapCandidates(ctx context.Context, c onboarding.ReapCriteria) ([]model.ProgressRecord, error) {
	if m.listReapCandidatesFn != nil {
		return m.listReapCandidatesFn(ctx, c)
	}
	return nil, nil
}

func (m *mockProgressStore) MarkInactive(ctx context.Context, id int64, now time.Time) (bool, error) {
	if m.markInactiveFn != nil {
		return m.markInactiveFn(ctx, id, now)
	}
	return false, nil
}

// memoryStore wires a mockProgressStore to an in-memory table. Reads return
// deep copies so tests observe only what was saved.
type memoryStore struct {
	*mockProgressStore
	mu      sync.Mutex
	records map[int64]*model.ProgressRecord
	saves   int
}

func newMemoryStore(records ...*model.ProgressRecord) *memoryStore {
	ms := &memoryStore{
		mockProgressStore: &mockProgressStore{},
		records:           make(map[int64]*model.ProgressRecord),
	}
	for _, r := range records {
		ms.records[r.ID] = clone(r)
	}

	ms.createFn = func(_ context.Context, rec *model.ProgressRecord) error {
		ms.mu.Lock()
		defer ms.mu.Unlock()
		for _, r := range ms.records {
			if r.UserID == rec.UserID && r.Status != model.ProgressStatusInactive {
				return store.ErrLiveRecordExists
			}
		}
		ms.records[rec.ID] = clone(rec)
		return nil
	}
	ms.getByIDFn = func(_ context.Context, id int64) (*model.ProgressRecord, error) {
		ms.mu.Lock()
		defer ms.mu.Unlock()
		r, ok := ms.records[id]
		if !ok {
			return nil, store.ErrNotFound
		}
		return clone(r), nil
	}
	ms.getLiveByUserFn = func(_ context.Context, userID string) (*model.ProgressRecord, error) {
		return ms.findLive(func(r *model.ProgressRecord) bool { return r.UserID == userID })
	}
	ms.getLiveByChannelFn = func(_ context.Context, channelRef string) (*model.ProgressRecord, error) {
		return ms.findLive(func(r *model.ProgressRecord) bool { return r.ChannelRef == channelRef })
	}
	ms.saveFn = func(_ context.Context, rec *model.ProgressRecord) error {
		ms.mu.Lock()
		defer ms.mu.Unlock()
		cur, ok := ms.records[rec.ID]
		if !ok || cur.Status == model.ProgressStatusInactive {
			return store.ErrNotFound
		}
		ms.records[rec.ID] = clone(rec)
		ms.saves++
		return nil
	}
	ms.listByUserFn = func(_ context.Context, userID string) ([]model.ProgressRecord, error) {
		ms.mu.Lock()
		defer ms.mu.Unlock()
		var out []model.ProgressRecord
		for _, r := range ms.records {
			if r.UserID == userID {
				out = append(out, *clone(r))
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
		return out, nil
	}
	return ms
}

func (ms *memoryStore) findLive(match func(r *model.ProgressRecord) bool) (*model.ProgressRecord, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, r := range ms.records {
		if r.Status != model.ProgressStatusInactive && match(r) {
			return clone(r), nil
		}
	}
	return nil, store.ErrNotFound
}

func (ms *memoryStore) get(id int64) *model.ProgressRecord {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return clone(ms.records[id])
}

func clone(r *model.ProgressRecord) *model.ProgressRecord {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		panic(err)
	}
	var out model.ProgressRecord
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return &out
}

type storeProvider struct {
	progress store.ProgressStore
}

func (p storeProvider) Progress() store.ProgressStore { return p.progress }

type mockTxRunner struct {
	stores service.StoreProvider
	err    error
}

func (m *mockTxRunner) WithTx(_ context.Context, fn func(stores service.StoreProvider) error) error {
	if m.err != nil {
		return m.err
	}
	return fn(m.stores)
}

type mockGateway struct {
	mu            sync.Mutex
	provisionFn   func(ctx context.Context, userID, userName string) (string, error)
	sendFn        func(ctx context.Context, channelRef string, msg gateway.OutboundMessage) error
	deprovisionFn func(ctx context.Context, channelRef string) error

	sent          []sentMessage
	deprovisioned []string
}

type sentMessage struct {
	ChannelRef string
	Message    gateway.OutboundMessage
}

func (m *mockGateway) Provision(ctx context.Context, userID, userName string) (string, error) {
	if m.provisionFn != nil {
		return m.provisionFn(ctx, userID, userName)
	}
	return "chan-" + userID, nil
}

func (m *mockGateway) Send(ctx context.Context, channelRef string, msg gateway.OutboundMessage) error {
	m.mu.Lock()
	m.sent = append(m.sent, sentMessage{ChannelRef: channelRef, Message: msg})
	m.mu.Unlock()
	if m.sendFn != nil {
		return m.sendFn(ctx, channelRef, msg)
	}
	return nil
}

func (m *mockGateway) Deprovision(ctx context.Context, channelRef string) error {
	m.mu.Lock()
	m.deprovisioned = append(m.deprovisioned, channelRef)
	m.mu.Unlock()
	if m.deprovisionFn != nil {
		return m.deprovisionFn(ctx, channelRef)
	}
	return nil
}

// contents returns the text of every sent message, including embed titles.
func (m *mockGateway) contents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.sent {
		if s.Message.Content != "" {
			out = append(out, s.Message.Content)
		}
		for _, e := range s.Message.Embeds {
			out = append(out, e.Title)
		}
	}
	return out
}

type mockInterpreter struct {
	interpretFn func(ctx context.Context, req onboarding.InterpretRequest) (*onboarding.Interpretation, error)
	calls       int
}

func (m *mockInterpreter) Interpret(ctx context.Context, req onboarding.InterpretRequest) (*onboarding.Interpretation, error) {
	m.calls++
	if m.interpretFn != nil {
		return m.interpretFn(ctx, req)
	}
	return &onboarding.Interpretation{}, nil
}

type mockCompletions struct {
	events []queue.CompletionEvent
	err    error
}

func (m *mockCompletions) PublishCompletion(_ context.Context, ev queue.CompletionEvent) error {
	m.events = append(m.events, ev)
	return m.err
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func sequentialIDs(start int64) func() int64 {
	next := start
	return func() int64 {
		next++
		return next
	}
}
