package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"megabot.app/onboarding/common/id"
	"megabot.app/onboarding/common/logger"
	"megabot.app/onboarding/internal/catalog"
	"megabot.app/onboarding/internal/gateway"
	"megabot.app/onboarding/internal/model"
	"megabot.app/onboarding/internal/onboarding"
	"megabot.app/onboarding/internal/queue"
	"megabot.app/onboarding/internal/store"
)

type OnboardingService interface {
	// Start is idempotent: it returns the live record when there is one.
	Start(ctx context.Context, userID, userName string) (*StartResult, error)
	HandleMessage(ctx context.Context, msg gateway.InboundMessage) (*MessageResult, error)
	Advance(ctx context.Context, userID string, force bool) (*AdvanceResult, error)
	SetMuted(ctx context.Context, userID string, muted bool) (*model.ProgressRecord, error)
	Pause(ctx context.Context, userID string) (*model.ProgressRecord, error)
	Resume(ctx context.Context, userID string) (*model.ProgressRecord, error)
	Get(ctx context.Context, userID string) (*model.ProgressRecord, error)
	History(ctx context.Context, userID string) ([]model.ProgressRecord, error)
}

type StartResult struct {
	Record  *model.ProgressRecord
	Created bool
}

type MessageResult struct {
	Ignored    bool
	Evaluation onboarding.Evaluation
	Advance    *onboarding.AdvanceResult
	Reply      string
}

type AdvanceResult struct {
	onboarding.AdvanceResult
	Record *model.ProgressRecord
}

// CatalogSource returns the catalog new records are created from.
type CatalogSource interface {
	Get() *catalog.Catalog
}

type OnboardingDeps struct {
	Store    store.ProgressStore
	TxRunner TxRunner
	Gateway  gateway.Gateway
	Catalog  CatalogSource
	// Interpreter and Completions are optional.
	Interpreter onboarding.Interpreter
	Completions queue.CompletionPublisher
	Clock       onboarding.Clock
	NewID       id.Generator
}

type onboardingService struct {
	store       store.ProgressStore
	txRunner    TxRunner
	gateway     gateway.Gateway
	catalog     CatalogSource
	interpreter onboarding.Interpreter
	completions queue.CompletionPublisher
	clock       onboarding.Clock
	newID       id.Generator
}

func NewOnboardingService(deps OnboardingDeps) OnboardingService {
	if deps.Clock == nil {
		deps.Clock = onboarding.SystemClock{}
	}
	if deps.NewID == nil {
		deps.NewID = id.New
	}
	return &onboardingService{
		store:       deps.Store,
		txRunner:    deps.TxRunner,
		gateway:     deps.Gateway,
		catalog:     deps.Catalog,
		interpreter: deps.Interpreter,
		completions: deps.Completions,
		clock:       deps.Clock,
		newID:       deps.NewID,
	}
}

func (s *onboardingService) Start(ctx context.Context, userID, userName string) (*StartResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		UserID:    logger.Ptr(userID),
		Component: "megabot.service.onboarding",
	})

	live, err := s.store.GetLiveByUser(ctx, userID)
	if err == nil {
		slog.DebugContext(ctx, "onboarding already started", "record_id", live.ID)
		return &StartResult{Record: live}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, unavailable("loading live record", err)
	}

	channelRef, err := s.gateway.Provision(ctx, userID, userName)
	if err != nil {
		return nil, unavailable("provisioning channel", err)
	}

	now := s.clock.Now()
	rec := onboarding.NewRecord(s.newID(), userID, channelRef, s.catalog.Get().InitializeDays(), now)
	welcome := welcomeMessage(userID, rec.CurrentDayProgress())
	onboarding.AppendHistory(rec, model.ConversationEntry{
		Role:      model.ConversationRoleAssistant,
		Content:   welcome.Content,
		Timestamp: now,
	})

	if err := onboarding.Validate(rec); err != nil {
		s.deprovisionQuietly(ctx, channelRef)
		return nil, err
	}

	if err := s.store.Create(ctx, rec); err != nil {
		s.deprovisionQuietly(ctx, channelRef)
		if errors.Is(err, store.ErrLiveRecordExists) {
			// Lost a race with a concurrent start
			live, getErr := s.store.GetLiveByUser(ctx, userID)
			if getErr != nil {
				return nil, unavailable("loading live record", getErr)
			}
			return &StartResult{Record: live}, nil
		}
		return nil, unavailable("creating record", err)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RecordID:  logger.Ptr(rec.ID),
		ChannelID: logger.Ptr(channelRef),
	})
	slog.InfoContext(ctx, "onboarding started")

	s.notify(ctx, channelRef, welcome)
	return &StartResult{Record: rec, Created: true}, nil
}

// pending holds outbound messages produced by a committed state change.
type pending struct {
	messages   []gateway.OutboundMessage
	completion *queue.CompletionEvent
}

func (s *onboardingService) HandleMessage(ctx context.Context, msg gateway.InboundMessage) (*MessageResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		UserID:    logger.Ptr(msg.AuthorID),
		ChannelID: logger.Ptr(msg.ChannelRef),
		MessageID: logger.Ptr(msg.MessageID),
		Component: "megabot.service.onboarding",
	})

	rec, err := s.store.GetLiveByChannel(ctx, msg.ChannelRef)
	if errors.Is(err, store.ErrNotFound) {
		return &MessageResult{Ignored: true}, nil
	}
	if err != nil {
		return nil, unavailable("loading record by channel", err)
	}

	isOwner := msg.AuthorID == rec.UserID
	if !isOwner && !msg.AuthorPrivileged {
		slog.DebugContext(ctx, "ignoring message from non-owner")
		return &MessageResult{Ignored: true}, nil
	}
	if rec.Status.IsTerminal() {
		return &MessageResult{Ignored: true}, nil
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RecordID: logger.Ptr(rec.ID),
		Day:      logger.Ptr(rec.CurrentDay),
	})

	// The LLM call happens before the transaction so no row lock is held
	// across it.
	var interp *onboarding.Interpretation
	if rec.Status == model.ProgressStatusActive && (isOwner || !rec.Muted) {
		interp = s.interpret(ctx, rec, msg)
	}

	now := s.clock.Now()
	result := &MessageResult{}
	var out pending

	err = s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		progress := stores.Progress()
		locked, err := progress.GetByIDForUpdate(ctx, rec.ID)
		if err != nil {
			return err
		}
		if locked.Status.IsTerminal() {
			result.Ignored = true
			return nil
		}

		if isOwner {
			out, err = s.applyOwnerMessage(locked, msg, interp, result, now)
		} else {
			out = s.applyStaffMessage(locked, msg, interp, result, now)
		}
		if err != nil {
			return err
		}

		locked.UpdatedAt = now
		if err := onboarding.Validate(locked); err != nil {
			return err
		}
		if err := progress.Save(ctx, locked); err != nil {
			return err
		}
		rec = locked
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Reaped between the lookup and the lock
			return &MessageResult{Ignored: true}, nil
		}
		slog.ErrorContext(ctx, "failed to save onboarding progress", "error", err)
		if isOwner || !rec.Muted {
			s.notify(ctx, msg.ChannelRef, gateway.OutboundMessage{Content: apologyText})
		}
		if errors.Is(err, onboarding.ErrInvariantViolation) || errors.Is(err, onboarding.ErrInactiveRecord) {
			return nil, err
		}
		return nil, unavailable("saving record", err)
	}

	if result.Evaluation.Matched {
		slog.InfoContext(ctx, "onboarding task completed",
			"task_id", result.Evaluation.TaskID,
			"day_completed", result.Evaluation.DayCompleted,
			"onboarding_completed", result.Evaluation.OnboardingCompleted)
	}

	s.flush(ctx, rec.ChannelRef, out)
	return result, nil
}

// applyOwnerMessage mutates the locked record for a message from its owner
// and returns what to send once the save commits.
func (s *onboardingService) applyOwnerMessage(rec *model.ProgressRecord, msg gateway.InboundMessage, interp *onboarding.Interpretation, result *MessageResult, now time.Time) (pending, error) {
	var out pending

	onboarding.RecordUserActivity(rec, now)
	onboarding.AppendHistory(rec, model.ConversationEntry{
		Role:      model.ConversationRoleUser,
		Content:   msg.Text,
		Images:    msg.Images,
		Timestamp: now,
	})

	if rec.Status != model.ProgressStatusActive {
		// Paused: kept for context, no evaluation and no reply
		return out, nil
	}

	evaluated := rec.CurrentDayProgress()
	eval, err := onboarding.Evaluate(rec, onboarding.Message{Text: msg.Text, Images: msg.Images}, interp.Hint(), now)
	if err != nil {
		return out, err
	}
	result.Evaluation = eval

	var matched *model.TaskState
	if eval.Matched {
		matched = evaluated.Task(eval.TaskID)
	}

	if eval.DayCompleted && !eval.OnboardingCompleted {
		adv, err := onboarding.Advance(rec, false, now)
		if err != nil {
			return out, err
		}
		result.Advance = &adv
	}

	reply := ""
	if interp != nil {
		reply = interp.Reply
	}
	if reply == "" {
		reply = fallbackReply(matched, evaluated)
	}

	onboarding.AppendHistory(rec, model.ConversationEntry{
		Role:      model.ConversationRoleAssistant,
		Content:   reply,
		Timestamp: now,
	})
	result.Reply = reply
	first := gateway.OutboundMessage{Content: reply}
	if matched != nil && !eval.DayCompleted {
		first.Embeds = append(first.Embeds, taskCompletedEmbed(matched, evaluated))
	}
	out.messages = append(out.messages, first)

	if eval.DayCompleted {
		out.messages = append(out.messages, gateway.OutboundMessage{Embeds: []gateway.Embed{dayCompletedEmbed(evaluated)}})
		if result.Advance != nil && result.Advance.Advanced() {
			out.messages = append(out.messages, welcomeMessage(rec.UserID, rec.CurrentDayProgress()))
		}
	}
	if eval.OnboardingCompleted {
		out.messages = append(out.messages, onboardingCompletedMessage(rec.UserID))
		out.completion = &queue.CompletionEvent{
			RecordID:    rec.ID,
			UserID:      rec.UserID,
			CompletedAt: now,
		}
	}
	return out, nil
}

// applyStaffMessage records a message from a privileged member. Staff never
// complete tasks; they get a reply unless the record is muted or not active.
func (s *onboardingService) applyStaffMessage(rec *model.ProgressRecord, msg gateway.InboundMessage, interp *onboarding.Interpretation, result *MessageResult, now time.Time) pending {
	var out pending

	onboarding.AppendHistory(rec, model.ConversationEntry{
		Role:      model.ConversationRoleStaff,
		Content:   msg.Text,
		Images:    msg.Images,
		Timestamp: now,
	})

	if rec.Muted || rec.Status != model.ProgressStatusActive {
		return out
	}

	reply := ""
	if interp != nil {
		reply = interp.Reply
	}
	if reply == "" {
		reply = fallbackReply(nil, rec.CurrentDayProgress())
	}
	onboarding.AppendHistory(rec, model.ConversationEntry{
		Role:      model.ConversationRoleAssistant,
		Content:   reply,
		Timestamp: now,
	})
	result.Reply = reply
	out.messages = append(out.messages, gateway.OutboundMessage{Content: reply})
	return out
}

func (s *onboardingService) interpret(ctx context.Context, rec *model.ProgressRecord, msg gateway.InboundMessage) *onboarding.Interpretation {
	if s.interpreter == nil {
		return nil
	}
	day := rec.CurrentDayProgress()
	if day == nil {
		return nil
	}

	interp, err := s.interpreter.Interpret(ctx, onboarding.InterpretRequest{
		Message:  onboarding.Message{Text: msg.Text, Images: msg.Images},
		UserName: msg.AuthorName,
		Day:      *day,
		History:  rec.ConversationHistory,
	})
	if err != nil {
		slog.WarnContext(ctx, "interpreter failed, using keyword matching", "error", err)
		return nil
	}
	return interp
}

func (s *onboardingService) Advance(ctx context.Context, userID string, force bool) (*AdvanceResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		UserID:    logger.Ptr(userID),
		Component: "megabot.service.onboarding",
	})

	var result AdvanceResult
	err := s.mutateLive(ctx, userID, func(rec *model.ProgressRecord) (bool, error) {
		res, err := onboarding.Advance(rec, force, s.clock.Now())
		if err != nil {
			return false, err
		}
		result.AdvanceResult = res
		return res.Advanced(), nil
	}, func(rec *model.ProgressRecord) {
		result.Record = rec
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "advance requested",
		"outcome", result.Outcome,
		"from_day", result.FromDay,
		"to_day", result.ToDay,
		"force", force)

	if result.Advanced() {
		s.notify(ctx, result.Record.ChannelRef, welcomeMessage(userID, result.Record.CurrentDayProgress()))
	}
	return &result, nil
}

func (s *onboardingService) SetMuted(ctx context.Context, userID string, muted bool) (*model.ProgressRecord, error) {
	return s.setAndReturn(ctx, userID, func(rec *model.ProgressRecord) (bool, error) {
		if rec.Status.IsTerminal() {
			return false, onboarding.ErrInactiveRecord
		}
		if rec.Muted == muted {
			return false, nil
		}
		rec.Muted = muted
		return true, nil
	})
}

func (s *onboardingService) Pause(ctx context.Context, userID string) (*model.ProgressRecord, error) {
	return s.setAndReturn(ctx, userID, func(rec *model.ProgressRecord) (bool, error) {
		switch rec.Status {
		case model.ProgressStatusActive:
			rec.Status = model.ProgressStatusPaused
			return true, nil
		case model.ProgressStatusPaused:
			return false, nil
		default:
			return false, onboarding.ErrInactiveRecord
		}
	})
}

func (s *onboardingService) Resume(ctx context.Context, userID string) (*model.ProgressRecord, error) {
	return s.setAndReturn(ctx, userID, func(rec *model.ProgressRecord) (bool, error) {
		switch rec.Status {
		case model.ProgressStatusPaused:
			rec.Status = model.ProgressStatusActive
			return true, nil
		case model.ProgressStatusActive:
			return false, nil
		default:
			return false, onboarding.ErrInactiveRecord
		}
	})
}

func (s *onboardingService) Get(ctx context.Context, userID string) (*model.ProgressRecord, error) {
	rec, err := s.store.GetLiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, onboarding.ErrRecordNotFound
		}
		return nil, unavailable("loading live record", err)
	}
	return rec, nil
}

func (s *onboardingService) History(ctx context.Context, userID string) ([]model.ProgressRecord, error) {
	records, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, unavailable("listing records", err)
	}
	if len(records) == 0 {
		return nil, onboarding.ErrRecordNotFound
	}
	return records, nil
}

func (s *onboardingService) setAndReturn(ctx context.Context, userID string, mutate func(rec *model.ProgressRecord) (bool, error)) (*model.ProgressRecord, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		UserID:    logger.Ptr(userID),
		Component: "megabot.service.onboarding",
	})

	var out *model.ProgressRecord
	if err := s.mutateLive(ctx, userID, mutate, func(rec *model.ProgressRecord) { out = rec }); err != nil {
		return nil, err
	}
	return out, nil
}

// mutateLive locks the user's live record, applies mutate and saves when it
// reports a change. done receives the record after a successful commit.
func (s *onboardingService) mutateLive(ctx context.Context, userID string, mutate func(rec *model.ProgressRecord) (bool, error), done func(rec *model.ProgressRecord)) error {
	live, err := s.store.GetLiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return onboarding.ErrRecordNotFound
		}
		return unavailable("loading live record", err)
	}

	var result *model.ProgressRecord
	err = s.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		progress := stores.Progress()
		rec, err := progress.GetByIDForUpdate(ctx, live.ID)
		if err != nil {
			return err
		}
		changed, err := mutate(rec)
		if err != nil {
			return err
		}
		if changed {
			rec.UpdatedAt = s.clock.Now()
			if err := onboarding.Validate(rec); err != nil {
				return err
			}
			if err := progress.Save(ctx, rec); err != nil {
				return err
			}
		}
		result = rec
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return onboarding.ErrRecordNotFound
		case errors.Is(err, onboarding.ErrInactiveRecord),
			errors.Is(err, onboarding.ErrInvariantViolation),
			errors.Is(err, onboarding.ErrInvalidDay):
			return err
		default:
			return unavailable("updating record", err)
		}
	}

	done(result)
	return nil
}

func (s *onboardingService) flush(ctx context.Context, channelRef string, out pending) {
	for _, m := range out.messages {
		s.notify(ctx, channelRef, m)
	}
	if out.completion != nil && s.completions != nil {
		if err := s.completions.PublishCompletion(ctx, *out.completion); err != nil {
			slog.ErrorContext(ctx, "failed to publish onboarding completion", "error", err)
		}
	}
}

// notify sends best-effort. State is already saved, so failures are logged
// and swallowed.
func (s *onboardingService) notify(ctx context.Context, channelRef string, msg gateway.OutboundMessage) {
	if strings.TrimSpace(msg.Content) == "" && len(msg.Embeds) == 0 {
		return
	}
	if err := s.gateway.Send(ctx, channelRef, msg); err != nil {
		slog.WarnContext(ctx, "failed to send onboarding message", "error", err)
	}
}

func (s *onboardingService) deprovisionQuietly(ctx context.Context, channelRef string) {
	if err := s.gateway.Deprovision(ctx, channelRef); err != nil {
		slog.WarnContext(ctx, "failed to clean up provisioned channel", "error", err, "channel_id", channelRef)
	}
}

func unavailable(action string, err error) error {
	return fmt.Errorf("%w: %s: %w", onboarding.ErrCollaboratorUnavailable, action, err)
}
