package queue

import (
	"context"

	"megabot.app/onboarding/common/logger"
	"megabot.app/onboarding/internal/gateway"
)

// GatewaySink enqueues gateway events so the worker handles them one at a
// time per consumer.
type GatewaySink struct {
	producer Producer
}

func NewGatewaySink(producer Producer) *GatewaySink {
	return &GatewaySink{producer: producer}
}

func (s *GatewaySink) MessageReceived(ctx context.Context, msg gateway.InboundMessage) error {
	return s.producer.Enqueue(ctx, Task{
		TaskType:   TaskTypeMessageReceived,
		TraceID:    traceID(ctx),
		UserID:     msg.AuthorID,
		UserName:   msg.AuthorName,
		ChannelRef: msg.ChannelRef,
		MessageID:  msg.MessageID,
		Text:       msg.Text,
		Images:     msg.Images,
		Privileged: msg.AuthorPrivileged,
		OccurredAt: msg.ReceivedAt,
	})
}

func (s *GatewaySink) MemberJoined(ctx context.Context, ev gateway.MemberJoined) error {
	return s.producer.Enqueue(ctx, Task{
		TaskType:   TaskTypeStartOnboarding,
		TraceID:    traceID(ctx),
		UserID:     ev.UserID,
		UserName:   ev.UserName,
		OccurredAt: ev.JoinedAt,
	})
}

func traceID(ctx context.Context) *string {
	if id := logger.TraceIDFromContext(ctx); id != "" {
		return &id
	}
	return nil
}

// InboundMessage converts a message_received task back into the gateway form.
func (m Message) InboundMessage() gateway.InboundMessage {
	return gateway.InboundMessage{
		MessageID:        m.MessageID,
		AuthorID:         m.UserID,
		AuthorName:       m.UserName,
		ChannelRef:       m.ChannelRef,
		Text:             m.Text,
		Images:           m.Images,
		AuthorPrivileged: m.Privileged,
		ReceivedAt:       m.OccurredAt,
	}
}
