// Package gateway is the conversation boundary of the onboarding service:
// private per-member channels, outbound messages and inbound events.
package gateway

import (
	"context"
	"errors"
	"time"
)

// ErrChannelNotFound is returned by Send when the channel no longer exists.
var ErrChannelNotFound = errors.New("channel not found")

type Gateway interface {
	// Provision creates a private channel for the member and returns its ref.
	Provision(ctx context.Context, userID, userName string) (string, error)
	Send(ctx context.Context, channelRef string, msg OutboundMessage) error
	// Deprovision deletes the channel. A channel that is already gone
	// counts as deprovisioned.
	Deprovision(ctx context.Context, channelRef string) error
}

type OutboundMessage struct {
	Content string
	Embeds  []Embed
}

type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type InboundMessage struct {
	MessageID  string
	AuthorID   string
	AuthorName string
	ChannelRef string
	Text       string
	Images     []string
	// AuthorPrivileged is set for staff and bot-admin roles.
	AuthorPrivileged bool
	ReceivedAt       time.Time
}

type MemberJoined struct {
	UserID   string
	UserName string
	JoinedAt time.Time
}

// Sink receives inbound events from a listener.
type Sink interface {
	MessageReceived(ctx context.Context, msg InboundMessage) error
	MemberJoined(ctx context.Context, ev MemberJoined) error
}

// Embed colors used by onboarding messages.
const (
	ColorInfo    = 0x5865F2
	ColorSuccess = 0x57F287
	ColorWarning = 0xFEE75C
)
