package gateway

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"megabot.app/onboarding/common/logger"
)

// Listener turns Discord gateway events into Sink calls. Register its
// methods with (*discordgo.Session).AddHandler.
type Listener struct {
	sink            Sink
	guildID         string
	privilegedRoles map[string]bool
	timeout         time.Duration
}

func NewListener(sink Sink, guildID string, privilegedRoleIDs []string) *Listener {
	roles := make(map[string]bool, len(privilegedRoleIDs))
	for _, id := range privilegedRoleIDs {
		roles[id] = true
	}
	return &Listener{
		sink:            sink,
		guildID:         guildID,
		privilegedRoles: roles,
		timeout:         10 * time.Second,
	}
}

func (l *Listener) OnMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	botID := ""
	if s != nil && s.State != nil && s.State.User != nil {
		botID = s.State.User.ID
	}

	msg, ok := l.ToInbound(m.Message, botID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "megabot.gateway.listener",
		UserID:    logger.Ptr(msg.AuthorID),
		ChannelID: logger.Ptr(msg.ChannelRef),
		MessageID: logger.Ptr(msg.MessageID),
	})

	if err := l.sink.MessageReceived(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "failed to forward inbound message", "error", err)
	}
}

func (l *Listener) OnGuildMemberAdd(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
	if e.Member == nil || e.Member.User == nil || e.Member.User.Bot {
		return
	}
	if l.guildID != "" && e.GuildID != l.guildID {
		return
	}

	ev := MemberJoined{
		UserID:   e.Member.User.ID,
		UserName: displayName(e.Member),
		JoinedAt: e.Member.JoinedAt,
	}
	if ev.JoinedAt.IsZero() {
		ev.JoinedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "megabot.gateway.listener",
		UserID:    logger.Ptr(ev.UserID),
	})

	if err := l.sink.MemberJoined(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "failed to forward member join", "error", err)
	}
}

// ToInbound maps a Discord message. Messages from bots (including this
// one), DMs and other guilds are dropped.
func (l *Listener) ToInbound(m *discordgo.Message, botUserID string) (InboundMessage, bool) {
	if m == nil || m.Author == nil || m.Author.Bot || m.Author.ID == botUserID {
		return InboundMessage{}, false
	}
	if m.GuildID == "" || (l.guildID != "" && m.GuildID != l.guildID) {
		return InboundMessage{}, false
	}

	var images []string
	for _, a := range m.Attachments {
		if a != nil && isImage(a) {
			images = append(images, a.URL)
		}
	}

	text := strings.TrimSpace(m.Content)
	if text == "" && len(images) == 0 {
		return InboundMessage{}, false
	}

	name := m.Author.Username
	if m.Member != nil {
		if n := displayName(m.Member); n != "" {
			name = n
		}
	}

	received := m.Timestamp
	if received.IsZero() {
		received = time.Now().UTC()
	}

	return InboundMessage{
		MessageID:        m.ID,
		AuthorID:         m.Author.ID,
		AuthorName:       name,
		ChannelRef:       m.ChannelID,
		Text:             text,
		Images:           images,
		AuthorPrivileged: l.isPrivileged(m.Member),
		ReceivedAt:       received.UTC(),
	}, true
}

func (l *Listener) isPrivileged(member *discordgo.Member) bool {
	if member == nil {
		return false
	}
	for _, id := range member.Roles {
		if l.privilegedRoles[id] {
			return true
		}
	}
	return false
}

func isImage(a *discordgo.MessageAttachment) bool {
	if strings.HasPrefix(a.ContentType, "image/") {
		return true
	}
	name := strings.ToLower(a.Filename)
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".webp"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func displayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}
