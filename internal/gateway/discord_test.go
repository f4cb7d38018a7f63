package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeDiscordAPI struct {
	createFn func(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error)
	sendFn   func(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error)
	deleteFn func(channelID string) (*discordgo.Channel, error)
}

func (f *fakeDiscordAPI) GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return f.createFn(guildID, data)
}

func (f *fakeDiscordAPI) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return f.sendFn(channelID, data)
}

func (f *fakeDiscordAPI) ChannelDelete(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return f.deleteFn(channelID)
}

func restError(status int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: status, Status: http.StatusText(status)}}
}

var _ = Describe("Discord", func() {
	var (
		ctx context.Context
		api *fakeDiscordAPI
		d   *Discord
	)

	BeforeEach(func() {
		ctx = context.Background()
		api = &fakeDiscordAPI{}
		d = NewDiscord(api, DiscordConfig{GuildID: "guild-1", CategoryID: "cat-1", BotUserID: "bot-1"})
	})

	Describe("Provision", func() {
		It("creates a private channel under the onboarding category", func() {
			var got discordgo.GuildChannelCreateData
			api.createFn = func(guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
				Expect(guildID).To(Equal("guild-1"))
				got = data
				return &discordgo.Channel{ID: "chan-9", Name: data.Name}, nil
			}

			ref, err := d.Provision(ctx, "user-1", "Clip King")
			Expect(err).NotTo(HaveOccurred())
			Expect(ref).To(Equal("chan-9"))
			Expect(got.Name).To(Equal("onboarding-clip-king"))
			Expect(got.ParentID).To(Equal("cat-1"))
			Expect(got.Type).To(Equal(discordgo.ChannelTypeGuildText))
			Expect(got.PermissionOverwrites).To(HaveLen(3))

			everyone := got.PermissionOverwrites[0]
			Expect(everyone.ID).To(Equal("guild-1"))
			Expect(everyone.Deny & discordgo.PermissionViewChannel).NotTo(BeZero())

			member := got.PermissionOverwrites[1]
			Expect(member.ID).To(Equal("user-1"))
			Expect(member.Type).To(Equal(discordgo.PermissionOverwriteTypeMember))
			Expect(member.Allow & discordgo.PermissionViewChannel).NotTo(BeZero())
		})

		It("falls back to the user id for unusable names", func() {
			api.createFn = func(_ string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
				return &discordgo.Channel{ID: "chan-1", Name: data.Name}, nil
			}
			_, err := d.Provision(ctx, "123456", "🔥🔥")
			Expect(err).NotTo(HaveOccurred())
		})

		It("wraps API failures", func() {
			api.createFn = func(string, discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
				return nil, restError(http.StatusForbidden)
			}
			_, err := d.Provision(ctx, "user-1", "name")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("user-1"))
		})
	})

	Describe("Send", func() {
		It("maps embeds", func() {
			var got *discordgo.MessageSend
			api.sendFn = func(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
				Expect(channelID).To(Equal("chan-1"))
				got = data
				return &discordgo.Message{}, nil
			}

			err := d.Send(ctx, "chan-1", OutboundMessage{
				Content: "hi",
				Embeds: []Embed{{
					Title:  "Day 1",
					Color:  ColorInfo,
					Fields: []EmbedField{{Name: "Task", Value: "Do it"}},
					Footer: "footer",
				}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Content).To(Equal("hi"))
			Expect(got.Embeds).To(HaveLen(1))
			Expect(got.Embeds[0].Title).To(Equal("Day 1"))
			Expect(got.Embeds[0].Fields[0].Value).To(Equal("Do it"))
			Expect(got.Embeds[0].Footer.Text).To(Equal("footer"))
		})

		It("reports missing channels", func() {
			api.sendFn = func(string, *discordgo.MessageSend) (*discordgo.Message, error) {
				return nil, restError(http.StatusNotFound)
			}
			Expect(d.Send(ctx, "chan-1", OutboundMessage{Content: "x"})).To(MatchError(ErrChannelNotFound))
		})
	})

	Describe("Deprovision", func() {
		It("treats a missing channel as deleted", func() {
			api.deleteFn = func(string) (*discordgo.Channel, error) {
				return nil, restError(http.StatusNotFound)
			}
			Expect(d.Deprovision(ctx, "chan-1")).To(Succeed())
		})

		It("returns other failures", func() {
			api.deleteFn = func(string) (*discordgo.Channel, error) {
				return nil, errors.New("gateway timeout")
			}
			Expect(d.Deprovision(ctx, "chan-1")).To(HaveOccurred())
		})
	})
})

type recordingSink struct {
	messages []InboundMessage
	joins    []MemberJoined
}

func (s *recordingSink) MessageReceived(_ context.Context, msg InboundMessage) error {
	s.messages = append(s.messages, msg)
	return nil
}

func (s *recordingSink) MemberJoined(_ context.Context, ev MemberJoined) error {
	s.joins = append(s.joins, ev)
	return nil
}

var _ = Describe("Listener", func() {
	var (
		sink *recordingSink
		l    *Listener
		sent time.Time
	)

	BeforeEach(func() {
		sink = &recordingSink{}
		l = NewListener(sink, "guild-1", []string{"role-staff"})
		sent = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	})

	message := func() *discordgo.Message {
		return &discordgo.Message{
			ID:        "msg-1",
			ChannelID: "chan-1",
			GuildID:   "guild-1",
			Content:   "  done with the account  ",
			Timestamp: sent,
			Author:    &discordgo.User{ID: "user-1", Username: "clipper"},
			Member:    &discordgo.Member{Nick: "Clip King", Roles: []string{"role-member"}},
			Attachments: []*discordgo.MessageAttachment{
				{URL: "https://cdn.example.com/a.png", Filename: "a.png", ContentType: "image/png"},
				{URL: "https://cdn.example.com/notes.txt", Filename: "notes.txt", ContentType: "text/plain"},
				{URL: "https://cdn.example.com/b.JPG", Filename: "b.JPG"},
			},
		}
	}

	It("maps a guild message", func() {
		msg, ok := l.ToInbound(message(), "bot-1")
		Expect(ok).To(BeTrue())
		Expect(msg).To(Equal(InboundMessage{
			MessageID:  "msg-1",
			AuthorID:   "user-1",
			AuthorName: "Clip King",
			ChannelRef: "chan-1",
			Text:       "done with the account",
			Images:     []string{"https://cdn.example.com/a.png", "https://cdn.example.com/b.JPG"},
			ReceivedAt: sent,
		}))
	})

	It("flags privileged roles", func() {
		m := message()
		m.Member.Roles = append(m.Member.Roles, "role-staff")
		msg, ok := l.ToInbound(m, "bot-1")
		Expect(ok).To(BeTrue())
		Expect(msg.AuthorPrivileged).To(BeTrue())
	})

	DescribeTable("drops messages it should not handle",
		func(mutate func(m *discordgo.Message)) {
			m := message()
			mutate(m)
			_, ok := l.ToInbound(m, "bot-1")
			Expect(ok).To(BeFalse())
		},
		Entry("bot author", func(m *discordgo.Message) { m.Author.Bot = true }),
		Entry("own message", func(m *discordgo.Message) { m.Author.ID = "bot-1" }),
		Entry("direct message", func(m *discordgo.Message) { m.GuildID = "" }),
		Entry("other guild", func(m *discordgo.Message) { m.GuildID = "guild-2" }),
		Entry("empty", func(m *discordgo.Message) { m.Content = " "; m.Attachments = nil }),
	)

	It("forwards member joins", func() {
		l.OnGuildMemberAdd(nil, &discordgo.GuildMemberAdd{Member: &discordgo.Member{
			GuildID:  "guild-1",
			JoinedAt: sent,
			User:     &discordgo.User{ID: "user-7", Username: "newbie"},
		}})
		Expect(sink.joins).To(Equal([]MemberJoined{{UserID: "user-7", UserName: "newbie", JoinedAt: sent}}))
	})

	It("ignores bots joining", func() {
		l.OnGuildMemberAdd(nil, &discordgo.GuildMemberAdd{Member: &discordgo.Member{
			GuildID: "guild-1",
			User:    &discordgo.User{ID: "bot-9", Bot: true},
		}})
		Expect(sink.joins).To(BeEmpty())
	})

	It("forwards messages from the session handler", func() {
		l.OnMessageCreate(nil, &discordgo.MessageCreate{Message: message()})
		Expect(sink.messages).To(HaveLen(1))
		Expect(sink.messages[0].MessageID).To(Equal("msg-1"))
	})
})
