package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"megabot.app/onboarding/common"
)

const channelPrefix = "onboarding"

// discordAPI is the part of *discordgo.Session the adapter uses.
type discordAPI interface {
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

type DiscordConfig struct {
	GuildID    string
	CategoryID string
	BotUserID  string
}

// Discord implements Gateway over the Discord REST API.
type Discord struct {
	api discordAPI
	cfg DiscordConfig
}

func NewDiscord(api discordAPI, cfg DiscordConfig) *Discord {
	return &Discord{api: api, cfg: cfg}
}

const memberPermissions = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionAttachFiles |
	discordgo.PermissionEmbedLinks |
	discordgo.PermissionReadMessageHistory

func (d *Discord) Provision(ctx context.Context, userID, userName string) (string, error) {
	name, err := common.ChannelName(channelPrefix, userName, userID)
	if err != nil {
		return "", fmt.Errorf("building channel name for %s: %w", userID, err)
	}

	overwrites := []*discordgo.PermissionOverwrite{
		{
			// @everyone shares the guild ID
			ID:   d.cfg.GuildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
		{
			ID:    userID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: memberPermissions,
		},
	}
	if d.cfg.BotUserID != "" {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    d.cfg.BotUserID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: memberPermissions | discordgo.PermissionManageChannels,
		})
	}

	ch, err := d.api.GuildChannelCreateComplex(d.cfg.GuildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             d.cfg.CategoryID,
		Topic:                "MegaBot onboarding",
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("creating onboarding channel for %s: %w", userID, err)
	}

	slog.InfoContext(ctx, "onboarding channel provisioned",
		"user_id", userID,
		"channel_id", ch.ID,
		"channel_name", ch.Name)
	return ch.ID, nil
}

func (d *Discord) Send(ctx context.Context, channelRef string, msg OutboundMessage) error {
	_, err := d.api.ChannelMessageSendComplex(channelRef, toMessageSend(msg), discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("sending to %s: %w", channelRef, ErrChannelNotFound)
		}
		return fmt.Errorf("sending to %s: %w", channelRef, err)
	}
	return nil
}

func (d *Discord) Deprovision(ctx context.Context, channelRef string) error {
	if _, err := d.api.ChannelDelete(channelRef, discordgo.WithContext(ctx)); err != nil {
		if isNotFound(err) {
			slog.InfoContext(ctx, "onboarding channel already deleted", "channel_id", channelRef)
			return nil
		}
		return fmt.Errorf("deleting channel %s: %w", channelRef, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

func toMessageSend(msg OutboundMessage) *discordgo.MessageSend {
	out := &discordgo.MessageSend{Content: msg.Content}
	for _, e := range msg.Embeds {
		embed := &discordgo.MessageEmbed{
			Title:       e.Title,
			Description: e.Description,
			Color:       e.Color,
		}
		for _, f := range e.Fields {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:   f.Name,
				Value:  f.Value,
				Inline: f.Inline,
			})
		}
		if e.Footer != "" {
			embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
		}
		out.Embeds = append(out.Embeds, embed)
	}
	return out
}
