package service

import (
	"fmt"
	"strings"

	"megabot.app/onboarding/internal/gateway"
	"megabot.app/onboarding/internal/model"
)

const apologyText = "Sorry, something went wrong on our side and I couldn't save that. Please send it again in a minute."

func welcomeMessage(userID string, day *model.DayProgress) gateway.OutboundMessage {
	content := fmt.Sprintf("Welcome to day %d, <@%s>!", day.DayNumber, userID)
	if day.DayNumber == model.FirstDay {
		content = fmt.Sprintf("Welcome to MegaBot, <@%s>! This channel is your private onboarding space for the next five days. Reply here as you finish each task.", userID)
	}
	return gateway.OutboundMessage{
		Content: content,
		Embeds:  []gateway.Embed{dayEmbed(day)},
	}
}

func dayEmbed(day *model.DayProgress) gateway.Embed {
	embed := gateway.Embed{
		Title:       fmt.Sprintf("Day %d: %s", day.DayNumber, day.Title),
		Description: day.Description,
		Color:       gateway.ColorInfo,
		Footer:      fmt.Sprintf("Day %d of %d", day.DayNumber, model.LastDay),
	}
	for _, t := range day.Tasks {
		name := t.Title
		if !t.Required {
			name += " (optional)"
		}
		if t.Completed {
			name = "✅ " + name
		}
		embed.Fields = append(embed.Fields, gateway.EmbedField{Name: name, Value: taskValue(t)})
	}
	return embed
}

func taskValue(t model.TaskState) string {
	desc := t.Description
	if desc == "" {
		desc = t.Title
	}
	if t.Kind == model.TaskKindUpload {
		desc += "\nAttach a screenshot when you're done."
	}
	return desc
}

func taskCompletedEmbed(task *model.TaskState, day *model.DayProgress) gateway.Embed {
	embed := gateway.Embed{
		Title: "Task complete: " + task.Title,
		Color: gateway.ColorSuccess,
	}
	if pending := day.PendingTasks(); len(pending) > 0 {
		names := make([]string, 0, len(pending))
		for _, p := range pending {
			n := p.Title
			if !p.Required {
				n += " (optional)"
			}
			names = append(names, "• "+n)
		}
		embed.Fields = []gateway.EmbedField{{Name: "Still to do today", Value: strings.Join(names, "\n")}}
	}
	return embed
}

func dayCompletedEmbed(day *model.DayProgress) gateway.Embed {
	return gateway.Embed{
		Title:       fmt.Sprintf("🎉 Day %d complete!", day.DayNumber),
		Description: fmt.Sprintf("You finished %s. Great work.", day.Title),
		Color:       gateway.ColorSuccess,
	}
}

func onboardingCompletedMessage(userID string) gateway.OutboundMessage {
	return gateway.OutboundMessage{
		Content: fmt.Sprintf("<@%s> you did it!", userID),
		Embeds: []gateway.Embed{{
			Title:       "🏆 Onboarding complete",
			Description: "All five days are done. Your account is queued for verification and payouts are unlocked once it is approved.",
			Color:       gateway.ColorSuccess,
		}},
	}
}

// fallbackReply is used when no interpreter reply is available.
func fallbackReply(matched *model.TaskState, day *model.DayProgress) string {
	pending := day.PendingTasks()
	if matched != nil {
		if len(pending) == 0 {
			return fmt.Sprintf("Nice, %q is done!", matched.Title)
		}
		return fmt.Sprintf("Nice, %q is done! Next up: %s.", matched.Title, pending[0].Title)
	}
	if len(pending) == 0 {
		return "You're all caught up for today."
	}
	return fmt.Sprintf("Got it. When you've finished %q, tell me here (attach a screenshot for uploads).", pending[0].Title)
}
