package discord

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
)

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore own messages
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}

	// Only respond to DMs or when mentioned
	isDM := m.GuildID == ""
	isMentioned := false
	for _, u := range m.Mentions {
		if u.ID == s.State.User.ID {
			isMentioned = true
			break
		}
	}
	if !isDM && !isMentioned {
		return
	}

	content := strings.TrimSpace(stripMention(m.Content, s.State.User.ID))
	if content == "" {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.opts.Logger.Error("handler panic", "user", m.Author.ID, "panic", r)
			s.ChannelMessageSend(m.ChannelID, "Something went wrong. Try again?")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), b.opts.Timeout)
	defer cancel()

	s.ChannelTyping(m.ChannelID)

	// State is keyed by the author so DMs and mentions share one conversation.
	replies := b.opts.Router.Dispatch(ctx, m.Author.ID, content)
	for _, reply := range replies {
		if err := b.Send(ctx, m.ChannelID, reply); err != nil {
			b.opts.Logger.Error("sending reply", "channel", m.ChannelID, "err", err)
			return
		}
	}
}

func stripMention(s, userID string) string {
	s = strings.ReplaceAll(s, "<@"+userID+">", "")
	s = strings.ReplaceAll(s, "<@!"+userID+">", "")
	return s
}

// splitMessage cuts s into chunks of at most limit runes. A chunk ends
// after the last newline in its window when that newline lies past the
// first quarter of the window; otherwise the cut is hard. Concatenating
// the chunks gives back s.
func splitMessage(s string, limit int) []string {
	runes := []rune(s)
	if len(runes) <= limit {
		return []string{s}
	}
	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i >= limit/4; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// sendable drops chunks Discord would reject as empty.
func sendable(chunks []string) []string {
	out := chunks[:0:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}
