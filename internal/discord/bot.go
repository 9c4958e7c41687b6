// Package discord is the chat transport: a gateway session that feeds
// messages to the command router and sends replies in ordered chunks.
package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/chris/daylog/internal/command"
	"github.com/chris/daylog/internal/logging"
)

// MessageLimit is Discord's per-message character cap.
const MessageLimit = 2000

type Options struct {
	Router  *command.Router
	Timeout time.Duration // per incoming message
	Logger  *log.Logger
}

type Bot struct {
	session *discordgo.Session
	opts    Options

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // channel ID -> send pacing
}

func NewBot(token string, opts Options) (*Bot, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Minute
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating Discord session: %w", err)
	}

	bot := &Bot{session: s, opts: opts, limiters: make(map[string]*rate.Limiter)}
	s.AddHandler(bot.onMessage)
	s.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("opening Discord connection: %w", err)
	}

	opts.Logger.Info("Discord bot connected", "user", s.State.User.Username)
	return bot, nil
}

func (b *Bot) Close() {
	b.session.Close()
}

// limiter paces sends per channel at Discord's documented 5 messages per
// 5 seconds.
func (b *Bot) limiter(channelID string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.limiters[channelID]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Second), 5)
		b.limiters[channelID] = l
	}
	return l
}

// Send posts text to channelID, split into chunks sent in order.
func (b *Bot) Send(ctx context.Context, channelID, text string) error {
	for _, chunk := range sendable(splitMessage(text, MessageLimit)) {
		if err := b.limiter(channelID).Wait(ctx); err != nil {
			return err
		}
		if _, err := b.session.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("sending to %s: %w", channelID, err)
		}
	}
	return nil
}

// SendDM opens (or reuses) the DM channel with userID and sends text.
func (b *Bot) SendDM(ctx context.Context, userID, text string) error {
	ch, err := b.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("opening DM with %s: %w", userID, err)
	}
	return b.Send(ctx, ch.ID, text)
}
