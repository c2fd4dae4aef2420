package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"smart-secretary/internal/secretary"
	"smart-secretary/pkg/retrylimit"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HandlerFunc receives every inbound message the bot sees. A returned error stops the bot.
type HandlerFunc func(ctx context.Context, ev secretary.Event) error

type Config struct {
	Token   string
	OwnerID string
	// GuildID restricts the owner presence lookup to one guild.
	GuildID string
}

// Bot is the Discord side of the secretary. It implements secretary.Transport.
type Bot struct {
	cfg      Config
	dg       *discordgo.Session
	limiter  *retrylimit.AdaptiveLimiter
	lastSeen *lastSeenTracker
	log      zerolog.Logger

	mu      sync.RWMutex
	ctx     context.Context
	handler HandlerFunc
	fatal   chan error
}

// NewBot creates the session without connecting.
func NewBot(cfg Config) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	// 429s are surfaced to the engine instead of retried inside discordgo
	dg.ShouldRetryOnRateLimit = false
	dg.Identify.Intents = discordgo.IntentsDirectMessages |
		discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildPresences |
		discordgo.IntentsMessageContent

	return newBot(cfg, dg), nil
}

func newBot(cfg Config, dg *discordgo.Session) *Bot {
	return &Bot{
		cfg:      cfg,
		dg:       dg,
		limiter:  retrylimit.NewAdaptiveLimiter(5, 1, 10, 1, 0.5),
		lastSeen: newLastSeenTracker(),
		log:      log.Logger.With().Str("component", "discord").Logger(),
		ctx:      context.Background(),
		fatal:    make(chan error, 1),
	}
}

// SetLogger replaces the component logger.
func (b *Bot) SetLogger(l zerolog.Logger) {
	b.log = l
}

// Run connects, feeds messages to handler and blocks until ctx is done or handler fails.
func (b *Bot) Run(ctx context.Context, handler HandlerFunc) error {
	b.mu.Lock()
	b.ctx = ctx
	b.handler = handler
	b.mu.Unlock()

	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onMessageCreate)
	b.dg.AddHandler(b.onMessageUpdate)
	b.dg.AddHandler(b.onPresenceUpdate)
	b.dg.AddHandler(b.onGuildCreate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer func() {
		if err := b.dg.Close(); err != nil {
			b.log.Warn().Err(err).Msg("Error closing Discord session")
		}
	}()

	select {
	case <-ctx.Done():
		b.log.Info().Msg("Shutdown signal received, cleaning up")
		return nil
	case err := <-b.fatal:
		return err
	}
}

func (b *Bot) dispatch(ev secretary.Event) {
	b.mu.RLock()
	ctx, handler := b.ctx, b.handler
	b.mu.RUnlock()
	if handler == nil || ctx.Err() != nil {
		return
	}

	if err := handler(ctx, ev); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		select {
		case b.fatal <- err:
		default:
		}
	}
}
