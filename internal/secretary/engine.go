package secretary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"smart-secretary/internal/presence"
	"smart-secretary/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultProbeTimeout = 10 * time.Second

// CooldownLog is the per-correspondent reply log. *storage.Storage implements it.
type CooldownLog interface {
	Lock(correspondentID string) (unlock func())
	ShouldReply(ctx context.Context, correspondentID string) (bool, error)
	RecordReply(ctx context.Context, correspondentID string, at time.Time) error
}

// ReachabilityCache is the single-slot owner status cache. *presence.Cache implements it.
type ReachabilityCache interface {
	Get() (bool, bool)
	Set(reachable bool)
}

type Config struct {
	OwnerID         string
	TypingDelay     time.Duration
	OnlineThreshold time.Duration
	ProbeTimeout    time.Duration
}

// Engine decides whether and how to answer each inbound direct message.
type Engine struct {
	cfg       Config
	cooldown  CooldownLog
	cache     ReachabilityCache
	transport Transport
	templates atomic.Pointer[Templates]

	// probeMu makes concurrent cache misses share one probe
	probeMu sync.Mutex

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	log   zerolog.Logger
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSleep replaces the timer used for the typing delay and rate-limit backoff.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = sleep }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func New(cfg Config, cooldown CooldownLog, cache ReachabilityCache, transport Transport, tpl Templates, opts ...Option) *Engine {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	e := &Engine{
		cfg:       cfg,
		cooldown:  cooldown,
		cache:     cache,
		transport: transport,
		now:       time.Now,
		sleep:     sleepContext,
		log:       log.Logger.With().Str("component", "engine").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.templates.Store(&tpl)
	return e
}

// SetTemplates swaps the reply texts. Safe while events are being handled.
func (e *Engine) SetTemplates(tpl Templates) {
	e.templates.Store(&tpl)
}

func (e *Engine) Templates() Templates {
	return *e.templates.Load()
}

// Handle processes one inbound event. The only error it returns wraps
// storage.ErrStorageUnavailable; everything else is logged and absorbed.
func (e *Engine) Handle(ctx context.Context, ev Event) error {
	if !ev.Consider {
		return nil
	}

	logger := e.log.With().
		Str("event_id", uuid.NewString()).
		Str("correspondent", ev.CorrespondentID).
		Str("event", ev.Kind.String()).
		Logger()

	unlock := e.cooldown.Lock(ev.CorrespondentID)
	defer unlock()

	ok, err := e.cooldown.ShouldReply(ctx, ev.CorrespondentID)
	if err != nil {
		if errors.Is(err, storage.ErrStorageUnavailable) {
			return err
		}
		logger.Debug().Err(err).Msg("Cooldown check aborted")
		return nil
	}
	if !ok {
		logger.Trace().Msg("Replied recently, skipping")
		return nil
	}

	logger.Info().Msg("Incoming message, preparing reply")

	reachable := e.Reachable(ctx)
	text := e.Templates().Compose(reachable)

	if err := e.deliver(ctx, ev, text); err != nil {
		e.handleDeliveryError(ctx, logger, err)
		return nil
	}

	// the reply is out; a shutdown now must not skip the log write
	if err := e.cooldown.RecordReply(context.WithoutCancel(ctx), ev.CorrespondentID, e.now()); err != nil {
		if errors.Is(err, storage.ErrStorageUnavailable) {
			return fmt.Errorf("record reply to %s: %w", ev.CorrespondentID, err)
		}
		logger.Error().Err(err).Msg("Failed to record reply")
		return nil
	}

	logger.Info().Bool("reachable", reachable).Msg("Reply sent")
	return nil
}

// Reachable answers from the cache or probes the owner's presence on a miss.
// A failed probe counts as unreachable and is cached, unless ctx itself was canceled.
func (e *Engine) Reachable(ctx context.Context) bool {
	e.probeMu.Lock()
	defer e.probeMu.Unlock()

	if v, ok := e.cache.Get(); ok {
		e.log.Debug().Bool("reachable", v).Msg("Owner status from cache")
		return v
	}

	probeCtx, cancel := context.WithTimeout(ctx, e.cfg.ProbeTimeout)
	defer cancel()

	reachable := false
	sig, err := e.transport.ProbePresence(probeCtx, e.cfg.OwnerID)
	if err != nil {
		if ctx.Err() != nil {
			// shutting down; an aborted probe says nothing about the owner
			e.log.Debug().Err(err).Msg("Owner status check abandoned")
			return false
		}
		e.log.Error().Err(err).Str("owner", e.cfg.OwnerID).Msg("Error checking owner status, assuming offline")
	} else {
		reachable = presence.Classify(sig, e.cfg.OnlineThreshold, e.now())
		e.log.Info().
			Str("owner", e.cfg.OwnerID).
			Stringer("status", sig).
			Bool("reachable", reachable).
			Msg("Owner status checked")
	}

	e.cache.Set(reachable)
	return reachable
}

func (e *Engine) deliver(ctx context.Context, ev Event, text string) error {
	if err := e.transport.SendTyping(ctx, ev.ChatID); err != nil {
		return err
	}
	if err := e.sleep(ctx, e.cfg.TypingDelay); err != nil {
		return err
	}
	return e.transport.SendReply(ctx, ev.ChatID, ev.MessageID, text)
}

func (e *Engine) handleDeliveryError(ctx context.Context, logger zerolog.Logger, err error) {
	var rl *RateLimitedError
	switch {
	case errors.As(err, &rl):
		logger.Warn().Dur("retry_after", rl.RetryAfter).Str("op", rl.Op).Msg("Rate limited, waiting before dropping this message")
		if err := e.sleep(ctx, rl.RetryAfter); err != nil {
			logger.Debug().Err(err).Msg("Backoff interrupted")
		}
	case errors.Is(err, context.Canceled):
		logger.Debug().Msg("Reply abandoned on shutdown")
	default:
		logger.Error().Err(err).Msg("Failed to deliver reply")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
