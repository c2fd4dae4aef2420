// cmd/secretary/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"smart-secretary/internal/config"
	"smart-secretary/internal/discord"
	"smart-secretary/internal/logging"
	"smart-secretary/internal/presence"
	"smart-secretary/internal/secretary"
	"smart-secretary/internal/storage"
	v "smart-secretary/internal/version"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(config.LoadOptions{})
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return 2
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return 2
	}

	logger, logCloser, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		log.Error().Err(err).Msg("Failed to set up logging")
		return 2
	}
	defer logCloser.Close()

	logger.Info().Str("version", v.Version).Str("about", v.AppDescription).Msgf("Starting %v bot...", v.AppName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(cfg.ResponsesFile, cfg.CooldownWindow.Duration(),
		storage.WithLogger(logging.Component(logger, "storage")))
	if err != nil {
		logging.Critical(&logger).Err(err).Msg("Cannot open the responses log, exiting")
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to flush the responses log")
		}
	}()

	bot, err := discord.NewBot(discord.Config{
		Token:   cfg.DiscordToken,
		OwnerID: cfg.OwnerID,
		GuildID: cfg.OwnerGuildID,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create Discord session")
		return 1
	}
	bot.SetLogger(logging.Component(logger, "discord"))

	cache := presence.NewCache(cfg.StatusCacheTTL.Duration(), nil)
	engine := secretary.New(secretary.Config{
		OwnerID:         cfg.OwnerID,
		TypingDelay:     cfg.TypingDelay.Duration(),
		OnlineThreshold: cfg.OnlineThreshold.Duration(),
	}, store, cache, bot, templatesFrom(cfg.Texts), secretary.WithLogger(logging.Component(logger, "engine")))

	if cfg.WatchTexts(logging.Component(logger, "config"), func(t config.Texts) {
		engine.SetTemplates(templatesFrom(t))
	}) {
		logger.Debug().Str("file", cfg.ConfigFile).Msg("Watching settings file for text changes")
	}

	printBanner(ctx, logger, cfg, store, cache)

	errCh := make(chan error, 1)
	go func() {
		if err := bot.Run(ctx, engine.Handle); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	code := 0
	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("Received signal, shutting down")
	case err := <-errCh:
		if err != nil {
			if errors.Is(err, storage.ErrStorageUnavailable) {
				logging.Critical(&logger).Err(err).Msg("Responses log is unavailable, exiting")
			} else {
				logger.Error().Err(err).Msg("Discord bot error")
			}
			code = 1
		}
	}
	cancel()
	// let Run close the session before the log is flushed
	for range errCh {
	}

	logger.Info().Msg("Secretary exited")
	return code
}

func templatesFrom(t config.Texts) secretary.Templates {
	return secretary.Templates{
		Header:    t.Header,
		BrandLink: t.BrandLink,
		Online:    t.Online,
		Offline:   t.Offline,
		Action:    t.ActionText,
	}
}

func printBanner(ctx context.Context, logger zerolog.Logger, cfg *config.Config, store *storage.Storage, cache *presence.Cache) {
	stats := store.Stats()
	malformed := 0
	entries, err := store.Entries(ctx)
	if err != nil {
		logger.Debug().Err(err).Msg("Could not list responses log entries")
	}
	for _, e := range entries {
		if e.Malformed {
			malformed++
		}
	}

	logger.Info().
		Str("owner", cfg.OwnerID).
		Stringer("online_threshold", cfg.OnlineThreshold).
		Stringer("status_cache_ttl", cache.TTL()).
		Stringer("cooldown_window", store.Window()).
		Stringer("typing_delay", cfg.TypingDelay).
		Str("responses_file", stats.FilePath).
		Str("responses_size", humanize.Bytes(uint64(stats.Size))).
		Str("correspondents", humanize.Comma(int64(stats.Keys))).
		Int("malformed", malformed).
		Msg("Secretary configured")
}
