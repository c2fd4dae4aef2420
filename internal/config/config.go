// /internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	DefaultResponsesFile = "responses_log.json"
	DefaultConfigFile    = "config.json"
)

// Config is assembled from defaults, then the settings file, then the environment.
type Config struct {
	DiscordToken    string   `env:"DISCORD_TOKEN"`
	OwnerID         string   `env:"OWNER_ID"`
	OwnerGuildID    string   `env:"OWNER_GUILD_ID"`
	CooldownWindow  Duration `env:"COOLDOWN_WINDOW"`
	TypingDelay     Duration `env:"TYPING_DELAY"`
	OnlineThreshold Duration `env:"ONLINE_THRESHOLD"`
	StatusCacheTTL  Duration `env:"STATUS_CACHE_TTL"`
	ResponsesFile   string   `env:"RESPONSES_FILE"`
	ConfigFile      string   `env:"CONFIG_FILE"`

	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`
	LogFile   string `env:"LOG_FILE"`

	Texts Texts

	v *viper.Viper
}

// Texts are the reply fragments. Header may contain {brand_link}.
type Texts struct {
	BrandLink  string
	Header     string
	ActionText string
	Online     string
	Offline    string
}

// LoadOptions exists for tests; the zero value reads .env and the process environment.
type LoadOptions struct {
	Environment map[string]string
	DotenvFiles []string
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		CooldownWindow:  Seconds(600),
		TypingDelay:     Seconds(3),
		OnlineThreshold: Seconds(600),
		StatusCacheTTL:  Seconds(30),
		ResponsesFile:   DefaultResponsesFile,
		ConfigFile:      DefaultConfigFile,
		LogLevel:        "info",
		LogFormat:       "console",
		Texts: Texts{
			Header:     "Hi! This is an automatic reply. ",
			Online:     "I'm around and will get back to you shortly. ",
			Offline:    "I'm away at the moment and will reply as soon as I'm back. ",
			ActionText: "Feel free to leave your question here.",
		},
	}
}

// Load builds the configuration. It does not validate it; call Validate for the bot.
func Load(opts LoadOptions) (*Config, error) {
	if opts.Environment == nil {
		if err := godotenv.Load(opts.DotenvFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := Defaults()

	path, explicit := lookupEnv(opts.Environment, "CONFIG_FILE")
	if !explicit {
		path = cfg.ConfigFile
	}
	if err := cfg.readFile(path, explicit); err != nil {
		return nil, err
	}

	if err := env.ParseWithOptions(cfg, env.Options{Environment: opts.Environment}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Validate reports every problem that keeps the bot from starting.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DiscordToken) == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN is not set"))
	}
	if strings.TrimSpace(c.OwnerID) == "" {
		errs = append(errs, errors.New("OWNER_ID is not set"))
	}
	if c.CooldownWindow.Duration() <= 0 {
		errs = append(errs, errors.New("cooldown window must be positive"))
	}
	if c.OnlineThreshold.Duration() <= 0 {
		errs = append(errs, errors.New("online threshold must be positive"))
	}
	if c.TypingDelay.Duration() < 0 {
		errs = append(errs, errors.New("typing delay cannot be negative"))
	}
	if strings.TrimSpace(c.ResponsesFile) == "" {
		errs = append(errs, errors.New("responses file is not set"))
	}
	if strings.TrimSpace(c.Texts.Online) == "" || strings.TrimSpace(c.Texts.Offline) == "" {
		errs = append(errs, errors.New("both online and offline reply texts are required"))
	}
	return errors.Join(errs...)
}

// WatchTexts calls fn with fresh texts whenever the settings file changes.
// It returns false when no settings file was loaded.
func (c *Config) WatchTexts(logger zerolog.Logger, fn func(Texts)) bool {
	if c.v == nil {
		return false
	}
	base := c.Texts
	c.v.OnConfigChange(func(e fsnotify.Event) {
		texts := base
		readTexts(c.v, &texts)
		if strings.TrimSpace(texts.Online) == "" || strings.TrimSpace(texts.Offline) == "" {
			logger.Warn().Str("file", e.Name).Msg("Ignoring reply texts change: online and offline texts are required")
			return
		}
		logger.Info().Str("file", e.Name).Str("op", e.Op.String()).Msg("Reply texts reloaded")
		fn(texts)
	})
	c.v.WatchConfig()
	return true
}

func (c *Config) readFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("settings file %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read settings file %s: %w", path, err)
	}

	applySettings(v, c)
	readTexts(v, &c.Texts)
	c.ConfigFile = path
	c.v = v
	return nil
}

// applySettings copies the settings.* keys. Owner ids must be strings in the file;
// JSON numbers that large lose precision.
func applySettings(v *viper.Viper, c *Config) {
	if v.IsSet("settings.conversation_threshold_sec") {
		c.CooldownWindow = Seconds(v.GetFloat64("settings.conversation_threshold_sec"))
	}
	if v.IsSet("settings.typing_delay_sec") {
		c.TypingDelay = Seconds(v.GetFloat64("settings.typing_delay_sec"))
	}
	if v.IsSet("settings.online_threshold_sec") {
		c.OnlineThreshold = Seconds(v.GetFloat64("settings.online_threshold_sec"))
	}
	if v.IsSet("settings.status_cache_ttl_sec") {
		c.StatusCacheTTL = Seconds(v.GetFloat64("settings.status_cache_ttl_sec"))
	}
	if s := v.GetString("settings.responses_file"); s != "" {
		c.ResponsesFile = s
	}
	if s := v.GetString("settings.admin_status_check_id"); s != "" {
		c.OwnerID = s
	}
	if s := v.GetString("settings.owner_guild_id"); s != "" {
		c.OwnerGuildID = s
	}
}

func readTexts(v *viper.Viper, t *Texts) {
	for key, dst := range map[string]*string{
		"texts.brand_link":       &t.BrandLink,
		"texts.header":           &t.Header,
		"texts.action_text_base": &t.ActionText,
		"texts.dynamic_online":   &t.Online,
		"texts.dynamic_offline":  &t.Offline,
	} {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
}

func lookupEnv(environment map[string]string, key string) (string, bool) {
	if environment != nil {
		v, ok := environment[key]
		return v, ok && v != ""
	}
	v, ok := os.LookupEnv(key)
	return v, ok && v != ""
}
