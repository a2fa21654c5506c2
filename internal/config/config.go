package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken string        `yaml:"discord_token"`
	GuildID      string        `yaml:"guild_id"`
	DatabasePath string        `yaml:"database_path"`
	LogLevel     string        `yaml:"log_level"`
	LogsChannel  string        `yaml:"logs_channel"`
	BotActivity  string        `yaml:"bot_activity"`
	Health       HealthConfig  `yaml:"health"`
	Spam         SpamConfig    `yaml:"spam"`
	Automod      AutomodConfig `yaml:"automod"`
	Colors       EmbedColors   `yaml:"embed_colors"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// SpamConfig are the anti-spam engine tunables. Durations are kept in
// milliseconds to match the environment variable surface.
type SpamConfig struct {
	MessageLimit         int   `yaml:"message_limit"`
	TimeWindowMs         int   `yaml:"time_window_ms"`
	TimeoutDurationMs    int64 `yaml:"timeout_duration_ms"`
	FrequencyRuleEnabled bool  `yaml:"frequency_rule_enabled"`
}

type AutomodConfig struct {
	BannedUsername    string   `yaml:"banned_username"`
	BanBannedUsername bool     `yaml:"ban_banned_username"`
	WhitelistUserID   string   `yaml:"whitelist_user_id"`
	BypassRoles       []string `yaml:"bypass_roles"`
	CensorKeywords    []string `yaml:"censor_keywords"`
}

type EmbedColors struct {
	Success    int `yaml:"success"`
	Error      int `yaml:"error"`
	Warning    int `yaml:"warning"`
	Info       int `yaml:"info"`
	Moderation int `yaml:"moderation"`
}

func (s SpamConfig) TimeWindow() time.Duration {
	return time.Duration(s.TimeWindowMs) * time.Millisecond
}

func (s SpamConfig) TimeoutDuration() time.Duration {
	return time.Duration(s.TimeoutDurationMs) * time.Millisecond
}

func DefaultConfig() Config {
	return Config{
		DatabasePath: "/data/modguard.db",
		LogLevel:     "info",
		LogsChannel:  "logs",
		BotActivity:  "for violations",
		Health:       HealthConfig{Enabled: false, Addr: ":8080"},
		Spam: SpamConfig{
			MessageLimit:         5,
			TimeWindowMs:         10000,
			TimeoutDurationMs:    7 * 24 * 60 * 60 * 1000,
			FrequencyRuleEnabled: true,
		},
		Automod: AutomodConfig{
			BannedUsername:    "BD",
			BanBannedUsername: true,
		},
		Colors: EmbedColors{
			Success:    0x00FF00,
			Error:      0xFF0000,
			Warning:    0xFFFF00,
			Info:       0x0099FF,
			Moderation: 0xFF6600,
		},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	if cfg.Spam.MessageLimit <= 0 {
		cfg.Spam.MessageLimit = 5
	}
	if cfg.Spam.TimeWindowMs <= 0 {
		cfg.Spam.TimeWindowMs = 10000
	}
	if cfg.Spam.TimeoutDurationMs <= 0 {
		cfg.Spam.TimeoutDurationMs = 7 * 24 * 60 * 60 * 1000
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.GuildID = envString("GUILD_ID", cfg.GuildID)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogsChannel = envString("LOGS_CHANNEL", cfg.LogsChannel)
	cfg.BotActivity = envString("BOT_ACTIVITY", cfg.BotActivity)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Spam.MessageLimit = envInt("SPAM_MESSAGE_LIMIT", cfg.Spam.MessageLimit)
	cfg.Spam.TimeWindowMs = envInt("SPAM_TIME_WINDOW", cfg.Spam.TimeWindowMs)
	cfg.Spam.TimeoutDurationMs = envInt64("AUTO_TIMEOUT_DURATION", cfg.Spam.TimeoutDurationMs)
	cfg.Spam.FrequencyRuleEnabled = envBool("SPAM_FREQUENCY_RULE", cfg.Spam.FrequencyRuleEnabled)
	cfg.Automod.BannedUsername = envString("BANNED_USERNAME", cfg.Automod.BannedUsername)
	cfg.Automod.BanBannedUsername = envBool("BAN_BANNED_USERNAME", cfg.Automod.BanBannedUsername)
	cfg.Automod.WhitelistUserID = envString("WHITELIST_USER_ID", cfg.Automod.WhitelistUserID)
	if value := os.Getenv("AUTOMOD_BYPASS_ROLES"); value != "" {
		cfg.Automod.BypassRoles = splitList(value)
	}
	if value := os.Getenv("CENSOR_KEYWORDS"); value != "" {
		cfg.Automod.CensorKeywords = splitList(value)
	}
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
