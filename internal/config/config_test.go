package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "test-token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Spam.MessageLimit != 5 {
		t.Fatalf("expected default message limit 5, got %d", cfg.Spam.MessageLimit)
	}
	if cfg.Spam.TimeWindow() != 10*time.Second {
		t.Fatalf("expected default window 10s, got %v", cfg.Spam.TimeWindow())
	}
	if cfg.Spam.TimeoutDuration() != 7*24*time.Hour {
		t.Fatalf("expected default timeout 7d, got %v", cfg.Spam.TimeoutDuration())
	}
	if !cfg.Spam.FrequencyRuleEnabled {
		t.Fatal("frequency rule should default on")
	}
	if cfg.LogsChannel != "logs" {
		t.Fatalf("expected default logs channel, got %q", cfg.LogsChannel)
	}
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without a token")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
discord_token: yaml-token
guild_id: "123"
spam:
  message_limit: 8
  time_window_ms: 5000
automod:
  banned_username: Imposter
  censor_keywords:
    - scam
    - free-nitro
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DISCORD_TOKEN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DiscordToken != "yaml-token" || cfg.GuildID != "123" {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
	if cfg.Spam.MessageLimit != 8 || cfg.Spam.TimeWindowMs != 5000 {
		t.Fatalf("spam overrides not applied: %+v", cfg.Spam)
	}
	if cfg.Automod.BannedUsername != "Imposter" {
		t.Fatalf("automod override not applied: %+v", cfg.Automod)
	}
	if len(cfg.Automod.CensorKeywords) != 2 {
		t.Fatalf("censor keywords not applied: %v", cfg.Automod.CensorKeywords)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("discord_token: yaml-token\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DISCORD_TOKEN", "env-token")
	t.Setenv("SPAM_MESSAGE_LIMIT", "3")
	t.Setenv("SPAM_FREQUENCY_RULE", "false")
	t.Setenv("AUTOMOD_BYPASS_ROLES", "r1, r2 ,r3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DiscordToken != "env-token" {
		t.Fatalf("env token should win, got %q", cfg.DiscordToken)
	}
	if cfg.Spam.MessageLimit != 3 {
		t.Fatalf("env message limit not applied: %d", cfg.Spam.MessageLimit)
	}
	if cfg.Spam.FrequencyRuleEnabled {
		t.Fatal("env should disable the frequency rule")
	}
	want := []string{"r1", "r2", "r3"}
	if len(cfg.Automod.BypassRoles) != len(want) {
		t.Fatalf("bypass roles not split: %v", cfg.Automod.BypassRoles)
	}
	for i, role := range want {
		if cfg.Automod.BypassRoles[i] != role {
			t.Fatalf("bypass roles not trimmed: %v", cfg.Automod.BypassRoles)
		}
	}
}

func TestInvalidSpamValuesFallBack(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "test-token")
	t.Setenv("SPAM_MESSAGE_LIMIT", "-1")
	t.Setenv("SPAM_TIME_WINDOW", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Spam.MessageLimit != 5 || cfg.Spam.TimeWindowMs != 10000 {
		t.Fatalf("invalid values must fall back to defaults: %+v", cfg.Spam)
	}
}

func TestBuildLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		logger, err := BuildLogger(level)
		if err != nil {
			t.Fatalf("BuildLogger(%q): %v", level, err)
		}
		_ = logger.Sync()
	}
}
