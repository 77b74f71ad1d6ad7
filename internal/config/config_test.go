package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "DATABASE_URL", "REDIS_URL",
		"ODDS_SPORTS", "CYCLE_POLL_SECS", "MATCHER_CONFIG_FILE",
		"TEAM_MIN_SIMILARITY", "WEIGHT_NAMES", "MIN_BOOKS_TOTALS",
		"EV_TIER_BOUNDARIES", "EV_COOLDOWN_MINS", "SOFT_TIME_BUDGET_SECS",
		"MAX_CONCURRENT_RESOLUTIONS", "MAX_EXTERNAL_CALLS_PER_CYCLE",
		"SSH_PORT", "SSH_AUTHORIZED_FINGERPRINTS",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	if cfg.RedisURL != "localhost:6379" {
		t.Fatalf("expected default redis url, got %s", cfg.RedisURL)
	}
	if cfg.CyclePollSecs != 300 {
		t.Fatalf("expected default poll secs 300, got %d", cfg.CyclePollSecs)
	}
	if cfg.Matcher.TeamMin != 0.60 || cfg.Matcher.OverallMin != 0.75 {
		t.Fatalf("unexpected matcher defaults %+v", cfg.Matcher)
	}
	if cfg.EV.CooldownWindow != 6*time.Hour {
		t.Fatalf("expected 6h cooldown, got %s", cfg.EV.CooldownWindow)
	}
	if len(cfg.OddsSports) == 0 {
		t.Fatal("expected default sports")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadWithEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("TELEGRAM_CHAT_ID", "-1001")
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis:6379")
	t.Setenv("CYCLE_POLL_SECS", "120")
	t.Setenv("ODDS_SPORTS", "soccer_epl, soccer_italy_serie_a,")
	t.Setenv("TEAM_MIN_SIMILARITY", "0.7")
	t.Setenv("MIN_BOOKS_TOTALS", "3")
	t.Setenv("EV_TIER_BOUNDARIES", "5,10,20,30,50")
	t.Setenv("EV_COOLDOWN_MINS", "90")
	t.Setenv("SSH_AUTHORIZED_FINGERPRINTS", "SHA256:abc,SHA256:def")

	cfg := Load()
	if cfg.TelegramBotToken != "token" || cfg.DatabaseURL != "postgres://example" || cfg.RedisURL != "redis:6379" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.TelegramChatID != -1001 {
		t.Fatalf("expected chat id -1001, got %d", cfg.TelegramChatID)
	}
	if cfg.CyclePollSecs != 120 {
		t.Fatalf("expected poll secs 120, got %d", cfg.CyclePollSecs)
	}
	if strings.Join(cfg.OddsSports, "|") != "soccer_epl|soccer_italy_serie_a" {
		t.Fatalf("unexpected sports %v", cfg.OddsSports)
	}
	if cfg.Matcher.TeamMin != 0.7 || cfg.Market.MinBooks["totals"] != 3 || cfg.Market.MinBooks["h2h"] != 1 {
		t.Fatalf("unexpected tuning %+v %+v", cfg.Matcher, cfg.Market)
	}
	if cfg.EV.TierBoundaries[4] != 50 || cfg.EV.CooldownWindow != 90*time.Minute {
		t.Fatalf("unexpected ev config %+v", cfg.EV)
	}
	if len(cfg.SSHAuthorizedFingerprints) != 2 || cfg.SSHPort != 2222 {
		t.Fatalf("unexpected ssh config %v %d", cfg.SSHAuthorizedFingerprints, cfg.SSHPort)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestMalformedValuesFailValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv("CYCLE_POLL_SECS", "bad")
	t.Setenv("EV_TIER_BOUNDARIES", "10,x")

	cfg := Load()
	if cfg.CyclePollSecs != 300 {
		t.Fatalf("malformed value should leave the default in place, got %d", cfg.CyclePollSecs)
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, name := range []string{"CYCLE_POLL_SECS", "EV_TIER_BOUNDARIES"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("expected %s in %v", name, err)
		}
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cases := map[string]func(*Config){
		"weights":     func(c *Config) { c.Matcher.WeightNames = 0.9 },
		"team min":    func(c *Config) { c.Matcher.TeamMin = 0 },
		"min books":   func(c *Config) { c.Market.MinBooks["h2h"] = 0 },
		"tiers":       func(c *Config) { c.EV.TierBoundaries = []float64{10, 10, 20, 30, 40} },
		"gap":         func(c *Config) { c.EV.MaxGapPct = 0 },
		"budget":      func(c *Config) { c.SoftTimeBudget = 0 },
		"concurrency": func(c *Config) { c.MaxConcurrentResolutions = 0 },
		"calls":       func(c *Config) { c.MaxExternalCallsPerCycle = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			cfg := Load()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}

func TestTuningFileOverlay(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := `
matcher:
  team_min_similarity: 0.8
market:
  min_books:
    totals: 2
ev:
  cooldown_window: 2h
  ev_tier_boundaries: [8, 12, 18, 25, 35]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write tuning file: %v", err)
	}
	t.Setenv("MATCHER_CONFIG_FILE", path)
	t.Setenv("WEIGHT_NAMES", "0.6")

	cfg := Load()
	if cfg.Matcher.TeamMin != 0.8 {
		t.Fatalf("expected team min from file, got %v", cfg.Matcher.TeamMin)
	}
	if cfg.Matcher.OverallMin != 0.75 {
		t.Fatalf("absent keys should keep defaults, got %v", cfg.Matcher.OverallMin)
	}
	if cfg.Matcher.WeightNames != 0.6 {
		t.Fatalf("environment should override the file, got %v", cfg.Matcher.WeightNames)
	}
	if cfg.Market.MinBooks["totals"] != 2 {
		t.Fatalf("expected min books from file, got %v", cfg.Market.MinBooks)
	}
	if cfg.EV.CooldownWindow != 2*time.Hour || cfg.EV.TierBoundaries[0] != 8 {
		t.Fatalf("unexpected ev overlay %+v", cfg.EV)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestMissingTuningFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("MATCHER_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if err := Load().Validate(); err == nil {
		t.Fatal("expected a missing tuning file to fail validation")
	}
}
