package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"fixture-edge/internal/ev"
	"fixture-edge/internal/market"
	"fixture-edge/internal/matcher"

	"gopkg.in/yaml.v3"
)

var defaultSports = []string{
	"soccer_epl",
	"soccer_spain_la_liga",
	"soccer_italy_serie_a",
	"soccer_germany_bundesliga",
	"soccer_france_ligue_one",
}

type Config struct {
	TelegramBotToken string
	TelegramChatID   int64
	DatabaseURL      string
	RedisURL         string
	HTTPAddr         string
	APIKey           string
	CyclePollSecs    int

	OpenAIAPIKey string
	OpenAIModel  string

	OddsAPIKey         string
	OddsAPIBaseURL     string
	OddsSports         []string
	FixturesAPIKey     string
	FixturesAPIBaseURL string
	ProviderRPS        float64
	ProviderMaxRetries int

	MatcherConfigFile string
	Matcher           matcher.Config
	Market            market.Config
	EV                ev.Config

	SoftTimeBudget           time.Duration
	MaxConcurrentResolutions int
	MaxExternalCallsPerCycle int
	FixtureWindow            time.Duration

	SSHPort                   int
	SSHHostKeyPath            string
	SSHAuthorizedFingerprints []string

	// problems holds values that were present but could not be parsed.
	problems []error
}

// tuningFile is the YAML overlay. It is decoded over the current values so
// absent keys keep them.
type tuningFile struct {
	Matcher matcher.Config `yaml:"matcher"`
	Market  market.Config  `yaml:"market"`
	EV      ev.Config      `yaml:"ev"`
}

func Load() *Config {
	cfg := &Config{
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		APIKey:             os.Getenv("API_KEY"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OddsAPIKey:         os.Getenv("ODDS_API_KEY"),
		OddsAPIBaseURL:     strings.TrimSpace(os.Getenv("ODDS_API_BASE_URL")),
		FixturesAPIKey:     os.Getenv("FIXTURES_API_KEY"),
		FixturesAPIBaseURL: strings.TrimSpace(os.Getenv("FIXTURES_API_BASE_URL")),
		MatcherConfigFile:  strings.TrimSpace(os.Getenv("MATCHER_CONFIG_FILE")),
		Matcher:            matcher.DefaultConfig(),
		Market:             market.DefaultConfig(),
		EV:                 ev.DefaultConfig(),
	}

	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set")
	}
	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set, persistence will be disabled")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set, falling back to the de-vigged market estimate")
	}
	if cfg.OddsAPIKey == "" {
		log.Println("Warning: ODDS_API_KEY not set")
	}
	if cfg.FixturesAPIKey == "" {
		log.Println("Warning: FIXTURES_API_KEY not set")
	}

	cfg.HTTPAddr = strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	cfg.OpenAIModel = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}

	cfg.OddsSports = defaultSports
	if v := strings.TrimSpace(os.Getenv("ODDS_SPORTS")); v != "" {
		cfg.OddsSports = splitList(v)
	}

	if v := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramChatID = n
		} else {
			cfg.malformed("TELEGRAM_CHAT_ID", v)
		}
	}

	cfg.CyclePollSecs = cfg.intEnv("CYCLE_POLL_SECS", 300)
	cfg.ProviderRPS = cfg.floatEnv("PROVIDER_RPS", 2)
	cfg.ProviderMaxRetries = cfg.intEnv("PROVIDER_MAX_RETRIES", 2)

	if cfg.MatcherConfigFile != "" {
		if err := cfg.loadTuningFile(cfg.MatcherConfigFile); err != nil {
			cfg.problems = append(cfg.problems, err)
		}
	}

	cfg.Matcher.TeamMin = cfg.floatEnv("TEAM_MIN_SIMILARITY", cfg.Matcher.TeamMin)
	cfg.Matcher.OverallMin = cfg.floatEnv("OVERALL_MIN_SCORE", cfg.Matcher.OverallMin)
	cfg.Matcher.WeightNames = cfg.floatEnv("WEIGHT_NAMES", cfg.Matcher.WeightNames)
	cfg.Matcher.WeightTime = cfg.floatEnv("WEIGHT_TIME", cfg.Matcher.WeightTime)
	cfg.Matcher.WeightLeague = cfg.floatEnv("WEIGHT_LEAGUE", cfg.Matcher.WeightLeague)
	cfg.Matcher.CountryBonus = cfg.floatEnv("WEIGHT_COUNTRY", cfg.Matcher.CountryBonus)

	cfg.Market.MinBooks = copyMinBooks(cfg.Market.MinBooks)
	for env, key := range map[string]string{
		"MIN_BOOKS_H2H":    market.H2H,
		"MIN_BOOKS_TOTALS": market.Totals,
		"MIN_BOOKS_BTTS":   market.BTTS,
		"MIN_BOOKS_DNB":    market.DNB,
	} {
		cfg.Market.MinBooks[key] = cfg.intEnv(env, cfg.Market.MinBooks[key])
	}

	if v := strings.TrimSpace(os.Getenv("EV_TIER_BOUNDARIES")); v != "" {
		if bounds, err := parseFloats(v); err == nil {
			cfg.EV.TierBoundaries = bounds
		} else {
			cfg.malformed("EV_TIER_BOUNDARIES", v)
		}
	}
	cfg.EV.MaxGapPct = cfg.floatEnv("MAX_PROBABILITY_GAP_PCT", cfg.EV.MaxGapPct)
	cfg.EV.CooldownWindow = time.Duration(cfg.intEnv("EV_COOLDOWN_MINS", int(cfg.EV.CooldownWindow/time.Minute))) * time.Minute

	cfg.SoftTimeBudget = time.Duration(cfg.intEnv("SOFT_TIME_BUDGET_SECS", 120)) * time.Second
	cfg.MaxConcurrentResolutions = cfg.intEnv("MAX_CONCURRENT_RESOLUTIONS", 4)
	cfg.MaxExternalCallsPerCycle = cfg.intEnv("MAX_EXTERNAL_CALLS_PER_CYCLE", 60)
	cfg.FixtureWindow = time.Duration(cfg.intEnv("FIXTURE_WINDOW_DAYS", 3)) * 24 * time.Hour

	cfg.SSHPort = cfg.intEnv("SSH_PORT", 2222)
	cfg.SSHHostKeyPath = strings.TrimSpace(os.Getenv("SSH_HOST_KEY_PATH"))
	if cfg.SSHHostKeyPath == "" {
		cfg.SSHHostKeyPath = ".ssh/fixture_edge_ed25519"
	}
	cfg.SSHAuthorizedFingerprints = splitList(os.Getenv("SSH_AUTHORIZED_FINGERPRINTS"))

	return cfg
}

// Validate reports malformed values and out-of-range settings. It is meant to
// stop startup.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.problems...)
	if err := c.Matcher.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("matcher: %w", err))
	}
	if err := c.Market.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("market: %w", err))
	}
	if err := c.EV.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ev: %w", err))
	}
	if c.SoftTimeBudget <= 0 {
		errs = append(errs, errors.New("SOFT_TIME_BUDGET_SECS must be positive"))
	}
	if c.MaxConcurrentResolutions < 1 {
		errs = append(errs, errors.New("MAX_CONCURRENT_RESOLUTIONS must be at least 1"))
	}
	if c.MaxExternalCallsPerCycle < 0 {
		errs = append(errs, errors.New("MAX_EXTERNAL_CALLS_PER_CYCLE must not be negative"))
	}
	if c.FixtureWindow <= 0 {
		errs = append(errs, errors.New("FIXTURE_WINDOW_DAYS must be positive"))
	}
	if c.CyclePollSecs <= 0 {
		errs = append(errs, errors.New("CYCLE_POLL_SECS must be positive"))
	}
	if c.ProviderRPS <= 0 {
		errs = append(errs, errors.New("PROVIDER_RPS must be positive"))
	}
	if c.ProviderMaxRetries < 0 {
		errs = append(errs, errors.New("PROVIDER_MAX_RETRIES must not be negative"))
	}
	if c.SSHPort <= 0 || c.SSHPort > 65535 {
		errs = append(errs, fmt.Errorf("SSH_PORT=%d out of range", c.SSHPort))
	}
	if len(c.OddsSports) == 0 {
		errs = append(errs, errors.New("ODDS_SPORTS must list at least one sport"))
	}
	return errors.Join(errs...)
}

func (c *Config) loadTuningFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tuning file: %w", err)
	}
	f := tuningFile{Matcher: c.Matcher, Market: c.Market, EV: c.EV}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse tuning file %s: %w", path, err)
	}
	c.Matcher, c.Market, c.EV = f.Matcher, f.Market, f.EV
	log.Printf("Loaded tuning overlay from %s", path)
	return nil
}

func (c *Config) malformed(name, value string) {
	c.problems = append(c.problems, fmt.Errorf("%s=%q is not a valid value", name, value))
}

func (c *Config) intEnv(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		c.malformed(name, v)
		return def
	}
	return n
}

func (c *Config) floatEnv(name string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		c.malformed(name, v)
		return def
	}
	return n
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseFloats(v string) ([]float64, error) {
	parts := splitList(v)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func copyMinBooks(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
