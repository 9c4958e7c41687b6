package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Clock is a time of day in the configured timezone.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the instant of c on the calendar day of t, in loc.
func (c Clock) On(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), c.Hour, c.Minute, 0, 0, loc)
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return Clock{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return Clock{}, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("time %q out of range", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

// Config is built once at startup and never mutated afterwards.
type Config struct {
	Timezone string
	Location *time.Location

	WorkStart       Clock
	WorkEnd         Clock
	MorningPromptAt Clock
	NightPromptAt   Clock
	PromptCatchUp   time.Duration
	AdminChatID     string

	DiscordToken   string
	DiscordWebhook string

	LLMProvider      string // anthropic, openai, ollama
	AnthropicKey     string // API key (X-Api-Key header)
	AnthropicToken   string // OAuth token (Authorization: Bearer header)
	OpenAIKey        string
	LLMModel         string
	OllamaBaseURL    string
	MaxContextTokens int
	ChatHistoryTurns int
	ChatInstruction  string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRefreshToken string
	GoogleTokenURI     string
	CalendarIDs        []string
	PlanCalendarID     string

	GitHubToken  string
	GitHubOwner  string
	GitHubRepo   string
	GitHubBranch string
	DailyLogDir  string

	DatabaseURL  string // Postgres; takes precedence over DatabasePath
	DatabasePath string

	LogLevel            string
	LogFile             string
	MetricsAddr         string
	CollaboratorTimeout time.Duration
}

// ConfigDir is where the persistent config file lives.
func ConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".daylog")
}

// ConfigFile is the env-style file read after ./.env.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config")
}

// Load reads .env files and the environment. Variables already set in the
// environment win over both files.
func Load() (*Config, error) {
	_ = godotenv.Load()             // ignore error if no .env
	_ = godotenv.Load(ConfigFile()) // godotenv never overrides existing vars

	var errs []error
	clock := func(key, fallback string) Clock {
		c, err := ParseClock(envOr(key, fallback))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return c
	}
	duration := func(key, fallback string) time.Duration {
		d, err := time.ParseDuration(envOr(key, fallback))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}
	integer := func(key string, fallback int) int {
		v := os.Getenv(key)
		if v == "" {
			return fallback
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return fallback
		}
		return n
	}

	cfg := &Config{
		Timezone:        envOr("TIMEZONE", "America/Los_Angeles"),
		WorkStart:       clock("WORKING_HOURS_START", "09:00"),
		WorkEnd:         clock("WORKING_HOURS_END", "21:00"),
		MorningPromptAt: clock("MORNING_PROMPT_TIME", "08:30"),
		NightPromptAt:   clock("NIGHT_PROMPT_TIME", "21:00"),
		PromptCatchUp:   duration("PROMPT_CATCHUP", "2h"),
		AdminChatID:     os.Getenv("ADMIN_CHAT_ID"),

		DiscordToken:   os.Getenv("DISCORD_BOT_TOKEN"),
		DiscordWebhook: os.Getenv("DISCORD_WEBHOOK_URL"),

		LLMProvider:      envOr("LLM_PROVIDER", "openai"),
		AnthropicKey:     os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicToken:   os.Getenv("ANTHROPIC_AUTH_TOKEN"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		LLMModel:         os.Getenv("LLM_MODEL"),
		OllamaBaseURL:    envOr("OLLAMA_BASE_URL", "http://localhost:11434/v1"),
		MaxContextTokens: integer("MAX_CONTEXT_TOKENS", 16000),
		ChatHistoryTurns: integer("CHAT_HISTORY_TURNS", 12),
		ChatInstruction:  envOr("CHAT_INSTRUCTION", "You are a friendly assistant and give answers up to 50 words."),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRefreshToken: os.Getenv("GOOGLE_REFRESH_TOKEN"),
		GoogleTokenURI:     envOr("GOOGLE_TOKEN_URI", "https://oauth2.googleapis.com/token"),
		CalendarIDs:        splitList(os.Getenv("CALENDAR_IDS")),
		PlanCalendarID:     os.Getenv("PLAN_CALENDAR_ID"),

		GitHubToken:  os.Getenv("GITHUB_TOKEN"),
		GitHubOwner:  os.Getenv("GITHUB_OWNER"),
		GitHubRepo:   os.Getenv("GITHUB_REPO"),
		GitHubBranch: os.Getenv("GITHUB_BRANCH"),
		DailyLogDir:  os.Getenv("DAILY_LOG_DIR"),

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabasePath: envOr("DATABASE_PATH", "./daylog.db"),

		LogLevel:            envOr("LOG_LEVEL", "info"),
		LogFile:             os.Getenv("LOG_FILE"),
		MetricsAddr:         os.Getenv("METRICS_ADDR"),
		CollaboratorTimeout: duration("COLLABORATOR_TIMEOUT", "30s"),
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
		loc = time.UTC
	}
	cfg.Location = loc

	if !cfg.WorkStart.before(cfg.WorkEnd) {
		errs = append(errs, fmt.Errorf("working hours %s-%s: start must be before end", cfg.WorkStart, cfg.WorkEnd))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// Working returns the working window on the calendar day of day.
func (c *Config) Working(day time.Time) (start, end time.Time) {
	return c.WorkStart.On(day, c.Location), c.WorkEnd.On(day, c.Location)
}

// PlanCalendar is the calendar that receives confirmed plans.
func (c *Config) PlanCalendar() string {
	if c.PlanCalendarID != "" {
		return c.PlanCalendarID
	}
	if len(c.CalendarIDs) > 0 {
		return c.CalendarIDs[0]
	}
	return ""
}

// ReadCalendars lists the calendars included in free/busy accounting.
func (c *Config) ReadCalendars() []string {
	if len(c.CalendarIDs) > 0 {
		return c.CalendarIDs
	}
	if c.PlanCalendarID != "" {
		return []string{c.PlanCalendarID}
	}
	return nil
}

func (c *Config) CalendarConfigured() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRefreshToken != "" && len(c.ReadCalendars()) > 0
}

func (c *Config) GitHubConfigured() bool {
	return c.GitHubToken != "" && c.GitHubOwner != "" && c.GitHubRepo != ""
}

// MissingGitHub names the GitHub settings that are not set.
func (c *Config) MissingGitHub() []string {
	var missing []string
	if c.GitHubToken == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if c.GitHubOwner == "" {
		missing = append(missing, "GITHUB_OWNER")
	}
	if c.GitHubRepo == "" {
		missing = append(missing, "GITHUB_REPO")
	}
	return missing
}

func (c Clock) before(o Clock) bool {
	return c.Hour*60+c.Minute < o.Hour*60+o.Minute
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
