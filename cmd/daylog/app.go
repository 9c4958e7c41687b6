package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/chris/daylog/config"
	"github.com/chris/daylog/internal/assistant"
	"github.com/chris/daylog/internal/calendar"
	"github.com/chris/daylog/internal/command"
	"github.com/chris/daylog/internal/convo"
	"github.com/chris/daylog/internal/dailylog"
	"github.com/chris/daylog/internal/db"
	"github.com/chris/daylog/internal/llm"
	"github.com/chris/daylog/internal/logging"
	"github.com/chris/daylog/internal/metrics"
	"github.com/chris/daylog/internal/pgstore"
)

const summaryCacheTTL = 2 * time.Minute

type store interface {
	convo.StateStore
	assistant.HistoryStore
	Close() error
}

// app holds the collaborators shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	store   store
	metrics *metrics.Metrics
	machine *convo.Machine
	router  *command.Router
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: st, metrics: metrics.New()}

	opts := convo.Options{
		Store:    st,
		Working:  cfg.Working,
		Location: cfg.Location,
		NightAt:  cfg.NightPromptAt.String(),
		Metrics:  a.metrics,
		Logger:   logger.WithPrefix("convo"),
	}

	var cal calendar.Provider
	if cfg.CalendarConfigured() {
		cal = calendar.NewCached(calendar.NewClient(calendar.Config{
			ClientID:       cfg.GoogleClientID,
			ClientSecret:   cfg.GoogleClientSecret,
			RefreshToken:   cfg.GoogleRefreshToken,
			TokenURI:       cfg.GoogleTokenURI,
			CalendarIDs:    cfg.ReadCalendars(),
			PlanCalendarID: cfg.PlanCalendar(),
			Location:       cfg.Location,
			Timeout:        cfg.CollaboratorTimeout,
		}), cfg.Location, summaryCacheTTL)
		opts.Calendar = cal
	} else {
		logger.Warn("calendar not configured, summaries and plan events are disabled")
	}

	dlog := openDailyLog(cfg, logger)
	if dlog != nil {
		opts.Log = dlog
	}

	client, err := llm.NewClient(llmConfig(cfg))
	switch {
	case err == nil:
		aopts := assistant.Options{
			Client:           client,
			History:          st,
			Calendar:         cal,
			Working:          cfg.Working,
			Location:         cfg.Location,
			Instruction:      cfg.ChatInstruction,
			HistoryTurns:     cfg.ChatHistoryTurns,
			MaxContextTokens: cfg.MaxContextTokens,
			Logger:           logger.WithPrefix("assistant"),
		}
		if dlog != nil {
			aopts.Log = dlog
		}
		opts.Chat = assistant.New(aopts)
	case errors.Is(err, llm.ErrNoCredentials):
		logger.Warn("LLM not configured, chat fallback disabled", "provider", cfg.LLMProvider)
	default:
		st.Close()
		return nil, fmt.Errorf("creating LLM client: %w", err)
	}

	a.machine = convo.New(opts)
	a.router = command.New(command.Options{
		Machine:     a.machine,
		Store:       st,
		AdminChatID: cfg.AdminChatID,
		Logger:      logger.WithPrefix("command"),
	})
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("closing store", "err", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	if cfg.DatabaseURL != "" {
		st, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		return st, nil
	}
	st, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return st, nil
}

// openDailyLog prefers the GitHub backend and falls back to a local
// directory. It returns nil when neither is configured.
func openDailyLog(cfg *config.Config, logger *log.Logger) *dailylog.Log {
	nightAt := cfg.NightPromptAt.String()
	switch {
	case cfg.GitHubConfigured():
		return dailylog.New(dailylog.NewGitHub(dailylog.GitHubConfig{
			Token:   cfg.GitHubToken,
			Owner:   cfg.GitHubOwner,
			Repo:    cfg.GitHubRepo,
			Branch:  cfg.GitHubBranch,
			Timeout: cfg.CollaboratorTimeout,
		}), nightAt)
	case cfg.DailyLogDir != "":
		return dailylog.New(dailylog.NewDir(cfg.DailyLogDir), nightAt)
	}
	logger.Warn("daily log not configured", "missing", cfg.MissingGitHub())
	return nil
}

func llmConfig(cfg *config.Config) llm.ProviderConfig {
	apiKey := cfg.AnthropicKey
	if cfg.LLMProvider == "openai" {
		apiKey = cfg.OpenAIKey
	}
	return llm.ProviderConfig{
		Provider:  cfg.LLMProvider,
		APIKey:    apiKey,
		AuthToken: cfg.AnthropicToken,
		Model:     cfg.LLMModel,
		BaseURL:   cfg.OllamaBaseURL,
		Timeout:   cfg.CollaboratorTimeout,
	}
}
