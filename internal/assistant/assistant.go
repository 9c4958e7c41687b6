// Package assistant is the free-chat fallback: a tool-calling loop over an
// llm.Client with per-user history.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/chris/daylog/internal/calendar"
	"github.com/chris/daylog/internal/dailylog"
	"github.com/chris/daylog/internal/freebusy"
	"github.com/chris/daylog/internal/llm"
	"github.com/chris/daylog/internal/logging"
)

const maxToolRounds = 6

var ErrToolRounds = errors.New("too many tool rounds")

// HistoryStore persists one chat history per user.
type HistoryStore interface {
	LoadHistory(ctx context.Context, userID string) ([]llm.Message, error)
	SaveHistory(ctx context.Context, userID string, history []llm.Message) error
}

// DailyLog is the part of the log store the tools use.
type DailyLog interface {
	AppendToSection(ctx context.Context, day string, section dailylog.Section, lines []string) error
	Read(ctx context.Context, day string) (string, error)
}

type Options struct {
	Client           llm.Client
	History          HistoryStore
	Calendar         calendar.Provider // optional
	Log              DailyLog          // optional
	Working          func(day time.Time) (start, end time.Time)
	Location         *time.Location
	Instruction      string // pinned system turn seeded into new histories
	HistoryTurns     int
	MaxContextTokens int
	Logger           *log.Logger
	Now              func() time.Time
}

type Assistant struct {
	opts Options
}

func New(opts Options) *Assistant {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.MaxContextTokens == 0 {
		opts.MaxContextTokens = 16000
	}
	return &Assistant{opts: opts}
}

func (a *Assistant) seed() []llm.Message {
	if a.opts.Instruction == "" {
		return nil
	}
	return []llm.Message{{Role: llm.RoleSystem, Content: a.opts.Instruction}}
}

// Register creates the user's history with the pinned instruction unless
// one exists already.
func (a *Assistant) Register(ctx context.Context, userID string) error {
	history, err := a.opts.History.LoadHistory(ctx, userID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(history) > 0 {
		return nil
	}
	return a.opts.History.SaveHistory(ctx, userID, a.seed())
}

// Reset drops the conversation, keeping only the pinned instruction.
func (a *Assistant) Reset(ctx context.Context, userID string) error {
	return a.opts.History.SaveHistory(ctx, userID, a.seed())
}

// Reply runs text through the tool loop and returns the final answer. Only
// the user text and the final answer are added to the stored history.
func (a *Assistant) Reply(ctx context.Context, userID, text string) (string, error) {
	history, err := a.opts.History.LoadHistory(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	if pinned, _ := llm.Pinned(history); pinned == nil {
		history = append(a.seed(), history...)
	}

	history = append(history, llm.Message{Role: llm.RoleUser, Content: text})
	answer, err := a.run(ctx, llm.CapHistory(history, a.opts.HistoryTurns))
	if err != nil {
		return "", err
	}

	history = append(history, llm.Message{Role: llm.RoleAssistant, Content: answer})
	if err := a.opts.History.SaveHistory(ctx, userID, llm.CapHistory(history, a.opts.HistoryTurns)); err != nil {
		a.opts.Logger.Warn("saving chat history", "user", userID, "err", err)
	}
	return answer, nil
}

func (a *Assistant) run(ctx context.Context, messages []llm.Message) (string, error) {
	fixed := llm.EstimateTokens(llm.SystemPrompt) + llm.EstimateToolsTokens(llm.AssistantTools)
	budget := a.opts.MaxContextTokens - fixed
	if budget < 1000 {
		budget = 1000
	}

	for range maxToolRounds {
		trimmed := llm.TrimMessages(messages, budget)
		if len(trimmed) < len(messages) {
			a.opts.Logger.Debug("context trimmed", "from", len(messages), "to", len(trimmed))
		}
		resp, err := a.opts.Client.Chat(ctx, llm.SystemPrompt, trimmed, llm.AssistantTools)
		if err != nil {
			return "", fmt.Errorf("llm chat: %w", err)
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, tc := range resp.ToolCalls {
			result := a.executeTool(ctx, tc.Name, tc.Params)
			a.opts.Logger.Debug("tool", "name", tc.Name, "result", logging.Truncate(result, 200))
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: result, ToolCallID: tc.ID})
		}
	}
	return "", ErrToolRounds
}

func (a *Assistant) executeTool(ctx context.Context, name string, params map[string]any) string {
	var result any
	var err error
	now := a.opts.Now().In(a.opts.Location)

	switch name {
	case "get_time":
		result = map[string]any{
			"date":     now.Format("2006-01-02"),
			"time":     now.Format("15:04"),
			"weekday":  now.Weekday().String(),
			"timezone": a.opts.Location.String(),
		}

	case "get_day_summary":
		day, e := a.day(params, now)
		if e != nil {
			err = e
			break
		}
		result, err = a.daySummary(ctx, day)

	case "read_daily_log":
		if a.opts.Log == nil {
			err = errors.New("daily log is not configured")
			break
		}
		day, e := a.day(params, now)
		if e != nil {
			err = e
			break
		}
		content, e := a.opts.Log.Read(ctx, day.Format("2006-01-02"))
		if e != nil {
			err = e
		} else if content == "" {
			result = map[string]any{"content": "", "note": "no log for this day yet"}
		} else {
			result = map[string]any{"content": content}
		}

	case "add_todo", "add_note":
		text, _ := getString(params, "text")
		if text == "" {
			err = errors.New("text is required")
			break
		}
		if a.opts.Log == nil {
			err = errors.New("daily log is not configured")
			break
		}
		section, line := dailylog.Todo, "- [ ] "+text
		if name == "add_note" {
			section, line = dailylog.Notes, "- "+now.Format("15:04")+" "+text
		}
		err = a.opts.Log.AppendToSection(ctx, now.Format("2006-01-02"), section, []string{line})
		if err == nil {
			result = map[string]any{"status": "added"}
		}

	default:
		result = map[string]any{"error": "unknown tool: " + name}
	}

	if err != nil {
		result = map[string]any{"error": err.Error()}
	}
	b, _ := json.Marshal(result) // maps of strings and summaries only
	return string(b)
}

func (a *Assistant) day(params map[string]any, now time.Time) (time.Time, error) {
	s, ok := getString(params, "date")
	if !ok || s == "" {
		return now, nil
	}
	d, err := time.ParseInLocation("2006-01-02", s, a.opts.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

func (a *Assistant) daySummary(ctx context.Context, day time.Time) (any, error) {
	if a.opts.Calendar == nil || a.opts.Working == nil {
		return nil, errors.New("calendar is not configured")
	}
	events, err := a.opts.Calendar.ListDay(ctx, day)
	if err != nil {
		return nil, err
	}
	start, end := a.opts.Working(day)
	s := freebusy.Summarize(freebusy.Interval{Start: start, End: end}, events)
	return map[string]any{
		"summary":       s.Format(),
		"busy_minutes":  s.BusyMinutes,
		"spare_minutes": s.SpareMinutes,
	}, nil
}

func getString(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
