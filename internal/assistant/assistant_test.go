package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chris/daylog/internal/calendar"
	"github.com/chris/daylog/internal/dailylog"
	"github.com/chris/daylog/internal/llm"
)

type scriptedClient struct {
	responses []*llm.Response
	calls     [][]llm.Message
	err       error
}

func (c *scriptedClient) Chat(_ context.Context, _ string, messages []llm.Message, _ []llm.Tool) (*llm.Response, error) {
	c.calls = append(c.calls, append([]llm.Message(nil), messages...))
	if c.err != nil {
		return nil, c.err
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

type memHistory map[string][]llm.Message

func (m memHistory) LoadHistory(_ context.Context, id string) ([]llm.Message, error) {
	return m[id], nil
}

func (m memHistory) SaveHistory(_ context.Context, id string, h []llm.Message) error {
	m[id] = h
	return nil
}

type fakeCalendar struct{ events []calendar.Event }

func (f *fakeCalendar) ListDay(context.Context, time.Time) ([]calendar.Event, error) {
	return f.events, nil
}

func (f *fakeCalendar) CreateEvent(context.Context, string, time.Time, time.Time) (string, error) {
	return "", errors.New("not used")
}

type fakeLog struct{ lines map[dailylog.Section][]string }

func (f *fakeLog) AppendToSection(_ context.Context, _ string, s dailylog.Section, lines []string) error {
	if f.lines == nil {
		f.lines = map[dailylog.Section][]string{}
	}
	f.lines[s] = append(f.lines[s], lines...)
	return nil
}

func (f *fakeLog) Read(context.Context, string) (string, error) { return "", nil }

var fixedNow = time.Date(2026, 10, 14, 10, 30, 0, 0, time.UTC)

func newTest(client llm.Client, history memHistory) *Assistant {
	return New(Options{
		Client:       client,
		History:      history,
		Calendar:     &fakeCalendar{events: []calendar.Event{{Title: "Standup", Start: fixedNow, End: fixedNow.Add(time.Hour), CalendarID: "work"}}},
		Log:          &fakeLog{},
		Working:      func(d time.Time) (time.Time, time.Time) { return d.Add(-time.Hour), d.Add(7 * time.Hour) },
		Location:     time.UTC,
		Instruction:  "answer in 50 words",
		HistoryTurns: 4,
		Now:          func() time.Time { return fixedNow },
	})
}

func TestReply_SeedsPinnedTurnAndSavesHistory(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{{Content: "hello!"}}}
	history := memHistory{}
	a := newTest(client, history)

	got, err := a.Reply(context.Background(), "u1", "hi")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if got != "hello!" {
		t.Errorf("expected hello!, got %q", got)
	}

	sent := client.calls[0]
	if sent[0].Role != llm.RoleSystem || sent[0].Content != "answer in 50 words" {
		t.Errorf("expected pinned instruction first, got %+v", sent[0])
	}
	saved := history["u1"]
	if len(saved) != 3 || saved[1].Content != "hi" || saved[2].Content != "hello!" {
		t.Errorf("unexpected saved history %+v", saved)
	}
}

func TestReply_CapsHistory(t *testing.T) {
	client := &scriptedClient{}
	history := memHistory{}
	a := newTest(client, history)
	for i := 0; i < 5; i++ {
		client.responses = append(client.responses, &llm.Response{Content: "ok"})
		if _, err := a.Reply(context.Background(), "u1", "msg"); err != nil {
			t.Fatalf("reply %d: %v", i, err)
		}
	}
	if n := len(history["u1"]); n != 5 {
		t.Errorf("expected pinned + 4 messages, got %d", n)
	}
	for _, call := range client.calls {
		if len(call) > 5 {
			t.Errorf("sent %d messages, expected at most 5", len(call))
		}
	}
}

func TestReply_ToolLoop(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "get_day_summary", Params: map[string]any{}}}},
		{Content: "You have one hour booked."},
	}}
	history := memHistory{}
	a := newTest(client, history)

	got, err := a.Reply(context.Background(), "u1", "how busy am I?")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if got != "You have one hour booked." {
		t.Errorf("unexpected answer %q", got)
	}

	second := client.calls[1]
	result := second[len(second)-1]
	if result.ToolCallID != "c1" || !strings.Contains(result.Content, "Busy: 1h") {
		t.Errorf("expected tool result with the summary, got %+v", result)
	}
	for _, m := range history["u1"] {
		if m.ToolCallID != "" || len(m.ToolCalls) > 0 {
			t.Errorf("tool traffic should not be persisted: %+v", m)
		}
	}
}

func TestReply_ClientError(t *testing.T) {
	client := &scriptedClient{err: errors.New("rate limited")}
	history := memHistory{}
	a := newTest(client, history)
	if _, err := a.Reply(context.Background(), "u1", "hi"); err == nil {
		t.Fatal("expected an error")
	}
	if len(history["u1"]) != 0 {
		t.Errorf("history should be untouched on failure, got %+v", history["u1"])
	}
}

func TestReply_TooManyToolRounds(t *testing.T) {
	client := &scriptedClient{}
	for range maxToolRounds {
		client.responses = append(client.responses, &llm.Response{ToolCalls: []llm.ToolCall{{ID: "c", Name: "get_time"}}})
	}
	a := newTest(client, memHistory{})
	if _, err := a.Reply(context.Background(), "u1", "loop"); !errors.Is(err, ErrToolRounds) {
		t.Errorf("expected ErrToolRounds, got %v", err)
	}
}

func TestExecuteTool(t *testing.T) {
	a := newTest(&scriptedClient{}, memHistory{})
	ctx := context.Background()

	var tm map[string]string
	if err := json.Unmarshal([]byte(a.executeTool(ctx, "get_time", nil)), &tm); err != nil {
		t.Fatalf("get_time: %v", err)
	}
	if tm["date"] != "2026-10-14" || tm["time"] != "10:30" || tm["weekday"] != "Wednesday" {
		t.Errorf("unexpected get_time result %v", tm)
	}

	a.executeTool(ctx, "add_todo", map[string]any{"text": "taxes"})
	a.executeTool(ctx, "add_note", map[string]any{"text": "called the bank"})
	lines := a.opts.Log.(*fakeLog).lines
	if got := lines[dailylog.Todo]; len(got) != 1 || got[0] != "- [ ] taxes" {
		t.Errorf("unexpected todo lines %v", got)
	}
	if got := lines[dailylog.Notes]; len(got) != 1 || got[0] != "- 10:30 called the bank" {
		t.Errorf("unexpected note lines %v", got)
	}

	if got := a.executeTool(ctx, "add_todo", map[string]any{}); !strings.Contains(got, "text is required") {
		t.Errorf("expected validation error, got %s", got)
	}
	if got := a.executeTool(ctx, "get_day_summary", map[string]any{"date": "tomorrow"}); !strings.Contains(got, "invalid date") {
		t.Errorf("expected invalid date error, got %s", got)
	}
	if got := a.executeTool(ctx, "nope", nil); !strings.Contains(got, "unknown tool") {
		t.Errorf("expected unknown tool error, got %s", got)
	}
}

func TestRegisterAndReset(t *testing.T) {
	history := memHistory{}
	a := newTest(&scriptedClient{}, history)
	ctx := context.Background()

	if err := a.Register(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	history["u1"] = append(history["u1"], llm.Message{Role: llm.RoleUser, Content: "x"})
	if err := a.Register(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if len(history["u1"]) != 2 {
		t.Errorf("register must not overwrite an existing history, got %+v", history["u1"])
	}
	if err := a.Reset(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if len(history["u1"]) != 1 || history["u1"][0].Role != llm.RoleSystem {
		t.Errorf("reset should leave only the pinned turn, got %+v", history["u1"])
	}
}

func TestGetString(t *testing.T) {
	if v, ok := getString(map[string]any{"k": "v"}, "k"); !ok || v != "v" {
		t.Errorf("expected (v, true), got (%s, %v)", v, ok)
	}
	if _, ok := getString(map[string]any{"k": 1}, "k"); ok {
		t.Error("expected false for non-string value")
	}
	if _, ok := getString(nil, "k"); ok {
		t.Error("expected false for nil map")
	}
}
