package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris/daylog/internal/convo"
	"github.com/chris/daylog/internal/dailylog"
	"github.com/chris/daylog/internal/scheduler"
)

type memStore struct {
	mu      sync.Mutex
	users   map[string]convo.UserState
	markers map[string]string
}

func (s *memStore) GetUserState(_ context.Context, id string) (convo.UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id], nil
}

func (s *memStore) SetUserState(_ context.Context, id string, st convo.UserState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = st
	return nil
}

func (s *memStore) GetAppMarker(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markers[key], nil
}

func (s *memStore) SetAppMarker(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[key] = value
	return nil
}

type memLog struct{ lines map[dailylog.Section][]string }

func (l *memLog) AppendToSection(_ context.Context, _ string, s dailylog.Section, lines []string) error {
	l.lines[s] = append(l.lines[s], lines...)
	return nil
}

func newRouter(t *testing.T) (*Router, *memStore, *memLog) {
	t.Helper()
	store := &memStore{users: map[string]convo.UserState{}, markers: map[string]string{}}
	log := &memLog{lines: map[dailylog.Section][]string{}}
	m := convo.New(convo.Options{
		Store:    store,
		Log:      log,
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2026, 10, 14, 12, 5, 0, 0, time.UTC) },
	})
	return New(Options{Machine: m, Store: store}), store, log
}

func TestParse(t *testing.T) {
	tests := []struct {
		in        string
		name, arg string
		ok        bool
	}{
		{"/todo buy milk", "todo", "buy milk", true},
		{"!Note  slept badly ", "note", "slept badly", true},
		{"/start@daylog_bot", "start", "", true},
		{"/help", "help", "", true},
		{"3pm 2h Lombard", "", "", false},
		{"/", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		name, arg, ok := Parse(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.name, name, tt.in)
		assert.Equal(t, tt.arg, arg, tt.in)
	}
}

func TestDispatch_Start(t *testing.T) {
	r, store, _ := newRouter(t)
	ctx := context.Background()

	out := r.Dispatch(ctx, "u1", "/start")
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "You will receive daily prompts")
	assert.Equal(t, "u1", store.markers[scheduler.AdminChatKey])

	out = r.Dispatch(ctx, "u2", "/start")
	assert.Contains(t, out[0], "another chat")
	assert.Equal(t, "u1", store.markers[scheduler.AdminChatKey])
}

func TestDispatch_ManualPromptKeepsMarker(t *testing.T) {
	r, store, _ := newRouter(t)
	out := r.Dispatch(context.Background(), "u1", "/morning")
	assert.Equal(t, []string{convo.MorningPrompt}, out)
	assert.Equal(t, convo.WaitMorning, store.users["u1"].State)
	assert.Empty(t, store.markers[scheduler.MarkerKey(scheduler.Morning, "u1")])

	out = r.Dispatch(context.Background(), "u1", "/night")
	assert.Equal(t, []string{"21:00 check-in: How was today?"}, out)
	assert.Equal(t, convo.WaitNight, store.users["u1"].State)
}

func TestDispatch_TodoNote(t *testing.T) {
	r, _, log := newRouter(t)
	ctx := context.Background()
	assert.Equal(t, []string{"Usage: /todo <text>"}, r.Dispatch(ctx, "u1", "/todo"))
	assert.Equal(t, []string{"Added to todo."}, r.Dispatch(ctx, "u1", "/todo call mom"))
	assert.Equal(t, []string{"Noted."}, r.Dispatch(ctx, "u1", "!note lunch was late"))
	assert.Equal(t, []string{"- [ ] call mom"}, log.lines[dailylog.Todo])
	assert.Equal(t, []string{"- 12:05 lunch was late"}, log.lines[dailylog.Notes])
}

func TestDispatch_Misc(t *testing.T) {
	r, _, _ := newRouter(t)
	ctx := context.Background()
	assert.Equal(t, []string{HelpText}, r.Dispatch(ctx, "u1", "/help"))
	assert.Equal(t, []string{"State: NONE"}, r.Dispatch(ctx, "u1", "/status"))
	assert.Equal(t, []string{"Calendar is not configured."}, r.Dispatch(ctx, "u1", "/summary"))
	assert.Equal(t, []string{"Chat is not configured. Send a plan like '3pm 2h Lombard', or use /help."}, r.Dispatch(ctx, "u1", "/reset"))
	assert.Equal(t, []string{"Unknown command. Try /help."}, r.Dispatch(ctx, "u1", "/dance"))
}

func TestDispatch_FreeTextGoesToMachine(t *testing.T) {
	r, store, _ := newRouter(t)
	out := r.Dispatch(context.Background(), "u1", "3pm 2h Lombard")
	assert.Equal(t, []string{"Create event?\n15:00-17:00 Lombard\nReply YES/NO."}, out)
	assert.Equal(t, convo.WaitPlanConfirm, store.users["u1"].State)
}
