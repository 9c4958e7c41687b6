package convo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris/daylog/internal/calendar"
	"github.com/chris/daylog/internal/dailylog"
	"github.com/chris/daylog/internal/plan"
)

var tz = time.FixedZone("PDT", -7*3600)

type memStore struct {
	mu      sync.Mutex
	users   map[string]UserState
	markers map[string]string
	setErr  error
}

func newMemStore() *memStore {
	return &memStore{users: map[string]UserState{}, markers: map[string]string{}}
}

func (s *memStore) GetUserState(_ context.Context, id string) (UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.users[id]
	if !ok {
		s.users[id] = UserState{}
	}
	return st, nil
}

func (s *memStore) SetUserState(_ context.Context, id string, st UserState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	if err := st.Validate(); err != nil {
		return err
	}
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

type createdEvent struct {
	title      string
	start, end time.Time
}

type fakeCalendar struct {
	events    []calendar.Event
	created   []createdEvent
	createErr error
	listErr   error
}

func (f *fakeCalendar) ListDay(context.Context, time.Time) ([]calendar.Event, error) {
	return f.events, f.listErr
}

func (f *fakeCalendar) CreateEvent(_ context.Context, title string, start, end time.Time) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, createdEvent{title, start, end})
	return "evt1", nil
}

type fakeLog struct {
	lines map[dailylog.Section][]string
	days  []string
	err   error
}

func (f *fakeLog) AppendToSection(_ context.Context, day string, s dailylog.Section, lines []string) error {
	if f.err != nil {
		return f.err
	}
	if f.lines == nil {
		f.lines = map[dailylog.Section][]string{}
	}
	f.days = append(f.days, day)
	f.lines[s] = append(f.lines[s], lines...)
	return nil
}

type fakeChat struct {
	reply    string
	err      error
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (c *fakeChat) Reply(context.Context, string, string) (string, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		m := c.maxSeen.Load()
		if n <= m || c.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return c.reply, c.err
}

func (c *fakeChat) Register(context.Context, string) error { return nil }
func (c *fakeChat) Reset(context.Context, string) error    { return nil }

type fixture struct {
	m        *Machine
	store    *memStore
	cal      *fakeCalendar
	log      *fakeLog
	nowCalls atomic.Int32
}

func newFixture(t *testing.T, opts ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{store: newMemStore(), cal: &fakeCalendar{}, log: &fakeLog{}}
	o := Options{
		Store:    f.store,
		Calendar: f.cal,
		Log:      f.log,
		Location: tz,
		Working: func(day time.Time) (time.Time, time.Time) {
			d := day.In(tz)
			start := time.Date(d.Year(), d.Month(), d.Day(), 9, 0, 0, 0, tz)
			return start, start.Add(12 * time.Hour)
		},
		Now: func() time.Time {
			f.nowCalls.Add(1)
			return time.Date(2026, 10, 14, 8, 45, 0, 0, tz)
		},
	}
	for _, fn := range opts {
		fn(&o)
	}
	f.m = New(o)
	return f
}

func (f *fixture) state(t *testing.T, id string) UserState {
	t.Helper()
	st, err := f.store.GetUserState(context.Background(), id)
	require.NoError(t, err)
	return st
}

func TestPlanThenConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out := f.m.Handle(ctx, "u1", "3pm 2h Lombard")
	require.Equal(t, []string{"Create event?\n15:00-17:00 Lombard\nReply YES/NO."}, out)

	st := f.state(t, "u1")
	require.Equal(t, WaitPlanConfirm, st.State)
	require.NotNil(t, st.PendingPlan)
	assert.Equal(t, "Lombard", st.PendingPlan.Title)
	assert.Equal(t, 120, st.PendingPlan.DurationMinutes)
	assert.Equal(t, time.Date(2026, 10, 14, 15, 0, 0, 0, tz), st.PendingPlan.Start.In(tz))

	out = f.m.Handle(ctx, "u1", "yes")
	assert.Equal(t, []string{"Event created and logged."}, out)
	require.Len(t, f.cal.created, 1)
	assert.Equal(t, "Lombard", f.cal.created[0].title)
	assert.Equal(t, 2*time.Hour, f.cal.created[0].end.Sub(f.cal.created[0].start))
	assert.Equal(t, []string{"- 15:00-17:00 Lombard"}, f.log.lines[dailylog.Plan])

	st = f.state(t, "u1")
	assert.Equal(t, None, st.State)
	assert.Nil(t, st.PendingPlan)
	assert.Equal(t, "2026-10-14", st.LastDate)
}

func TestMorningReply(t *testing.T) {
	f := newFixture(t)
	f.cal.events = []calendar.Event{{
		Title:      "Standup",
		Start:      time.Date(2026, 10, 14, 10, 0, 0, 0, tz),
		End:        time.Date(2026, 10, 14, 10, 30, 0, 0, tz),
		CalendarID: "work",
	}}
	f.store.users["u1"] = UserState{State: WaitMorning}

	out := f.m.Handle(context.Background(), "u1", "Mood: tired\nWorry: deadline\nMust-do: ship")

	assert.Equal(t, []string{"- Mood: tired", "- Worry: deadline", "- Must-do: ship"}, f.log.lines[dailylog.Morning])
	assert.Equal(t, []string{"2026-10-14"}, f.log.days)
	assert.Equal(t, WaitPlan, f.state(t, "u1").State)
	require.Len(t, out, 2)
	assert.True(t, strings.HasPrefix(out[0], "Today\nWorking window: 09:00-21:00"), out[0])
	assert.Contains(t, out[0], "Busy: 30m")
	assert.Equal(t, PlanPrompt, out[1])
	assert.Equal(t, int32(1), f.nowCalls.Load(), "one clock sample per transition")
}

func TestMorningReply_LogFailureStillAdvances(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Calendar = nil })
	f.log.err = errors.New("github: 502")
	f.store.users["u1"] = UserState{State: WaitMorning}

	out := f.m.Handle(context.Background(), "u1", "fine")
	assert.Equal(t, []string{"Morning log failed. Check daily log config.", PlanPrompt}, out)
	assert.Equal(t, WaitPlan, f.state(t, "u1").State)
}

func TestIdle_MorningBeatsPlan(t *testing.T) {
	f := newFixture(t)
	out := f.m.Handle(context.Background(), "u1", "Mood: ok\nMust-do: call bank at 3pm")

	assert.Equal(t, []string{"Morning logged."}, out)
	assert.Len(t, f.log.lines[dailylog.Morning], 3)
	assert.Equal(t, "- Must-do: call bank at 3pm", f.log.lines[dailylog.Morning][2])
	st := f.state(t, "u1")
	assert.Equal(t, None, st.State)
	assert.Nil(t, st.PendingPlan)
}

func TestIdle_Night(t *testing.T) {
	f := newFixture(t)
	out := f.m.Handle(context.Background(), "u1", "Daily retro: shipped the parser")
	assert.Equal(t, []string{"Saved. Good night."}, out)
	assert.Equal(t, []string{"- How was today: Daily retro: shipped the parser"}, f.log.lines[dailylog.CheckIn])
}

func TestIdle_InvalidTimeIsParseFailure(t *testing.T) {
	f := newFixture(t)
	out := f.m.Handle(context.Background(), "u1", "25:00 gym")
	assert.Equal(t, []string{"Could not parse. Example: 3pm 2h Lombard"}, out)
	assert.Equal(t, None, f.state(t, "u1").State)
}

func TestIdle_OverlongPlanIsParseFailure(t *testing.T) {
	f := newFixture(t)
	out := f.m.Handle(context.Background(), "u1", "3pm 99999999999999m x")
	assert.Equal(t, []string{"Could not parse. Example: 3pm 2h Lombard"}, out)
	assert.Equal(t, None, f.state(t, "u1").State)
}

func TestIdle_ChatFallback(t *testing.T) {
	chat := &fakeChat{reply: "Hi there!"}
	f := newFixture(t, func(o *Options) { o.Chat = chat })
	assert.Equal(t, []string{"Hi there!"}, f.m.Handle(context.Background(), "u1", "hello"))
}

func TestIdle_QuestionWithNumberGoesToChat(t *testing.T) {
	chat := &fakeChat{reply: "Sure."}
	f := newFixture(t, func(o *Options) { o.Chat = chat })
	assert.Equal(t, []string{"Sure."}, f.m.Handle(context.Background(), "u1", "Can you give me 2 tips?"))
	assert.Equal(t, None, f.state(t, "u1").State)
}

func TestIdle_ChatNotConfigured(t *testing.T) {
	f := newFixture(t)
	out := f.m.Handle(context.Background(), "u1", "hello")
	assert.Equal(t, []string{"Chat is not configured. Send a plan like '3pm 2h Lombard', or use /help."}, out)
}

func TestIdle_ChatFailure(t *testing.T) {
	chat := &fakeChat{err: errors.New("timeout")}
	f := newFixture(t, func(o *Options) { o.Chat = chat })
	assert.Equal(t, []string{"Chat failed. Check chat config."}, f.m.Handle(context.Background(), "u1", "hello"))
	assert.Equal(t, None, f.state(t, "u1").State)
}

func pendingLombard() *plan.Plan {
	start := time.Date(2026, 10, 14, 15, 0, 0, 0, tz)
	return &plan.Plan{Title: "Lombard", Start: start, End: start.Add(2 * time.Hour), DurationMinutes: 120, RawText: "3pm 2h Lombard"}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    []string
		state   State
		created int
	}{
		{"yes", "YES", []string{"Event created and logged."}, None, 1},
		{"chinese yes", "好的", []string{"Event created and logged."}, None, 1},
		{"no", "no", []string{"Canceled."}, None, 0},
		{"unclear", "maybe later", []string{"Please reply YES or NO."}, WaitPlanConfirm, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.users["u1"] = UserState{State: WaitPlanConfirm, PendingPlan: pendingLombard()}

			assert.Equal(t, tt.want, f.m.Handle(context.Background(), "u1", tt.text))
			assert.Equal(t, tt.state, f.state(t, "u1").State)
			assert.Len(t, f.cal.created, tt.created)
		})
	}
}

func TestConfirm_CalendarFailureReturnsToNone(t *testing.T) {
	f := newFixture(t)
	f.cal.createErr = errors.New("403 forbidden")
	f.store.users["u1"] = UserState{State: WaitPlanConfirm, PendingPlan: pendingLombard()}

	out := f.m.Handle(context.Background(), "u1", "yes")
	assert.Equal(t, []string{"Event creation failed. Check calendar config."}, out)
	st := f.state(t, "u1")
	assert.Equal(t, None, st.State)
	assert.Nil(t, st.PendingPlan)
	assert.Empty(t, f.log.lines[dailylog.Plan])
}

func TestConfirm_NoPlanCalendarIsConfiguration(t *testing.T) {
	f := newFixture(t)
	f.cal.createErr = calendar.ErrNoPlanCalendar
	f.store.users["u1"] = UserState{State: WaitPlanConfirm, PendingPlan: pendingLombard()}

	out := f.m.Handle(context.Background(), "u1", "yes")
	assert.Equal(t, []string{"Calendar is not configured."}, out)
}

func TestConfirm_LogFailureAfterEvent(t *testing.T) {
	f := newFixture(t)
	f.log.err = errors.New("conflict")
	f.store.users["u1"] = UserState{State: WaitPlanConfirm, PendingPlan: pendingLombard()}

	out := f.m.Handle(context.Background(), "u1", "y")
	assert.Equal(t, []string{"Event created.", "Plan log failed. Check daily log config."}, out)
	assert.Len(t, f.cal.created, 1)
}

func TestConfirm_StateSaveFailureSkipsEvent(t *testing.T) {
	f := newFixture(t)
	f.store.users["u1"] = UserState{State: WaitPlanConfirm, PendingPlan: pendingLombard()}
	f.store.setErr = errors.New("disk full")

	out := f.m.Handle(context.Background(), "u1", "yes")
	assert.Equal(t, []string{"Saving state failed. Check state store config."}, out)
	assert.Empty(t, f.cal.created)
}

func TestWaitPlan(t *testing.T) {
	chat := &fakeChat{reply: "sure"}
	tests := []struct {
		name  string
		text  string
		want  []string
		state State
	}{
		{"skip", "skip", []string{"OK, no plan added."}, None},
		{"chinese skip", "跳过", []string{"OK, no plan added."}, None},
		{"plan", "下午3点 1个半小时 写报告", []string{"Create event?\n15:00-16:30 写报告\nReply YES/NO."}, WaitPlanConfirm},
		{"default duration", "4pm gym", []string{"Create event?\n16:00-17:00 gym\nReply YES/NO."}, WaitPlanConfirm},
		{"invalid time", "3:75 call", []string{"Could not parse. Example: 3pm 2h Lombard"}, WaitPlan},
		{"chat", "what should I do?", []string{"sure"}, WaitPlan},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(o *Options) { o.Chat = chat })
			f.store.users["u1"] = UserState{State: WaitPlan}
			assert.Equal(t, tt.want, f.m.Handle(context.Background(), "u1", tt.text))
			assert.Equal(t, tt.state, f.state(t, "u1").State)
		})
	}
}

func TestWaitPlan_NightShapeLogsAndStays(t *testing.T) {
	f := newFixture(t)
	f.store.users["u1"] = UserState{State: WaitPlan}
	out := f.m.Handle(context.Background(), "u1", "quick retro: slow start")
	assert.Equal(t, []string{"Check-in saved.", PlanPrompt}, out)
	assert.Equal(t, WaitPlan, f.state(t, "u1").State)
	assert.Len(t, f.log.lines[dailylog.CheckIn], 1)
}

func TestNightReply(t *testing.T) {
	f := newFixture(t)
	f.store.users["u1"] = UserState{State: WaitNight}
	out := f.m.Handle(context.Background(), "u1", "pretty good\nshipped it")
	assert.Equal(t, []string{"Saved. Good night."}, out)
	assert.Equal(t, []string{"- How was today: pretty good shipped it"}, f.log.lines[dailylog.CheckIn])
	assert.Equal(t, None, f.state(t, "u1").State)
}

func TestHandle_EmptyText(t *testing.T) {
	f := newFixture(t)
	assert.Nil(t, f.m.Handle(context.Background(), "u1", "   "))
}

func TestHandle_SerializesPerUser(t *testing.T) {
	chat := &fakeChat{reply: "ok"}
	f := newFixture(t, func(o *Options) { o.Chat = chat })

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.m.Handle(context.Background(), "u1", "hello")
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), chat.maxSeen.Load())
	assert.Empty(t, f.m.locks.locks, "idle locks are released")
}

func TestEnterState(t *testing.T) {
	f := newFixture(t)
	f.store.users["u1"] = UserState{State: WaitPlanConfirm, PendingPlan: pendingLombard()}

	require.NoError(t, f.m.EnterState(context.Background(), "u1", WaitNight))
	st := f.state(t, "u1")
	assert.Equal(t, WaitNight, st.State)
	assert.Nil(t, st.PendingPlan)
	assert.Equal(t, "2026-10-14", st.LastDate)

	assert.ErrorIs(t, f.m.EnterState(context.Background(), "u1", WaitPlanConfirm), ErrPendingPlan)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.store.users["u1"] = UserState{State: WaitPlanConfirm, PendingPlan: pendingLombard(), LastDate: "2026-10-14"}
	assert.Equal(t, "State: WAIT_PLAN_CONFIRM\nPending: 15:00-17:00 Lombard\nLast activity: 2026-10-14", f.m.Status(context.Background(), "u1"))
	assert.Equal(t, "State: NONE", f.m.Status(context.Background(), "u2"))
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	f.cal.listErr = errors.New("boom")
	_, err := f.m.Summary(context.Background(), f.m.Now())
	assert.Equal(t, "Calendar summary failed. Check calendar config.", UserMessage(err))

	g := newFixture(t, func(o *Options) { o.Calendar = nil })
	_, err = g.m.Summary(context.Background(), g.m.Now())
	var fail *Failure
	require.ErrorAs(t, err, &fail)
	assert.Equal(t, ConfigurationFailure, fail.Kind)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTodoAndNote(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "Added to todo.", f.m.AddTodo(context.Background(), "renew passport"))
	assert.Equal(t, "Noted.", f.m.AddNote(context.Background(), "slept badly"))
	assert.Equal(t, []string{"- [ ] renew passport"}, f.log.lines[dailylog.Todo])
	assert.Equal(t, []string{"- 08:45 slept badly"}, f.log.lines[dailylog.Notes])

	g := newFixture(t, func(o *Options) { o.Log = nil })
	assert.Equal(t, "Daily log is not configured.", g.m.AddTodo(context.Background(), "x"))
}

func TestPrompts(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.NightAt = "22:30" })
	assert.Equal(t, MorningPrompt, f.m.Prompt(WaitMorning))
	assert.Equal(t, "22:30 check-in: How was today?", f.m.Prompt(WaitNight))
	assert.Empty(t, f.m.Prompt(None))
}
