package convo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/chris/daylog/internal/calendar"
	"github.com/chris/daylog/internal/classify"
	"github.com/chris/daylog/internal/dailylog"
	"github.com/chris/daylog/internal/freebusy"
	"github.com/chris/daylog/internal/logging"
	"github.com/chris/daylog/internal/metrics"
	"github.com/chris/daylog/internal/plan"
)

const dateLayout = "2006-01-02"

const (
	MorningPrompt = "Good morning. Reply with:\nMood: ...\nWorry: ...\nMust-do: ..."
	PlanPrompt    = "Send a plan like '" + PlanExample + "', or reply 'skip'."
)

// precedence is the order shapes are tried in when no wait state decides.
var precedence = []classify.Shape{classify.Morning, classify.Night, classify.PlanCandidate}

// LogStore is the append-only daily document.
type LogStore interface {
	AppendToSection(ctx context.Context, day string, section dailylog.Section, lines []string) error
}

// Chatter answers free text that is none of the known shapes.
type Chatter interface {
	Reply(ctx context.Context, userID, text string) (string, error)
	Register(ctx context.Context, userID string) error
	Reset(ctx context.Context, userID string) error
}

type Options struct {
	Store    StateStore
	Calendar calendar.Provider // optional
	Log      LogStore          // optional
	Chat     Chatter           // optional
	Working  func(day time.Time) (start, end time.Time)
	Location *time.Location
	NightAt  string // "21:00", shown in the night prompt
	Metrics  *metrics.Metrics
	Logger   *log.Logger
	Now      func() time.Time
}

type Machine struct {
	opts  Options
	locks userLocks
}

func New(opts Options) *Machine {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.NightAt == "" {
		opts.NightAt = "21:00"
	}
	return &Machine{opts: opts}
}

// Lock takes the user's critical section. Everything that reads and then
// writes a user's state runs under it.
func (m *Machine) Lock(userID string) (unlock func()) {
	return m.locks.lock(userID)
}

// Now is the machine's clock in the configured zone.
func (m *Machine) Now() time.Time {
	return m.opts.Now().In(m.opts.Location)
}

func (m *Machine) NightPrompt() string {
	return m.opts.NightAt + " check-in: How was today?"
}

// Prompt returns the text that opens a wait state.
func (m *Machine) Prompt(s State) string {
	switch s {
	case WaitMorning:
		return MorningPrompt
	case WaitNight:
		return m.NightPrompt()
	case WaitPlan:
		return PlanPrompt
	}
	return ""
}

// Handle runs one incoming message through the machine and returns the
// replies in order.
func (m *Machine) Handle(ctx context.Context, userID, text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	unlock := m.Lock(userID)
	defer unlock()

	t := m.newTurn(ctx, userID)
	st, err := m.opts.Store.GetUserState(ctx, userID)
	if err != nil {
		t.fail(collaborator(SubsystemState, "loading state", err))
		return t.out
	}
	t.state = st

	switch st.State {
	case WaitMorning:
		t.morningReply(text)
	case WaitPlanConfirm:
		t.confirm(text)
	case WaitNight:
		t.nightReply(text)
	case WaitPlan:
		t.waitPlan(text)
	default:
		t.idle(text)
	}
	m.opts.Metrics.RecordMessage(t.outcome)
	return t.out
}

// EnterState forces userID into s, dropping any pending plan.
func (m *Machine) EnterState(ctx context.Context, userID string, s State) error {
	unlock := m.Lock(userID)
	defer unlock()
	return m.EnterStateLocked(ctx, userID, s, m.Now())
}

// EnterStateLocked is EnterState for callers already holding Lock(userID).
func (m *Machine) EnterStateLocked(ctx context.Context, userID string, s State, now time.Time) error {
	if s == WaitPlanConfirm {
		return fmt.Errorf("enter %s: %w", s, ErrPendingPlan)
	}
	err := m.opts.Store.SetUserState(ctx, userID, UserState{State: s, LastDate: now.In(m.opts.Location).Format(dateLayout)})
	if err != nil {
		m.opts.Metrics.RecordCollaboratorFailure(SubsystemState)
		return collaborator(SubsystemState, "saving state", err)
	}
	return nil
}

// Status describes userID's state and pending plan.
func (m *Machine) Status(ctx context.Context, userID string) string {
	unlock := m.Lock(userID)
	defer unlock()
	st, err := m.opts.Store.GetUserState(ctx, userID)
	if err != nil {
		return collaborator(SubsystemState, "loading state", err).UserMessage()
	}
	out := "State: " + st.State.String()
	if st.PendingPlan != nil {
		out += "\nPending: " + st.PendingPlan.String()
	}
	if st.LastDate != "" {
		out += "\nLast activity: " + st.LastDate
	}
	return out
}

// Summary formats the free/busy summary of day.
func (m *Machine) Summary(ctx context.Context, day time.Time) (string, error) {
	s, f := m.summary(ctx, day)
	if f != nil {
		if f.Kind == CollaboratorFailure {
			m.opts.Metrics.RecordCollaboratorFailure(f.Subsystem)
		}
		return "", f
	}
	return s, nil
}

func (m *Machine) summary(ctx context.Context, day time.Time) (string, *Failure) {
	if m.opts.Calendar == nil || m.opts.Working == nil {
		return "", notConfigured(SubsystemCalendar)
	}
	events, err := m.opts.Calendar.ListDay(ctx, day)
	if err != nil {
		return "", collaborator(SubsystemCalendar, "calendar summary", err)
	}
	start, end := m.opts.Working(day)
	return freebusy.Summarize(freebusy.Interval{Start: start, End: end}, events).Format(), nil
}

// AddTodo appends an open item to today's Todo section.
func (m *Machine) AddTodo(ctx context.Context, text string) string {
	return m.appendToday(ctx, dailylog.Todo, "todo", "- [ ] "+text, "Added to todo.")
}

// AddNote appends a timestamped line to today's Notes section.
func (m *Machine) AddNote(ctx context.Context, text string) string {
	now := m.Now()
	return m.appendToday(ctx, dailylog.Notes, "note", "- "+now.Format("15:04")+" "+text, "Noted.")
}

func (m *Machine) appendToday(ctx context.Context, section dailylog.Section, action, line, ok string) string {
	if m.opts.Log == nil {
		return notConfigured(SubsystemLog).UserMessage()
	}
	if err := m.opts.Log.AppendToSection(ctx, m.Now().Format(dateLayout), section, []string{line}); err != nil {
		f := collaborator(SubsystemLog, action, err)
		m.opts.Logger.Warn("append failed", "section", section, "err", err)
		m.opts.Metrics.RecordCollaboratorFailure(SubsystemLog)
		return f.UserMessage()
	}
	return ok
}

// Register records first contact: the user's state row and chat history.
func (m *Machine) Register(ctx context.Context, userID string) error {
	unlock := m.Lock(userID)
	defer unlock()
	if _, err := m.opts.Store.GetUserState(ctx, userID); err != nil {
		return collaborator(SubsystemState, "loading state", err)
	}
	if m.opts.Chat != nil {
		if err := m.opts.Chat.Register(ctx, userID); err != nil {
			m.opts.Logger.Warn("seeding chat history", "user", userID, "err", err)
		}
	}
	return nil
}

// ResetChat clears userID's chat history.
func (m *Machine) ResetChat(ctx context.Context, userID string) error {
	if m.opts.Chat == nil {
		return notConfigured(SubsystemChat)
	}
	if err := m.opts.Chat.Reset(ctx, userID); err != nil {
		return collaborator(SubsystemChat, "history reset", err)
	}
	return nil
}

// turn is one transition. now is sampled once so every date inside the
// turn agrees.
type turn struct {
	m       *Machine
	ctx     context.Context
	user    string
	now     time.Time
	day     string
	state   UserState
	out     []string
	outcome string
}

func (m *Machine) newTurn(ctx context.Context, userID string) *turn {
	now := m.Now()
	return &turn{m: m, ctx: ctx, user: userID, now: now, day: now.Format(dateLayout), outcome: "chat"}
}

func (t *turn) say(lines ...string) {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			t.out = append(t.out, l)
		}
	}
}

func (t *turn) fail(f *Failure) {
	t.m.opts.Logger.Warn("handling message", "user", t.user, "kind", f.Kind, "subsystem", f.Subsystem, "err", f.Err)
	if f.Kind == CollaboratorFailure {
		t.m.opts.Metrics.RecordCollaboratorFailure(f.Subsystem)
	}
	t.say(f.UserMessage())
}

// transition persists the next state. A failed save is reported and the
// caller stops before any side effect.
func (t *turn) transition(next State, pending *plan.Plan) bool {
	st := UserState{State: next, PendingPlan: pending, LastDate: t.day}
	if err := t.m.opts.Store.SetUserState(t.ctx, t.user, st); err != nil {
		t.fail(collaborator(SubsystemState, "saving state", err))
		return false
	}
	t.state = st
	return true
}

func (t *turn) idle(text string) {
	res := classify.Classify(text)
	for _, shape := range precedence {
		if !res.Has(shape) {
			continue
		}
		switch shape {
		case classify.Morning:
			if t.transition(None, nil) && t.logMorning(text) {
				t.say("Morning logged.")
			}
		case classify.Night:
			if t.transition(None, nil) && t.logNight(text) {
				t.say("Saved. Good night.")
			}
		case classify.PlanCandidate:
			t.propose(text)
		}
		return
	}
	t.chat(text)
}

func (t *turn) morningReply(text string) {
	if !t.transition(WaitPlan, nil) {
		return
	}
	t.logMorning(text)
	if t.m.opts.Calendar != nil {
		summary, f := t.m.summary(t.ctx, t.now)
		if f != nil {
			t.fail(f)
		} else {
			t.say(summary)
		}
	}
	t.say(PlanPrompt)
}

func (t *turn) waitPlan(text string) {
	if classify.IsSkip(text) {
		if t.transition(None, nil) {
			t.outcome = "plan_skipped"
			t.say("OK, no plan added.")
		}
		return
	}

	a := plan.Analyze(text)
	if a.Time != nil {
		t.propose(text)
		return
	}
	if a.HasTimeToken() {
		t.outcome = "parse_failure"
		t.fail(&Failure{Kind: ParseFailure, Err: a.TimeErr})
		return
	}

	res := classify.Classify(text)
	switch {
	case res.Has(classify.Morning):
		if t.logMorning(text) {
			t.say("Morning logged.", PlanPrompt)
		}
	case res.Has(classify.Night):
		if t.logNight(text) {
			t.say("Check-in saved.", PlanPrompt)
		}
	default:
		t.chat(text)
	}
}

func (t *turn) propose(text string) {
	p, err := plan.Compile(text, t.now, t.m.opts.Location)
	if err != nil {
		t.outcome = "parse_failure"
		t.fail(&Failure{Kind: ParseFailure, Err: err})
		return
	}
	if !t.transition(WaitPlanConfirm, p) {
		return
	}
	t.outcome = "plan_proposed"
	t.m.opts.Metrics.RecordPlan("proposed")
	t.say("Create event?\n" + p.String() + "\nReply YES/NO.")
}

func (t *turn) confirm(text string) {
	yes, no := classify.IsYes(text), classify.IsNo(text)
	if !yes && !no {
		t.outcome = "confirm_reprompt"
		t.say("Please reply YES or NO.")
		return
	}

	// The plan is dropped before anything is attempted; a failure below
	// leaves the user in None.
	p := t.state.PendingPlan
	if !t.transition(None, nil) {
		return
	}
	if p == nil {
		t.say("No pending plan found.")
		return
	}
	if no {
		t.outcome = "plan_declined"
		t.m.opts.Metrics.RecordPlan("declined")
		t.say("Canceled.")
		return
	}

	t.outcome = "plan_confirmed"
	if t.m.opts.Calendar == nil {
		t.m.opts.Metrics.RecordPlan("failed")
		t.fail(notConfigured(SubsystemCalendar))
		return
	}
	start, end := p.Start.In(t.m.opts.Location), p.End.In(t.m.opts.Location)
	id, err := t.m.opts.Calendar.CreateEvent(t.ctx, p.Title, start, end)
	if err != nil {
		t.m.opts.Metrics.RecordPlan("failed")
		t.fail(collaborator(SubsystemCalendar, "event creation", err))
		return
	}
	t.m.opts.Metrics.RecordPlan("created")
	t.m.opts.Logger.Info("event created", "user", t.user, "id", id, "plan", p.String())

	line := "- " + start.Format("15:04") + "-" + end.Format("15:04") + " " + p.Title
	if t.appendLog(dailylog.Plan, "plan log", []string{line}) {
		t.say("Event created and logged.")
	} else {
		t.out = append([]string{"Event created."}, t.out...)
	}
}

func (t *turn) nightReply(text string) {
	if !t.transition(None, nil) {
		return
	}
	if t.logNight(text) {
		t.say("Saved. Good night.")
	}
}

func (t *turn) chat(text string) {
	t.outcome = "chat"
	if t.m.opts.Chat == nil {
		t.fail(notConfigured(SubsystemChat))
		return
	}
	reply, err := t.m.opts.Chat.Reply(t.ctx, t.user, text)
	if err != nil {
		t.fail(collaborator(SubsystemChat, "chat", err))
		return
	}
	t.say(reply)
}

func (t *turn) logMorning(text string) bool {
	t.outcome = "morning"
	f := classify.ParseMorning(text)
	return t.appendLog(dailylog.Morning, "morning log", []string{
		"- Mood: " + f.Mood,
		"- Worry: " + f.Worry,
		"- Must-do: " + f.MustDo,
	})
}

func (t *turn) logNight(text string) bool {
	t.outcome = "night"
	answer := strings.Join(strings.Fields(text), " ")
	return t.appendLog(dailylog.CheckIn, "night log", []string{"- How was today: " + answer})
}

func (t *turn) appendLog(section dailylog.Section, action string, lines []string) bool {
	if t.m.opts.Log == nil {
		t.fail(notConfigured(SubsystemLog))
		return false
	}
	if err := t.m.opts.Log.AppendToSection(t.ctx, t.day, section, lines); err != nil {
		t.fail(collaborator(SubsystemLog, action, err))
		return false
	}
	return true
}
