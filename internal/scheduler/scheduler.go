// Package scheduler sends the daily morning and night prompts, at most once
// per kind per day per chat.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"github.com/chris/daylog/config"
	"github.com/chris/daylog/internal/convo"
	"github.com/chris/daylog/internal/logging"
	"github.com/chris/daylog/internal/metrics"
)

// AdminChatKey is the app marker holding the chat registered by /start.
const AdminChatKey = "admin_chat_id"

var ErrNoDelivery = errors.New("no delivery method available")

type Kind int

const (
	Morning Kind = iota
	Night
)

func (k Kind) String() string {
	if k == Night {
		return "night"
	}
	return "morning"
}

func (k Kind) state() convo.State {
	if k == Night {
		return convo.WaitNight
	}
	return convo.WaitMorning
}

// MarkerKey is the app marker storing the last date k was sent to chatID.
func MarkerKey(k Kind, chatID string) string {
	return "last_" + k.String() + "_" + chatID
}

type Options struct {
	Machine     *convo.Machine
	Store       convo.StateStore // markers
	Location    *time.Location
	MorningAt   config.Clock
	NightAt     config.Clock
	CatchUp     time.Duration // 0 disables the catch-up sweep
	AdminChatID string        // configured admin chat, overrides the stored one

	DM      func(ctx context.Context, userID, content string) error // optional
	Webhook func(ctx context.Context, content string) error         // optional

	Timeout time.Duration // per fire
	Metrics *metrics.Metrics
	Logger  *log.Logger
}

type Scheduler struct {
	opts Options
	cron *cron.Cron
	ctx  context.Context
}

func New(opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Minute
	}
	cronLog := cron.PrintfLogger(opts.Logger.StandardLog())
	return &Scheduler{
		opts: opts,
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		ctx: context.Background(),
	}
}

type job struct {
	spec string
	run  func()
}

func dailySpec(c config.Clock) string {
	return fmt.Sprintf("%d %d * * *", c.Minute, c.Hour)
}

// Start registers the two daily triggers and the catch-up sweep. Fires stop
// once ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	jobs := []job{
		{dailySpec(s.opts.MorningAt), func() { s.run(Morning) }},
		{dailySpec(s.opts.NightAt), func() { s.run(Night) }},
	}
	if s.opts.CatchUp > 0 {
		jobs = append(jobs, job{"*/5 * * * *", s.catchUp})
	}
	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.spec, j.run); err != nil {
			return fmt.Errorf("scheduling %q: %w", j.spec, err)
		}
	}
	s.cron.Start()
	s.opts.Logger.Info("scheduler started", "morning", s.opts.MorningAt, "night", s.opts.NightAt, "tz", s.opts.Location)
	return nil
}

// Stop halts the triggers and waits for a running fire to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run(k Kind) {
	if s.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.Timeout)
	defer cancel()
	if _, err := s.Fire(ctx, k); err != nil {
		s.opts.Logger.Error("prompt failed", "kind", k, "err", err)
	}
}

// catchUp fires a prompt whose time passed within CatchUp and that has not
// been sent today, so a failed or missed send is retried the same day.
func (s *Scheduler) catchUp() {
	now := s.opts.Machine.Now()
	for _, k := range []Kind{Morning, Night} {
		if s.due(k, now) {
			s.run(k)
		}
	}
}

func (s *Scheduler) due(k Kind, now time.Time) bool {
	at := s.opts.MorningAt
	if k == Night {
		at = s.opts.NightAt
	}
	since := now.Sub(at.On(now, s.opts.Location))
	return since >= 0 && since < s.opts.CatchUp
}

// Fire sends the k prompt to the admin chat unless it was already sent
// today. The marker is advanced only after the send and the state change
// both succeed.
func (s *Scheduler) Fire(ctx context.Context, k Kind) (sent bool, err error) {
	chatID, err := AdminChat(ctx, s.opts.Store, s.opts.AdminChatID)
	if err != nil {
		return false, err
	}
	if chatID == "" {
		s.opts.Logger.Info("no admin chat registered, skipping prompt", "kind", k)
		s.opts.Metrics.RecordPrompt(k.String(), "no_chat")
		return false, nil
	}

	unlock := s.opts.Machine.Lock(chatID)
	defer unlock()

	now := s.opts.Machine.Now()
	today := now.Format("2006-01-02")
	key := MarkerKey(k, chatID)
	last, err := s.opts.Store.GetAppMarker(ctx, key)
	if err != nil {
		s.opts.Metrics.RecordPrompt(k.String(), "failed")
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	if last == today {
		s.opts.Metrics.RecordPrompt(k.String(), "skipped")
		return false, nil
	}

	if err := s.deliver(ctx, chatID, s.opts.Machine.Prompt(k.state())); err != nil {
		s.opts.Metrics.RecordPrompt(k.String(), "failed")
		return false, err
	}
	// Without the wait state the reply would not be read as an answer, so
	// the marker is withheld and the catch-up sweep sends the prompt again.
	if err := s.opts.Machine.EnterStateLocked(ctx, chatID, k.state(), now); err != nil {
		s.opts.Metrics.RecordPrompt(k.String(), "failed")
		return false, fmt.Errorf("setting %s state: %w", k, err)
	}
	if err := s.opts.Store.SetAppMarker(ctx, key, today); err != nil {
		s.opts.Logger.Error("recording prompt marker", "kind", k, "chat", chatID, "err", err)
	}
	s.opts.Metrics.RecordPrompt(k.String(), "sent")
	s.opts.Logger.Info("prompt sent", "kind", k, "chat", chatID)
	return true, nil
}

// deliver tries a DM first and falls back to the webhook.
func (s *Scheduler) deliver(ctx context.Context, chatID, content string) error {
	var dmErr error
	if s.opts.DM != nil {
		if dmErr = s.opts.DM(ctx, chatID, content); dmErr == nil {
			return nil
		}
		s.opts.Logger.Warn("DM send failed", "chat", chatID, "err", dmErr)
	}
	if s.opts.Webhook != nil {
		if err := s.opts.Webhook(ctx, content); err != nil {
			return errors.Join(dmErr, fmt.Errorf("webhook: %w", err))
		}
		return nil
	}
	if dmErr != nil {
		return dmErr
	}
	return ErrNoDelivery
}

// AdminChat returns the configured admin chat, else the one stored by
// /start, else "".
func AdminChat(ctx context.Context, store convo.StateStore, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	id, err := store.GetAppMarker(ctx, AdminChatKey)
	if err != nil {
		return "", fmt.Errorf("reading admin chat: %w", err)
	}
	return id, nil
}

// EnsureAdmin stores chatID as the admin chat when none is configured or
// stored yet, and returns the admin chat in effect.
func EnsureAdmin(ctx context.Context, store convo.StateStore, chatID, configured string) (string, error) {
	current, err := AdminChat(ctx, store, configured)
	if err != nil || current != "" {
		return current, err
	}
	if err := store.SetAppMarker(ctx, AdminChatKey, chatID); err != nil {
		return "", fmt.Errorf("storing admin chat: %w", err)
	}
	return chatID, nil
}
