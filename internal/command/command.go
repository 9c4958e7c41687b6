// Package command routes "/verb args" messages to the conversation machine
// and hands everything else to it as free text.
package command

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/chris/daylog/internal/convo"
	"github.com/chris/daylog/internal/logging"
	"github.com/chris/daylog/internal/scheduler"
)

const HelpText = "Commands:\n" +
	"/start - register for daily prompts\n" +
	"/help\n" +
	"/summary - today's calendar\n" +
	"/status - conversation state\n" +
	"/morning, /night - answer a prompt now\n" +
	"/todo <text>, /note <text>\n" +
	"/reset - clear chat history\n\n" +
	"Plan example: " + convo.PlanExample

type Options struct {
	Machine     *convo.Machine
	Store       convo.StateStore
	AdminChatID string
	Logger      *log.Logger
}

type Router struct {
	opts Options
}

func New(opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Router{opts: opts}
}

// Parse splits "/todo buy milk" into ("todo", "buy milk"). Both "/" and "!"
// prefixes are accepted, and a "@botname" suffix on the verb is dropped.
func Parse(text string) (name, arg string, ok bool) {
	text = strings.TrimSpace(text)
	if len(text) < 2 || (text[0] != '/' && text[0] != '!') {
		return "", "", false
	}
	verb, rest, _ := strings.Cut(text[1:], " ")
	if i := strings.IndexByte(verb, '\n'); i >= 0 {
		verb, rest = verb[:i], verb[i+1:]+" "+rest
	}
	verb, _, _ = strings.Cut(verb, "@")
	if verb == "" {
		return "", "", false
	}
	return strings.ToLower(verb), strings.TrimSpace(rest), true
}

// Dispatch answers one message from userID.
func (r *Router) Dispatch(ctx context.Context, userID, text string) []string {
	name, arg, ok := Parse(text)
	if !ok {
		return r.opts.Machine.Handle(ctx, userID, text)
	}
	m := r.opts.Machine

	switch name {
	case "start":
		return []string{r.start(ctx, userID)}
	case "help":
		return []string{HelpText}
	case "status":
		return []string{m.Status(ctx, userID)}
	case "summary":
		summary, err := m.Summary(ctx, m.Now())
		if err != nil {
			r.opts.Logger.Warn("summary failed", "user", userID, "err", err)
			return []string{convo.UserMessage(err)}
		}
		return []string{summary}
	case "morning", "night":
		// Manual prompts set the state only; the daily marker is untouched.
		state := convo.WaitMorning
		if name == "night" {
			state = convo.WaitNight
		}
		if err := m.EnterState(ctx, userID, state); err != nil {
			return []string{convo.UserMessage(err)}
		}
		return []string{m.Prompt(state)}
	case "todo":
		if arg == "" {
			return []string{"Usage: /todo <text>"}
		}
		return []string{m.AddTodo(ctx, arg)}
	case "note":
		if arg == "" {
			return []string{"Usage: /note <text>"}
		}
		return []string{m.AddNote(ctx, arg)}
	case "reset":
		if err := m.ResetChat(ctx, userID); err != nil {
			return []string{convo.UserMessage(err)}
		}
		return []string{"Chat history cleared."}
	}
	return []string{"Unknown command. Try /help."}
}

func (r *Router) start(ctx context.Context, userID string) string {
	if err := r.opts.Machine.Register(ctx, userID); err != nil {
		return convo.UserMessage(err)
	}
	admin, err := scheduler.EnsureAdmin(ctx, r.opts.Store, userID, r.opts.AdminChatID)
	if err != nil {
		r.opts.Logger.Error("registering admin chat", "user", userID, "err", err)
		return "Connected, but daily prompts could not be registered."
	}
	if admin != userID {
		return "Connected. Daily prompts go to another chat.\nUse /summary for today, and send a plan like '" + convo.PlanExample + "'."
	}
	return "Connected. You will receive daily prompts.\nUse /summary for today, and send a plan like '" + convo.PlanExample + "'."
}
