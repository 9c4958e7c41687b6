package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chris/daylog/internal/discord"
	"github.com/chris/daylog/internal/scheduler"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and send the daily prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx)
		},
	}
}

func run(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.DiscordToken == "" {
		return errors.New("DISCORD_BOT_TOKEN is not set; use `daylog chat` to run locally")
	}

	bot, err := discord.NewBot(a.cfg.DiscordToken, discord.Options{
		Router: a.router,
		Logger: a.logger.WithPrefix("discord"),
	})
	if err != nil {
		return err
	}
	defer bot.Close()

	sopts := scheduler.Options{
		Machine:     a.machine,
		Store:       a.store,
		Location:    a.cfg.Location,
		MorningAt:   a.cfg.MorningPromptAt,
		NightAt:     a.cfg.NightPromptAt,
		CatchUp:     a.cfg.PromptCatchUp,
		AdminChatID: a.cfg.AdminChatID,
		DM:          bot.SendDM,
		Timeout:     a.cfg.CollaboratorTimeout * 2,
		Metrics:     a.metrics,
		Logger:      a.logger.WithPrefix("scheduler"),
	}
	if a.cfg.DiscordWebhook != "" {
		sopts.Webhook = discord.NewWebhook(a.cfg.DiscordWebhook, a.cfg.CollaboratorTimeout).Post
	}
	sched := scheduler.New(sopts)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	g, ctx := errgroup.WithContext(ctx)
	if a.cfg.MetricsAddr != "" {
		g.Go(func() error {
			return a.metrics.Serve(ctx, a.cfg.MetricsAddr, a.logger.WithPrefix("metrics"))
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	a.logger.Info("bot is running, press Ctrl+C to exit")
	err = g.Wait()
	a.logger.Info("shutting down")
	return err
}
