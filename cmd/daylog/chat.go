package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant from the terminal",
		Long:  "Reads messages from stdin and runs them through the same commands and conversation flow as the bot.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return chat(cmd.Context(), a, userID, os.Stdin, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "local", "user id the conversation state is stored under")
	return cmd
}

func chat(ctx context.Context, a *app, userID string, in *os.File, out io.Writer) error {
	// Check if stdin is a pipe (non-interactive)
	stat, _ := in.Stat()
	interactive := stat != nil && stat.Mode()&os.ModeCharDevice != 0

	prompt := func() {
		if interactive {
			fmt.Fprint(out, "daylog> ")
		}
	}

	scanner := bufio.NewScanner(in)
	prompt()
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "exit" || input == "quit" {
			break
		}
		if input != "" {
			turnCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			for _, reply := range a.router.Dispatch(turnCtx, userID, input) {
				fmt.Fprintln(out, reply)
			}
			cancel()
		}
		prompt()
	}
	return scanner.Err()
}

func newSummaryCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the calendar summary for a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			day := a.machine.Now()
			if date != "" {
				day, err = time.ParseInLocation("2006-01-02", date, a.cfg.Location)
				if err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
			}
			text, err := a.machine.Summary(cmd.Context(), day)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day as YYYY-MM-DD (default today)")
	return cmd
}
