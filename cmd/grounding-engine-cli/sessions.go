package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/storage"
)

// newSessionsCmd groups the transcript inspection commands.
func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect stored conversation transcripts",
	}
	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	cmd.AddCommand(newSessionsDeleteCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions with stored transcripts, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := app.OpenDatabase(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			sessions, err := storage.NewTranscriptRepository(db).Sessions(ctx, limit)
			if err != nil {
				return err
			}
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"sessions": sessions, "count": len(sessions)})
			}

			ui := NewUI(cmd.OutOrStdout(), false, noColor)
			if len(sessions) == 0 {
				ui.Info("No transcripts stored")
				return nil
			}
			rows := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				rows = append(rows, []string{
					s.SessionID,
					strconv.Itoa(s.Messages),
					s.FirstAt.Local().Format(time.DateTime),
					s.LastAt.Local().Format(time.DateTime),
				})
			}
			ui.Table([]string{"Session", "Messages", "Started", "Last message"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum sessions to list")
	return cmd
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print the transcript of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := app.OpenDatabase(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := storage.NewTranscriptRepository(db).ListBySession(ctx, args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("no transcript for session %s", args[0])
			}
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}

			ui := NewUI(cmd.OutOrStdout(), false, noColor)
			ui.Section("Session " + args[0])
			printTranscript(ui, entries)
			return nil
		},
	}
}

func printTranscript(ui *UI, entries []storage.TranscriptEntry) {
	user := color.New(color.FgCyan, color.Bold)
	assistant := color.New(color.FgGreen, color.Bold)
	for _, e := range entries {
		if e.Role == "user" {
			user.Fprintf(ui.out, "[%d] user: ", e.TurnIndex)
			fmt.Fprintln(ui.out, e.Content)
			continue
		}
		assistant.Fprintf(ui.out, "[%d] assistant: ", e.TurnIndex)
		fmt.Fprintln(ui.out, e.Content)
		if e.Route != "" {
			fmt.Fprintf(ui.out, "    route=%s type=%s confidence=%s\n", e.Route, e.AnswerType, e.Confidence)
		}
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete the stored transcript of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := app.OpenDatabase(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := storage.NewTranscriptRepository(db).DeleteSession(ctx, args[0])
			if err != nil {
				return err
			}
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"session_id": args[0], "deleted": n})
			}
			NewUI(cmd.OutOrStdout(), false, noColor).Success("Deleted %d messages", n)
			return nil
		},
	}
}
