package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/chat"
)

func newChatCmd() *cobra.Command {
	var (
		sessionID  string
		showReport bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the grounding router",
		Long: `Chat sends messages through the conversational router. Each turn either
answers from retrieved context, asks a clarification question, or abstains.

With a message argument a single turn is run. Without one an interactive
session starts; type /new for a fresh session, /report to toggle the
context-utilization report, and /quit to leave.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sp := NewSpinner("Loading corpus", outputJSON)
			sp.Start()
			a, err := openApp(ctx, app.Options{})
			sp.Stop()
			if err != nil {
				return err
			}
			defer a.Close()

			ui := NewUI(cmd.OutOrStdout(), outputJSON, noColor)
			if len(args) == 1 {
				reply, err := turn(ctx, a.Chat, sessionID, args[0])
				if err != nil {
					return err
				}
				return showReply(cmd.OutOrStdout(), ui, reply, showReport)
			}

			r := &repl{chat: a.Chat, ui: ui, out: cmd.OutOrStdout(), sessionID: sessionID, showReport: showReport}
			return r.run(ctx, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "continue an existing session")
	cmd.Flags().BoolVar(&showReport, "report", false, "print the context-utilization report after answers")

	return cmd
}

func turn(ctx context.Context, svc *chat.Service, sessionID, message string) (*chat.Reply, error) {
	sp := NewSpinner("Thinking", outputJSON)
	sp.Start()
	defer sp.Stop()
	return svc.Chat(ctx, sessionID, message)
}

func showReply(out io.Writer, ui *UI, reply *chat.Reply, withReport bool) error {
	if outputJSON {
		return writeJSON(out, reply)
	}
	ui.RenderReply(reply)
	if withReport && reply.Report != nil {
		ui.RenderReport(reply.Answer, reply.Report)
	}
	return nil
}

// repl runs the interactive chat loop.
type repl struct {
	chat       *chat.Service
	ui         *UI
	out        io.Writer
	sessionID  string
	showReport bool
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	prompt := color.New(color.FgCyan, color.Bold).SprintFunc()
	if !outputJSON {
		r.ui.Info("Type a question. /new starts over, /report toggles scoring, /quit exits.")
	}

	scanner := bufio.NewScanner(in)
	for {
		if !outputJSON {
			fmt.Fprint(r.out, prompt("you> "))
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/new":
			r.sessionID = ""
			r.ui.Step("New session")
			continue
		case "/report":
			r.showReport = !r.showReport
			r.ui.Step("Report %s", map[bool]string{true: "on", false: "off"}[r.showReport])
			continue
		}

		reply, err := turn(ctx, r.chat, r.sessionID, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			r.ui.Error("%v", err)
			continue
		}
		if r.sessionID == "" {
			r.sessionID = reply.SessionID
			r.ui.Step("Session %s", reply.SessionID)
		}
		if err := showReply(r.out, r.ui, reply, r.showReport); err != nil {
			return err
		}
	}
	return scanner.Err()
}
