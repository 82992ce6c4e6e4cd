package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hupe1980/edumesh"
	"github.com/hupe1980/edumesh/tutor"
)

func newAskCmd(flags *rootFlags) *cobra.Command {
	var (
		sessionID string
		userID    string
	)

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Ask the tutor a question",
		Long: `Sends one message to the tutor and prints the reply. Without a message
an interactive conversation reads one message per line until EOF or "exit".

Pass --session to continue a conversation; sessions survive between
invocations only with a durable session backend (sqlite or redis).`,
		Example: `  edumesh ask "CBSE-grade-10-Science. Question: What is photosynthesis?"
  edumesh ask --session 3f2a... "2"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}

			m, err := edumesh.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer m.Close()

			if sessionID == "" {
				if userID == "" {
					userID = cfg.App.DefaultUserID
				}
				sessionID, err = m.CreateSession(cmd.Context(), userID)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			color.New(color.FgHiBlack).Fprintf(out, "session %s\n", sessionID)

			if len(args) > 0 {
				return askOnce(cmd, m.Tutor, sessionID, strings.Join(args, " "))
			}
			return converse(cmd, m.Tutor, sessionID, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "continue an existing session")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id for a new session")

	return cmd
}

func askOnce(cmd *cobra.Command, t *tutor.Tutor, sessionID, text string) error {
	reply, err := t.Ask(cmd.Context(), sessionID, text)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	color.New(color.FgCyan, color.Bold).Fprint(out, "tutor: ")
	fmt.Fprintln(out, reply.Text)
	return nil
}

func converse(cmd *cobra.Command, t *tutor.Tutor, sessionID string, in io.Reader) error {
	out := cmd.OutOrStdout()
	prompt := color.New(color.FgGreen, color.Bold)

	scanner := bufio.NewScanner(in)
	for {
		prompt.Fprint(out, "you: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if err := askOnce(cmd, t, sessionID, line); err != nil {
			color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		}
	}
}
