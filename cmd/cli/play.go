package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/game"
	"github.com/myrjola/compassmystery/internal/setup"
	"github.com/spf13/cobra"
)

var gameGroup = &cobra.Group{
	ID:    "game",
	Title: "Playing",
}

var playCmd = &cobra.Command{
	Use:     "play",
	GroupID: "game",
	Short:   "Play the mystery in the terminal",
	Long: `Starts a new session and reads one action per line, e.g. "go to the library", "inspect page" or
"talk to evelyn: did you see anyone?". Type "state" to see the collected evidence and "quit" to leave.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := newApp(cmd.Context(), newLogger(cmd), nil)
		if err != nil {
			return err
		}
		defer app.Close()
		return play(cmd.Context(), app.Engine, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func play(ctx context.Context, engine *game.Engine, in io.Reader, out io.Writer) error {
	state, err := engine.StartSession(ctx)
	if err != nil {
		return errors.Wrap(err, "start session")
	}
	for _, turn := range state.History {
		_, _ = fmt.Fprintln(out, turn.Text)
	}

	scanner := bufio.NewScanner(in)
	prompt := func() { _, _ = fmt.Fprint(out, "> ") }
	for prompt(); scanner.Scan(); prompt() {
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			return nil
		case "state":
			if state, err = engine.State(ctx, state.SessionID); err != nil {
				return errors.Wrap(err, "get state")
			}
			printState(out, state)
			continue
		}

		res, err := engine.ApplyAction(ctx, state.SessionID, line)
		var rejection *game.RejectionError
		switch {
		case errors.As(err, &rejection):
			_, _ = fmt.Fprintln(out, rejection.Reason)
			continue
		case err != nil:
			return errors.Wrap(err, "apply action")
		}
		_, _ = fmt.Fprintln(out, res.Narration)
		if res.EvidenceDiscovered != nil && res.EvidenceDiscovered.SolvesCase {
			_, _ = fmt.Fprintln(out, "Case solved! Type quit to leave.")
		}
	}
	return errors.Wrap(scanner.Err(), "read actions")
}

func printState(out io.Writer, state game.StateView) {
	_, _ = fmt.Fprintf(out, "You are in %s. %d of your findings point to someone.\n",
		state.Location.Name, state.CluesFound)
	for _, e := range state.Evidence {
		_, _ = fmt.Fprintf(out, "  - %s: %s\n", e.Description, e.Reveals)
	}
	for _, npc := range state.NPCs {
		_, _ = fmt.Fprintf(out, "  %s is %s\n", npc.Name, npc.Tier)
	}
}
