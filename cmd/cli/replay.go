package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/game"
	"github.com/spf13/cobra"
)

func init() {
	replayCmd.Flags().String("db", ":memory:", "SQLite database for the replay")
}

var replayCmd = &cobra.Command{
	Use:     "replay [file]",
	GroupID: "game",
	Short:   "Replay a scripted playthrough and print the evaluation report",
	Long: `Applies the actions in file, one per line, to a fresh session. Empty lines and lines starting with # are
skipped. Reads stdin when file is "-". The evaluation report is printed as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := cmd.Flags().GetString("db")
		if err != nil {
			return errors.Wrap(err, "read db flag")
		}
		in := cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(err, "open script")
			}
			defer f.Close()
			in = f
		}
		app, err := newApp(cmd.Context(), newLogger(cmd), map[string]string{"MYSTERY_SQLITE_URL": db})
		if err != nil {
			return err
		}
		defer app.Close()
		return replay(cmd.Context(), app.Engine, in, cmd.OutOrStdout())
	},
}

// ReplayStep is the outcome of one scripted action.
type ReplayStep struct {
	Action    string `json:"action"`
	Narration string `json:"narration,omitempty"`
	Rejected  string `json:"rejected,omitempty"`
}

type ReplayResult struct {
	SessionID string       `json:"session_id"`
	Steps     []ReplayStep `json:"steps"`
	Solved    bool         `json:"solved"`
	Report    game.Report  `json:"report"`
}

func replay(ctx context.Context, engine *game.Engine, in io.Reader, out io.Writer) error {
	state, err := engine.StartSession(ctx)
	if err != nil {
		return errors.Wrap(err, "start session")
	}
	result := ReplayResult{SessionID: state.SessionID} //nolint:exhaustruct // filled below

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		step := ReplayStep{Action: line} //nolint:exhaustruct // either narration or rejection
		res, err := engine.ApplyAction(ctx, state.SessionID, line)
		var rejection *game.RejectionError
		switch {
		case errors.As(err, &rejection):
			step.Rejected = rejection.Reason
		case err != nil:
			return errors.Wrap(err, "apply action")
		default:
			step.Narration = res.Narration
			result.Solved = res.State.Solved
		}
		result.Steps = append(result.Steps, step)
	}
	if err = scanner.Err(); err != nil {
		return errors.Wrap(err, "read script")
	}

	result.Report = engine.EvaluationReport()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(result), "encode replay result")
}
