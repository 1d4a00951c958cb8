package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/story"
	"github.com/spf13/cobra"
)

var storyGroup = &cobra.Group{
	ID:    "story",
	Title: "Story authoring",
}

var storyCmd = &cobra.Command{
	Use:     "story",
	GroupID: "story",
	Short:   "Work with story definitions",
}

var storyCheckCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Validate a story YAML file",
	Long:  `Validates the story at path, or the embedded Celestial Compass story when no path is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		if len(args) == 1 {
			path = args[0]
		}
		return checkStory(cmd.OutOrStdout(), path)
	},
}

func init() {
	storyCmd.AddCommand(storyCheckCmd)
}

func checkStory(out io.Writer, path string) error {
	var (
		truth *story.Truth
		err   error
	)
	if path == "" {
		truth, err = story.Default()
	} else {
		truth, err = story.LoadFile(path)
	}
	if errors.Is(err, story.ErrInvalidStory) {
		_, _ = fmt.Fprintln(out, "story has problems:")
		for _, line := range strings.Split(err.Error(), "\n") {
			_, _ = fmt.Fprintln(out, "  "+line)
		}
		return err
	}
	if err != nil {
		return err
	}

	evidence := 0
	for _, loc := range truth.Locations() {
		evidence += len(loc.EvidenceIDs)
	}
	_, _ = fmt.Fprintf(out, "%s: %d locations, %d evidence items, %d characters\n",
		truth.Title(), len(truth.Locations()), evidence, len(truth.NPCs()))
	return nil
}
