package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/myrjola/compassmystery/internal/ai"
	"github.com/myrjola/compassmystery/internal/config"
	"github.com/myrjola/compassmystery/internal/game"
	"github.com/myrjola/compassmystery/internal/setup"
	"github.com/myrjola/compassmystery/internal/story"
	"github.com/myrjola/compassmystery/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *game.Engine {
	t.Helper()
	cfg, err := config.Load(testhelpers.LookupEnv(map[string]string{"MYSTERY_SQLITE_URL": ":memory:"}))
	require.NoError(t, err)
	backend := ai.BackendFunc(func(context.Context, string) (string, error) {
		return `{"npc_reply": "I was studying, that is all.", "tone": "nervous"}`, nil
	})
	app, err := setup.New(context.Background(), cfg, testhelpers.NewLogger(io.Discard), setup.WithBackend(backend))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Close()) })
	return app.Engine
}

func TestReplay(t *testing.T) {
	script := `# solve the case
go to the courtyard
inspect the fountain
go to the astronomy tower
talk to evelyn: where were you last night?
`
	var out bytes.Buffer
	err := replay(context.Background(), newTestEngine(t), strings.NewReader(script), &out)
	require.NoError(t, err)

	var result ReplayResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	require.NotEmpty(t, result.SessionID)
	require.Len(t, result.Steps, 4)
	require.True(t, result.Solved)
	require.Empty(t, result.Steps[0].Rejected)
	require.NotEmpty(t, result.Steps[2].Rejected, "unknown location is rejected")
	require.Contains(t, result.Steps[3].Narration, "I was studying")
	require.Equal(t, int64(1), result.Report.Cache.Misses)
}

func TestPlay(t *testing.T) {
	input := "go to the library\nstate\ntalk to hagrid: hello\nquit\ninspect page\n"
	var out bytes.Buffer
	err := play(context.Background(), newTestEngine(t), strings.NewReader(input), &out)
	require.NoError(t, err)

	got := out.String()
	require.Contains(t, got, "Welcome, young wizard")
	require.Contains(t, got, "You are in The Library.")
	require.Contains(t, got, "Draco Malfoy is defensive")
	require.Contains(t, got, "I don't see that person here.")
	require.NotContains(t, got, "torn", "actions after quit are ignored")
}

func TestCheckStory(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, checkStory(&out, ""))
	require.Equal(t, "The Celestial Compass: 4 locations, 6 evidence items, 3 characters\n", out.String())

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title: Broken\nstart_location: nowhere\n"), 0o600))
	out.Reset()
	err := checkStory(&out, path)
	require.ErrorIs(t, err, story.ErrInvalidStory)
	require.Contains(t, out.String(), "story has problems:")
	require.Contains(t, out.String(), `start_location "nowhere" is not a location`)
}
