package repositories_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/myrjola/compassmystery/internal/models"
	"github.com/myrjola/compassmystery/internal/repositories"
	"github.com/myrjola/compassmystery/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewSessionRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))
	created := time.UnixMilli(1_700_000_000_000)

	_, found, err := repo.LoadSession(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)

	s := models.Session{
		ID:         "s1",
		LocationID: "great_hall",
		CreatedAt:  created,
		History: []models.Turn{
			{Speaker: models.SpeakerNarrator, Text: "Welcome.", At: created},
		},
	}
	require.NoError(t, repo.SaveSession(ctx, s))

	s.LocationID = "library"
	s.Evidence = append(s.Evidence, "torn_page", "dropped_key")
	s.History = append(s.History,
		models.Turn{Speaker: models.SpeakerPlayer, Text: "go to library", At: created.Add(time.Second)},
		models.Turn{Speaker: models.NPCSpeaker("draco"), Text: "Hmph.", At: created.Add(2 * time.Second)},
	)
	require.NoError(t, repo.SaveSession(ctx, s))
	// Saving an unchanged session is idempotent.
	require.NoError(t, repo.SaveSession(ctx, s))

	got, found, err := repo.LoadSession(ctx, "s1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "library", got.LocationID)
	require.Equal(t, []string{"torn_page", "dropped_key"}, got.Evidence)
	require.Len(t, got.History, 3)
	require.Equal(t, models.NPCSpeaker("draco"), got.History[2].Speaker)
	require.Equal(t, "Hmph.", got.History[2].Text)
	require.True(t, created.Equal(got.CreatedAt))
	require.True(t, created.Add(time.Second).Equal(got.History[1].At))

	require.NoError(t, repo.DeleteSession(ctx, "s1"))
	_, found, err = repo.LoadSession(ctx, "s1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestSessionRepository_DeleteExpiredSessions(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewSessionRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))
	created := time.UnixMilli(1_700_000_000_000)

	old := models.Session{
		ID:         "old",
		LocationID: "great_hall",
		CreatedAt:  created,
		UpdatedAt:  created,
		Evidence:   []string{"shimmer"},
		History:    []models.Turn{{Speaker: models.SpeakerNarrator, Text: "Welcome.", At: created}},
	}
	active := old.Clone()
	active.ID = "active"
	active.UpdatedAt = created.Add(2 * time.Hour)
	require.NoError(t, repo.SaveSession(ctx, old))
	require.NoError(t, repo.SaveSession(ctx, active))

	n, err := repo.DeleteExpiredSessions(ctx, created.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, found, err := repo.LoadSession(ctx, "old")
	require.NoError(t, err)
	require.False(t, found)
	got, found, err := repo.LoadSession(ctx, "active")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, active.UpdatedAt.Equal(got.UpdatedAt))
	require.Equal(t, []string{"shimmer"}, got.Evidence)

	// A purged session that is saved again is written in full.
	require.NoError(t, repo.SaveSession(ctx, old))
	got, found, err = repo.LoadSession(ctx, "old")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []string{"shimmer"}, got.Evidence)
	require.Len(t, got.History, 1)
}
