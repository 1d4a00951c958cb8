package contexthelpers

import (
	"context"
)

// GameSessionID returns the game session remembered for the requester, or "" when there is none.
func GameSessionID(ctx context.Context) string {
	id, ok := ctx.Value(gameSessionIDContextKey).(string)
	if !ok {
		return ""
	}

	return id
}

func CurrentPath(ctx context.Context) string {
	currentPath, ok := ctx.Value(currentPathContextKey).(string)
	if !ok {
		return ""
	}

	return currentPath
}
