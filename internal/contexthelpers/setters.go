package contexthelpers

import (
	"context"
	"net/http"
)

func SetGameSessionID(r *http.Request, id string) *http.Request {
	ctx := context.WithValue(r.Context(), gameSessionIDContextKey, id)
	return r.WithContext(ctx)
}

func SetCurrentPath(r *http.Request, currentPath string) *http.Request {
	ctx := r.Context()
	ctx = context.WithValue(ctx, currentPathContextKey, currentPath)
	return r.WithContext(ctx)
}
