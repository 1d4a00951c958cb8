package contexthelpers

type contextKey string

const gameSessionIDContextKey = contextKey("gameSessionID")
const currentPathContextKey = contextKey("currentPath")
