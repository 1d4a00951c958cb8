package main

type sessionKey string

// gameSessionIDSessionKey remembers the player's game session so that clients may omit session_id.
const gameSessionIDSessionKey = sessionKey("gameSessionID")
