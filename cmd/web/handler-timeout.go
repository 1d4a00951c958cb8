package main

import (
	"net/http"
	"time"
)

const timeoutBody = `{"error":"The investigation took too long. Please try again."}`

// timeoutHandler responds with a 503 Service Unavailable error when the handler does not meet the deadline.
//
// The timeout must be a little shorter than the server's write timeout so that the timeout handler has a chance to
// respond before the server closes the connection.
func timeoutHandler(h http.Handler, timeout time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// TimeoutHandler writes timeoutBody as text unless the content type is set up front.
		w.Header().Set("Content-Type", "application/json")
		http.TimeoutHandler(h, timeout, timeoutBody).ServeHTTP(w, r)
	})
}
