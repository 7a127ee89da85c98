package server

import (
	"io"
	"net/http"
)

// NewHealthRoute mounts the liveness endpoint on /health.
func NewHealthRoute() HttpHandlerResult {
	return AsHttpHandler("/health", http.HandlerFunc(healthHandler))
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}
