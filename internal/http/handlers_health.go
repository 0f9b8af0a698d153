package httpx

import (
	"context"
	"io"
	"net/http"
	"time"
)

const healthResponse = `{"status":"ok"}`

// healthHandler returns a simple 200 OK status for liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// ReadinessHandler reports whether the process should receive new traffic.
// Draining flips readiness to 503 while established connections keep
// running; a failing store check does the same.
type ReadinessHandler struct {
	// Draining reports whether shutdown has begun.
	Draining func() bool
	// CheckStore pings the session store backend. Nil skips the check.
	CheckStore func(ctx context.Context) error
	// CheckTimeout bounds the store ping. Zero means 2 seconds.
	CheckTimeout time.Duration
}

func (h *ReadinessHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Draining != nil && h.Draining() {
		writeReadiness(w, r, http.StatusServiceUnavailable, `{"status":"draining"}`)
		return
	}

	if h.CheckStore != nil {
		timeout := h.CheckTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := h.CheckStore(ctx); err != nil {
			writeReadiness(w, r, http.StatusServiceUnavailable, `{"status":"store_unavailable"}`)
			return
		}
	}

	writeReadiness(w, r, http.StatusOK, healthResponse)
}

func writeReadiness(w http.ResponseWriter, r *http.Request, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.WriteString(w, body)
}
