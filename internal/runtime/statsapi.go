package runtime

import (
	"net/http"
	"strings"

	"github.com/drblury/omsn/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/omsn/internal/runtime/logging"
)

// StatsPath serves the traffic snapshot as JSON.
const StatsPath = "/api/stats"

// statsHandler serves TrafficAccounting snapshots.
type statsHandler struct {
	accounting     *TrafficAccounting
	allowedOrigins []string
	logger         loggingpkg.ServiceLogger
}

func (h *statsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := h.allowedOrigin(r.Header.Get("Origin")); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet, http.MethodHead:
	default:
		w.Header().Set("Allow", "GET, HEAD, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := jsoncodec.Marshal(h.accounting.Snapshot())
	if err != nil {
		h.logger.Error("Failed to encode traffic snapshot", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// allowedOrigin returns the Access-Control-Allow-Origin value for the
// request origin, or "" when CORS headers must not be sent.
func (h *statsHandler) allowedOrigin(requestOrigin string) string {
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if requestOrigin != "" && strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
