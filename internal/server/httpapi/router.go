package httpapi

import (
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gorilla/mux"
)

// NewRouter mounts the API routes and wraps them with the CORS
// allow-list middleware.
func NewRouter(h *Handlers, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/update_nickname", h.UpdateNickname).Methods(http.MethodPost)
	r.HandleFunc("/api/save_time", h.SaveTime).Methods(http.MethodPost)
	r.HandleFunc("/api/sync_scores", h.SyncScores).Methods(http.MethodPost)
	r.HandleFunc("/api/migrate", h.Migrate).Methods(http.MethodPost)
	r.HandleFunc("/api/leaderboard", h.Leaderboard).Methods(http.MethodGet)
	r.HandleFunc("/api/get_nicknames", h.GetNicknames).Methods(http.MethodPost)

	r.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	}).Methods(http.MethodGet)

	return corsMiddleware(allowedOrigins)(r)
}

// corsMiddleware reflects the Origin header back only for origins on the
// allow-list. A "*" entry opens the API up, useful for local frontends.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	wildcard := false
	for _, o := range allowedOrigins {
		if o == "*" {
			wildcard = true
			continue
		}
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (wildcard || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
