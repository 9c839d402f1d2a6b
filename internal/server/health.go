package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const healthTimeout = 2 * time.Second

type check struct {
	name string
	ping func(ctx context.Context) error
}

// healthHandler reports ok only when every dependency answers a ping.
func healthHandler(checks ...check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.ping(ctx); err != nil {
				log.Warn().Err(err).Str("dependency", c.name).Msg("health check failed")
				deps[c.name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[c.name] = "ok"
		}

		body := map[string]any{"status": "ok", "dependencies": deps}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
