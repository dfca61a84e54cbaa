package http

import (
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openconsole/authgate/pkg/httpx"
)

// ReadyzHandler answers 200 once dependencies are reachable. When rdb is
// nil the code store is in-memory and always ready.
func ReadyzHandler(startTime time.Time, version string, rdb redis.UniversalClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &HealthChecks{CodeStore: "ok"}
		overallStatus := "ok"
		statusCode := http.StatusOK

		if rdb != nil {
			if err := rdb.Ping(r.Context()).Err(); err != nil {
				checks.CodeStore = "error: " + err.Error()
				overallStatus = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
		}

		httpx.WriteJSON(w, statusCode, HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
