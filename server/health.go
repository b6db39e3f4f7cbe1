package server

import (
	"context"
	"net/http"
	"time"

	"tunesync/db"
)

// HealthHandler reports connectivity of the backing stores. MySQL is pinged
// through the raw connection pool so a wedged ORM session cannot mask an
// outage.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{
		"database": "ok",
		"redis":    "ok",
	}
	healthy := true

	if db.DB == nil {
		checks["database"] = "unavailable"
		healthy = false
	} else if err := db.DB.PingContext(ctx); err != nil {
		checks["database"] = "unavailable"
		healthy = false
	}

	if db.RedisClient == nil {
		checks["redis"] = "unavailable"
		healthy = false
	} else if err := db.RedisClient.Ping(ctx).Err(); err != nil {
		checks["redis"] = "unavailable"
		healthy = false
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": overall,
		"checks": checks,
	})
}
