package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arborline/catalog-server/internal/pkg/httputil"
	"github.com/arborline/catalog-server/internal/service/cleanup"
	"github.com/arborline/catalog-server/internal/service/importer"
	"github.com/arborline/catalog-server/internal/service/session"
	"github.com/arborline/catalog-server/internal/service/staging"
)

// Handlers bundles the services behind the HTTP surface.
type Handlers struct {
	sessions *session.Service
	staged   *staging.Service
	importer *importer.Service
	cleaner  *cleanup.Service

	// Health-check dependencies; either may be nil.
	db          *sql.DB
	redisClient *redis.Client
	startTime   time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(sessions *session.Service, staged *staging.Service, imp *importer.Service, cleaner *cleanup.Service, db *sql.DB, redisClient *redis.Client) *Handlers {
	return &Handlers{
		sessions:    sessions,
		staged:      staged,
		importer:    imp,
		cleaner:     cleaner,
		db:          db,
		redisClient: redisClient,
		startTime:   time.Now(),
	}
}

// componentCheck is one dependency's health.
type componentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthCheck reports server and dependency status.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]componentCheck{}
	healthy := true

	if h.db != nil {
		start := time.Now()
		if err := h.db.PingContext(ctx); err != nil {
			checks["database"] = componentCheck{Status: "down", Message: err.Error()}
			healthy = false
		} else {
			checks["database"] = componentCheck{Status: "up", Latency: time.Since(start).Round(time.Millisecond).String()}
		}
	} else {
		checks["database"] = componentCheck{Status: "not_configured"}
	}

	if h.redisClient != nil {
		start := time.Now()
		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			// Progress polling degrades to DB reads without Redis.
			checks["redis"] = componentCheck{Status: "degraded", Message: err.Error()}
		} else {
			checks["redis"] = componentCheck{Status: "up", Latency: time.Since(start).Round(time.Millisecond).String()}
		}
	} else {
		checks["redis"] = componentCheck{Status: "not_configured"}
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, map[string]interface{}{
		"status": status,
		"uptime": fmt.Sprintf("%.0fs", time.Since(h.startTime).Seconds()),
		"checks": checks,
	})
}

// writeServiceError translates service sentinel errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch err {
	case session.ErrNotFound, staging.ErrNotFound, importer.ErrNotFound:
		httputil.NotFound(w, err.Error())
	case staging.ErrNoActiveSession:
		httputil.NotFound(w, err.Error())
	case session.ErrInvalidFormat:
		httputil.Unprocessable(w, "file is not a valid PDF document", "invalid_format")
	case session.ErrTooLarge:
		httputil.Error(w, http.StatusRequestEntityTooLarge, "uploaded file exceeds the size limit", "too_large")
	case importer.ErrAlreadyImported:
		httputil.Conflict(w, err.Error(), "already_imported")
	case importer.ErrNotReady:
		httputil.Conflict(w, err.Error(), "not_ready")
	case staging.ErrSessionFrozen:
		httputil.Conflict(w, err.Error(), "session_frozen")
	case staging.ErrSessionParsing:
		httputil.Conflict(w, err.Error(), "session_parsing")
	case staging.ErrInvalidRole:
		httputil.Unprocessable(w, err.Error(), "invalid_role")
	case cleanup.ErrAlreadyRunning:
		httputil.Conflict(w, err.Error(), "cleanup_running")
	default:
		httputil.InternalError(w, err)
	}
}
