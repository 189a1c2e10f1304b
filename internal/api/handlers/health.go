package handlers

import (
	"net/http"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewHealthHandler(db *gorm.DB, redis *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

type ReadyResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// Health is the liveness probe. It answers as long as the process is
// serving requests; dependency state belongs to Ready.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether the process can do useful work. The database
// is required; Redis is reported but optional since the limiter and
// session store degrade to in-memory without it.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	services := make(map[string]string)
	status := "ready"

	sqlDB, err := h.db.DB()
	if err != nil || sqlDB.PingContext(r.Context()) != nil {
		services["database"] = "down"
		status = "degraded"
	} else {
		services["database"] = "up"
	}

	if h.redis != nil {
		if err := h.redis.Ping(r.Context()).Err(); err != nil {
			services["redis"] = "down"
		} else {
			services["redis"] = "up"
		}
	}

	code := http.StatusOK
	if status != "ready" {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, ReadyResponse{Status: status, Services: services})
}
