package handlers

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/drople/metering/internal/database"
)

type HealthHandler struct {
	db *gorm.DB
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	services := map[string]string{"database": "healthy"}

	if !database.IsHealthy(h.db) {
		status = "degraded"
		code = http.StatusServiceUnavailable
		services["database"] = "unhealthy"
	}

	respondJSON(w, code, map[string]interface{}{
		"status":   status,
		"services": services,
	})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !database.IsHealthy(h.db) {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"error":  "database not ready",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
