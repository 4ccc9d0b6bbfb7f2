package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"face-search-go/internal/utils"
)

// GetHealth reports service liveness and detector reachability.
func (h *APIHandler) GetHealth(c *gin.Context) {
	health := gin.H{
		"status":    "ok",
		"timestamp": time.Now(),
	}

	reachable, err := h.detector.Ping(c.Request.Context())
	detector := gin.H{"reachable": reachable}
	if err != nil {
		detector["error"] = err.Error()
		health["status"] = "degraded"
	}
	health["detector"] = detector

	code := http.StatusOK
	if !reachable {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, health)
}

// GetStatus returns pipeline statistics together with system and worker
// pool metrics.
func (h *APIHandler) GetStatus(c *gin.Context) {
	stats, err := h.repo.GetStatistics()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to collect statistics: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"statistics": stats,
		"system":     utils.GetSystemStats(h.pool),
	})
}
