package http

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// EnableChaos turns fault injection on
func (h *Handlers) EnableChaos(c *gin.Context) {
	cfg := h.chaos.Enable()
	c.JSON(http.StatusOK, gin.H{"message": "Chaos enabled", "config": cfg})
}

// DisableChaos turns fault injection off and clears latency and error rate
func (h *Handlers) DisableChaos(c *gin.Context) {
	h.chaos.Disable()
	c.JSON(http.StatusOK, gin.H{"message": "Chaos disabled"})
}

// SetChaosLatency handles POST /chaos/latency/:ms
func (h *Handlers) SetChaosLatency(c *gin.Context) {
	ms, err := strconv.Atoi(c.Param("ms"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid latency value (0-10000)"})
		return
	}

	cfg, err := h.chaos.SetLatency(ms)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid latency value (0-10000)"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Latency set to %dms", ms),
		"config":  cfg,
	})
}

// SetChaosErrorRate handles POST /chaos/errors/:rate
func (h *Handlers) SetChaosErrorRate(c *gin.Context) {
	rate, err := strconv.ParseFloat(c.Param("rate"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid error rate (0-1)"})
		return
	}

	cfg, err := h.chaos.SetErrorRate(rate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid error rate (0-1)"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Error rate set to %s%%", formatPercent(rate)),
		"config":  cfg,
	})
}

// ChaosStatus returns the active configuration
func (h *Handlers) ChaosStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.chaos.Status())
}

// ChaosStats returns injection counters
func (h *Handlers) ChaosStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"config": h.chaos.Status(),
		"stats":  h.chaos.Stats(),
	})
}

// formatPercent renders 0.3 as "30" and 0.125 as "12.5"
func formatPercent(rate float64) string {
	pct := math.Round(rate*10000) / 100
	return strconv.FormatFloat(pct, 'f', -1, 64)
}
