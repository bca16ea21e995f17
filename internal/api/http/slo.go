package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SLO is one objective with its current value
type SLO struct {
	Name        string  `json:"name"`
	Target      float64 `json:"target"`
	Current     float64 `json:"current"`
	Description string  `json:"description"`
}

// SLOs reports the objectives, their current values and the error budget
func (h *Handlers) SLOs(c *gin.Context) {
	slis, err := h.metrics.Calculator().Calculate()
	if err != nil {
		h.logger.Error("Failed to calculate SLIs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	objectives := h.objectives.Get()
	c.JSON(http.StatusOK, gin.H{
		"slos": []SLO{
			{
				Name:        "availability",
				Target:      objectives.Availability.Target,
				Current:     slis.Availability,
				Description: objectives.Availability.Description,
			},
			{
				Name:        "latency",
				Target:      objectives.Latency.Target,
				Current:     slis.LatencyCompliance,
				Description: objectives.Latency.Description,
			},
		},
		"errorBudget": objectives.Budget(slis.Availability),
		"sli":         slis,
		"periodDays":  objectives.PeriodDays,
	})
}
