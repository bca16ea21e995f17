package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ironclad/backend/internal/api/middleware"
	"github.com/GriffinCanCode/ironclad/backend/internal/domain/users"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/logging"
)

// MaxBodyBytes caps user request bodies
const MaxBodyBytes = 1 << 20

// CreateUser handles POST /api/users
func (h *Handlers) CreateUser(c *gin.Context) {
	start := time.Now()
	in, ok := h.bindUser(c)
	if !ok {
		return
	}

	user, err := h.users.Create(c.Request.Context(), in)
	if err != nil {
		h.storeError(c, "Failed to create user", err)
		return
	}

	rid := middleware.GetRequestID(c)
	duration := time.Since(start)
	h.logger.Info("User created successfully",
		zap.String("userId", user.ID),
		logging.RequestID(rid),
		zap.Duration("duration", duration))

	c.JSON(http.StatusCreated, gin.H{
		"data": user,
		"meta": gin.H{
			"requestId": rid,
			"duration":  duration.Milliseconds(),
		},
	})
}

// ListUsers handles GET /api/users
func (h *Handlers) ListUsers(c *gin.Context) {
	list, err := h.users.List(c.Request.Context())
	if err != nil {
		h.storeError(c, "Failed to fetch users", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": list,
		"meta": gin.H{
			"count":     len(list),
			"requestId": middleware.GetRequestID(c),
		},
	})
}

// GetUser handles GET /api/users/:id
func (h *Handlers) GetUser(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeError(c, "Failed to fetch user", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": user,
		"meta": gin.H{"requestId": middleware.GetRequestID(c)},
	})
}

// UpdateUser handles PUT /api/users/:id
func (h *Handlers) UpdateUser(c *gin.Context) {
	in, ok := h.bindUser(c)
	if !ok {
		return
	}

	user, err := h.users.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.storeError(c, "Failed to update user", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": user,
		"meta": gin.H{"requestId": middleware.GetRequestID(c)},
	})
}

// DeleteUser handles DELETE /api/users/:id
func (h *Handlers) DeleteUser(c *gin.Context) {
	id := c.Param("id")
	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		h.storeError(c, "Failed to delete user", err)
		return
	}

	h.logger.Info("User deleted",
		zap.String("userId", id),
		logging.RequestID(middleware.GetRequestID(c)))
	c.Status(http.StatusNoContent)
}

// bindUser decodes and validates the request body. On failure the 400
// response has been written.
func (h *Handlers) bindUser(c *gin.Context) (users.Input, bool) {
	var in users.Input

	body, err := readBody(c)
	if err != nil || sonic.Unmarshal(body, &in) != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid JSON body",
			"requestId": middleware.GetRequestID(c),
		})
		return in, false
	}

	if err := h.validator.Validate(&in); err != nil {
		var verr *users.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Validation failed",
				"details": verr.Details,
			})
			return in, false
		}
		h.storeError(c, "Failed to validate user", err)
		return in, false
	}
	return in, true
}

func readBody(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)
	return c.GetRawData()
}
