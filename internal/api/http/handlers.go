package http

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/efritz/glock"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ironclad/backend/internal/api/middleware"
	"github.com/GriffinCanCode/ironclad/backend/internal/domain/users"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/chaos"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ironclad/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/ironclad/backend/internal/store"
)

// HealthCheckTimeout bounds the dependency probe of /health
const HealthCheckTimeout = 5 * time.Second

// Deps are the collaborators of the HTTP handlers
type Deps struct {
	Store      *store.Guarded
	Chaos      *chaos.Controller
	Metrics    *monitoring.Metrics
	Objectives *monitoring.ObjectiveSet
	Users      *users.Repository
	Validator  *users.Validator
	Logger     *zap.Logger
	Clock      glock.Clock
}

// Handlers contains all HTTP handlers
type Handlers struct {
	store      *store.Guarded
	chaos      *chaos.Controller
	metrics    *monitoring.Metrics
	objectives *monitoring.ObjectiveSet
	users      *users.Repository
	validator  *users.Validator
	logger     *zap.Logger
	clock      glock.Clock
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = glock.NewRealClock()
	}
	if deps.Objectives == nil {
		deps.Objectives = monitoring.NewObjectiveSet(monitoring.DefaultObjectives())
	}
	if deps.Validator == nil {
		deps.Validator = users.NewValidator(deps.Clock.Now)
	}
	if deps.Users == nil && deps.Store != nil {
		deps.Users = users.NewRepository(deps.Store, deps.Clock)
	}

	return &Handlers{
		store:      deps.Store,
		chaos:      deps.Chaos,
		metrics:    deps.Metrics,
		objectives: deps.Objectives,
		users:      deps.Users,
		validator:  deps.Validator,
		logger:     deps.Logger,
		clock:      deps.Clock,
	}
}

// storeError writes the response for a failed data store call. A rejection
// by the open breaker is a 503 telling the client when to come back.
func (h *Handlers) storeError(c *gin.Context, action string, err error) {
	rid := middleware.GetRequestID(c)
	log := logging.WithRequestID(h.logger, rid)

	switch {
	case errors.Is(err, users.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found", "requestId": rid})
	case errors.Is(err, users.ErrEmailExists):
		c.JSON(http.StatusConflict, gin.H{"error": "Email already exists", "requestId": rid})
	case errors.Is(err, resilience.ErrCircuitOpen):
		retryAfter := int(math.Ceil(h.store.Breaker().RetryAfter().Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		log.Warn(action+" rejected by circuit breaker",
			zap.String("breaker", h.store.Breaker().Name()))
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":      "Service temporarily unavailable",
			"retryAfter": retryAfter,
			"requestId":  rid,
		})
	case errors.Is(err, resilience.ErrTimeout):
		log.Error(action+" timed out", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":     "Service temporarily unavailable",
			"requestId": rid,
		})
	default:
		log.Error(action, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestId": rid,
		})
	}
}
