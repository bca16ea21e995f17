package monitoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

// ErrInvalidObjectives is returned for an objectives file that fails validation
var ErrInvalidObjectives = errors.New("invalid objectives")

// Objectives are the service level objectives the SLIs are measured against
type Objectives struct {
	Availability AvailabilityObjective `yaml:"availability" toml:"availability" json:"availability"`
	Latency      LatencyObjective      `yaml:"latency" toml:"latency" json:"latency"`
	PeriodDays   int                   `yaml:"period_days" toml:"period_days" json:"periodDays"`
}

// AvailabilityObjective is the target share of successful requests
type AvailabilityObjective struct {
	Target      float64 `yaml:"target" toml:"target" json:"target"`
	Description string  `yaml:"description" toml:"description" json:"description"`
}

// LatencyObjective is the target share of requests finishing within ThresholdMs
type LatencyObjective struct {
	Target      float64 `yaml:"target" toml:"target" json:"target"`
	ThresholdMs int     `yaml:"threshold_ms" toml:"threshold_ms" json:"thresholdMs"`
	Description string  `yaml:"description" toml:"description" json:"description"`
}

// DefaultObjectives returns the built-in objectives
func DefaultObjectives() Objectives {
	return Objectives{
		Availability: AvailabilityObjective{
			Target:      0.999,
			Description: "99.9% of requests should be successful",
		},
		Latency: LatencyObjective{
			Target:      0.95,
			ThresholdMs: 200,
			Description: "95% of requests should complete within 200ms",
		},
		PeriodDays: 30,
	}
}

// Validate checks target ranges
func (o Objectives) Validate() error {
	if o.Availability.Target <= 0 || o.Availability.Target >= 1 {
		return fmt.Errorf("%w: availability target %v not in (0, 1)", ErrInvalidObjectives, o.Availability.Target)
	}
	if o.Latency.Target <= 0 || o.Latency.Target >= 1 {
		return fmt.Errorf("%w: latency target %v not in (0, 1)", ErrInvalidObjectives, o.Latency.Target)
	}
	if o.Latency.ThresholdMs <= 0 {
		return fmt.Errorf("%w: latency threshold must be positive", ErrInvalidObjectives)
	}
	if o.PeriodDays <= 0 {
		return fmt.Errorf("%w: period must be positive", ErrInvalidObjectives)
	}
	return nil
}

// LatencyThreshold returns the latency threshold as a duration
func (o Objectives) LatencyThreshold() time.Duration {
	return time.Duration(o.Latency.ThresholdMs) * time.Millisecond
}

// ErrorBudget is expressed in minutes over the objective period
type ErrorBudget struct {
	Total      float64 `json:"total"`
	Consumed   float64 `json:"consumed"`
	Remaining  float64 `json:"remaining"`
	Percentage float64 `json:"percentage"`
}

// Budget computes the error budget for the observed availability
func (o Objectives) Budget(availability float64) ErrorBudget {
	period := float64(o.PeriodDays) * 24 * 60
	total := (1 - o.Availability.Target) * period
	consumed := math.Min(total, math.Max(0, (1-availability)*period))

	return ErrorBudget{
		Total:      round2(total),
		Consumed:   round2(consumed),
		Remaining:  round2(total - consumed),
		Percentage: round2(BudgetRemaining(availability, o.Availability.Target)),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ObjectiveSet holds the active objectives and allows them to be swapped at runtime
type ObjectiveSet struct {
	mu         sync.RWMutex
	objectives Objectives
}

// NewObjectiveSet creates a set holding objectives
func NewObjectiveSet(objectives Objectives) *ObjectiveSet {
	return &ObjectiveSet{objectives: objectives}
}

// Get returns the active objectives
func (s *ObjectiveSet) Get() Objectives {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objectives
}

// Set replaces the active objectives
func (s *ObjectiveSet) Set(objectives Objectives) {
	s.mu.Lock()
	s.objectives = objectives
	s.mu.Unlock()
}

// LoadObjectives reads objectives from a YAML or TOML file. Fields missing
// from the file keep their default values.
func LoadObjectives(path string) (Objectives, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Objectives{}, fmt.Errorf("read objectives: %w", err)
	}

	objectives := DefaultObjectives()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &objectives)
	case ".toml":
		err = toml.Unmarshal(data, &objectives)
	default:
		return Objectives{}, fmt.Errorf("%w: unsupported file extension %q", ErrInvalidObjectives, ext)
	}
	if err != nil {
		return Objectives{}, fmt.Errorf("parse objectives %s: %w", path, err)
	}

	if err := objectives.Validate(); err != nil {
		return Objectives{}, err
	}
	return objectives, nil
}

// WatchObjectives reloads path into set whenever the file changes, until ctx
// is cancelled. A file that fails to load leaves the previous objectives active.
func WatchObjectives(ctx context.Context, path string, set *ObjectiveSet, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are picked up
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			objectives, err := LoadObjectives(target)
			if err != nil {
				logger.Warn("Failed to reload objectives", zap.String("path", target), zap.Error(err))
				continue
			}
			set.Set(objectives)
			logger.Info("Objectives reloaded",
				zap.String("path", target),
				zap.Float64("availability_target", objectives.Availability.Target))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Objectives watcher error", zap.Error(err))
		}
	}
}
