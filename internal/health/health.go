package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates that the component is healthy
	StatusUp Status = "up"
	// StatusDown indicates that the component is unhealthy
	StatusDown Status = "down"
	// StatusDegraded indicates that the component is partially healthy
	StatusDegraded Status = "degraded"
)

// CheckFunc probes a single component
type CheckFunc func(ctx context.Context) (Status, error)

// Component represents a component that can be health checked
type Component struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Checker runs registered checks periodically and serves the results
type Checker struct {
	components   map[string]*Component
	checkFuncs   map[string]CheckFunc
	updatedAt    time.Time
	mu           sync.RWMutex
	checkPeriod  time.Duration
	checkTimeout time.Duration
	listeners    []func(Status)
	stopChan     chan struct{}
	stopOnce     sync.Once
}

// NewChecker creates a new health checker running every period
func NewChecker(period time.Duration) *Checker {
	if period <= 0 {
		period = 30 * time.Second
	}
	return &Checker{
		components:   make(map[string]*Component),
		checkFuncs:   make(map[string]CheckFunc),
		updatedAt:    time.Now(),
		checkPeriod:  period,
		checkTimeout: 5 * time.Second,
		stopChan:     make(chan struct{}),
	}
}

// RegisterComponent registers a component with the health checker
func (c *Checker) RegisterComponent(name string, checkFunc CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.components[name] = &Component{
		Name:   name,
		Status: StatusDown,
	}
	c.checkFuncs[name] = checkFunc
}

// Subscribe registers fn to be called with the overall status after every
// round of checks
func (c *Checker) Subscribe(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listeners = append(c.listeners, fn)
}

// Start runs an initial round of checks, then one every period until ctx
// is done or Stop is called
func (c *Checker) Start(ctx context.Context) {
	c.CheckNow(ctx)

	go func() {
		ticker := time.NewTicker(c.checkPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.CheckNow(ctx)
			case <-ctx.Done():
				return
			case <-c.stopChan:
				return
			}
		}
	}()
}

// Stop stops the health checker
func (c *Checker) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}

// CheckNow runs every check in parallel and records the results
func (c *Checker) CheckNow(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checkFuncs))
	for name, checkFunc := range c.checkFuncs {
		checks[name] = checkFunc
	}
	c.mu.RUnlock()

	type result struct {
		name   string
		status Status
		err    error
	}
	results := make(chan result, len(checks))

	var wg sync.WaitGroup
	for name, checkFunc := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := checkFunc(ctx)
			results <- result{name: name, status: status, err: err}
		}()
	}
	wg.Wait()
	close(results)

	c.mu.Lock()
	c.updatedAt = time.Now()
	for r := range results {
		component, exists := c.components[r.name]
		if !exists {
			continue
		}
		component.Status = r.status
		component.Error = ""
		if r.err != nil {
			component.Error = r.err.Error()
		}
	}
	overall := c.overallLocked()
	listeners := append([]func(Status){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(overall)
	}
}

// GetComponentStatus gets the status of a component
func (c *Checker) GetComponentStatus(name string) (Component, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	component, exists := c.components[name]
	if !exists {
		return Component{}, fmt.Errorf("component not found: %s", name)
	}

	return *component, nil
}

// GetAllComponentStatuses gets the status of all components, sorted by name
func (c *Checker) GetAllComponentStatuses() []Component {
	c.mu.RLock()
	defer c.mu.RUnlock()

	statuses := make([]Component, 0, len(c.components))
	for _, component := range c.components {
		statuses = append(statuses, *component)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})

	return statuses
}

// GetOverallStatus gets the overall health status
func (c *Checker) GetOverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.overallLocked()
}

func (c *Checker) overallLocked() Status {
	if len(c.components) == 0 {
		return StatusDown
	}

	down := 0
	for _, component := range c.components {
		if component.Status == StatusDown {
			down++
		}
	}

	switch {
	case down == len(c.components):
		return StatusDown
	case down > 0:
		return StatusDegraded
	}
	return StatusUp
}

// HTTPHandler returns an HTTP handler for health checks
func (c *Checker) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		format := r.URL.Query().Get("format")
		component := r.URL.Query().Get("component")

		// If component is specified, return the status of that component
		if component != "" {
			componentStatus, err := c.GetComponentStatus(component)
			if err != nil {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprintf(w, "Component not found: %s", component)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(componentStatus)
			return
		}

		overallStatus := c.GetOverallStatus()
		if overallStatus == StatusDown {
			w.Header().Set("Cache-Control", "no-store")
		}

		if format == "simple" {
			w.Header().Set("Content-Type", "text/plain")
			if overallStatus == StatusDown {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			fmt.Fprintf(w, "%s", overallStatus)
			return
		}

		c.mu.RLock()
		updatedAt := c.updatedAt
		c.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		if overallStatus == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     overallStatus,
			"components": c.GetAllComponentStatuses(),
			"updated_at": updatedAt.Format(time.RFC3339),
		})
	})
}
