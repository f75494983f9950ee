package topology

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pinger is implemented by backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServiceStatus is the outcome of one probe.
type ServiceStatus struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// HealthChecker probes registered services concurrently.
type HealthChecker struct {
	mu       sync.RWMutex
	services map[string]Pinger
	timeout  time.Duration
}

// NewHealthChecker bounds each probe by timeout (default 5s).
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{services: make(map[string]Pinger), timeout: timeout}
}

// Register adds or replaces a named service.
func (h *HealthChecker) Register(name string, p Pinger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.services[name] = p
}

// Check pings every service and returns statuses sorted by name. A failing
// service never cancels the other probes.
func (h *HealthChecker) Check(ctx context.Context) []ServiceStatus {
	h.mu.RLock()
	names := make([]string, 0, len(h.services))
	targets := make(map[string]Pinger, len(h.services))
	for name, p := range h.services {
		names = append(names, name)
		targets[name] = p
	}
	h.mu.RUnlock()
	sort.Strings(names)

	results := make([]ServiceStatus, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			start := time.Now()
			err := targets[name].Ping(pctx)
			st := ServiceStatus{Name: name, Healthy: err == nil, Latency: time.Since(start)}
			if err != nil {
				st.Error = err.Error()
			}
			results[i] = st
			return nil
		})
	}
	_ = g.Wait()
	return results
}
