package observability

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Components reported by the readiness probe.
const (
	ComponentCore     = "core"
	ComponentNATS     = "nats"
	ComponentDatabase = "database"
)

// HealthChecker tracks liveness and per-component readiness.
// The service is ready once every registered component reports ready.
type HealthChecker struct {
	ready     atomic.Bool
	startTime time.Time

	mu         sync.RWMutex
	components map[string]bool
	onChange   []func(ready bool)
}

func NewHealthChecker(components ...string) *HealthChecker {
	h := &HealthChecker{
		startTime:  time.Now(),
		components: make(map[string]bool, len(components)),
	}
	for _, c := range components {
		h.components[c] = false
	}
	return h
}

// SetComponentReady records one component's state and recomputes overall readiness.
func (h *HealthChecker) SetComponentReady(component string, ready bool) {
	h.mu.Lock()
	h.components[component] = ready
	all := true
	for _, ok := range h.components {
		all = all && ok
	}
	listeners := append([]func(bool){}, h.onChange...)
	h.mu.Unlock()

	if h.ready.Swap(all) != all {
		for _, fn := range listeners {
			fn(all)
		}
	}
}

// OnChange registers fn to be called whenever overall readiness flips.
func (h *HealthChecker) OnChange(fn func(ready bool)) {
	h.mu.Lock()
	h.onChange = append(h.onChange, fn)
	h.mu.Unlock()
}

// IsReady returns whether the service is ready.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// Components returns a copy of the per-component state.
func (h *HealthChecker) Components() map[string]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]bool, len(h.components))
	for k, v := range h.components {
		out[k] = v
	}
	return out
}

// LivenessHandler returns HTTP 200 while the process is running.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler returns HTTP 200 if every component is ready, 503 otherwise.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	comps := h.Components()
	names := make([]string, 0, len(comps))
	for name := range comps {
		names = append(names, name)
	}
	sort.Strings(names)
	pending := []string{}
	for _, name := range names {
		if !comps[name] {
			pending = append(pending, name)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if h.ready.Load() {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ready",
		})
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "not_ready",
			"pending": pending,
		})
	}
}
