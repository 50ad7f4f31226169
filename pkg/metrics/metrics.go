package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry collects in-process counters for the task API: per-endpoint
// request stats plus operation and auth outcome totals.
type Registry struct {
	mu        sync.RWMutex
	endpoint  map[string]*EndpointStat
	operation map[string]int64
	authFail  int64
	limited   int64
	gauges    map[string]float64
}

type EndpointStat struct {
	Count          int64   `json:"count"`
	ErrorCount     int64   `json:"error_count"`
	TotalMillis    int64   `json:"total_millis"`
	MaxMillis      int64   `json:"max_millis"`
	AverageMillis  float64 `json:"average_millis"`
	LastStatusCode int     `json:"last_status_code"`
}

type Snapshot struct {
	GeneratedAt      string                  `json:"generated_at"`
	Endpoints        map[string]EndpointStat `json:"endpoints"`
	TaskOperations   map[string]int64        `json:"task_operations"`
	AuthFailures     int64                   `json:"auth_failures_total"`
	RateLimitedTotal int64                   `json:"rate_limited_total"`
	Gauges           map[string]float64      `json:"gauges"`
}

func NewRegistry() *Registry {
	return &Registry{
		endpoint:  map[string]*EndpointStat{},
		operation: map[string]int64{},
		gauges:    map[string]float64{},
	}
}

func (r *Registry) Observe(path string, status int, d time.Duration) {
	millis := d.Milliseconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	stat, ok := r.endpoint[path]
	if !ok {
		stat = &EndpointStat{}
		r.endpoint[path] = stat
	}
	stat.Count++
	if status >= 400 {
		stat.ErrorCount++
	}
	stat.TotalMillis += millis
	if millis > stat.MaxMillis {
		stat.MaxMillis = millis
	}
	stat.LastStatusCode = status
	stat.AverageMillis = float64(stat.TotalMillis) / float64(stat.Count)
}

// IncOperation counts completed task operations by name (create, list, get,
// replace, patch, delete).
func (r *Registry) IncOperation(op string) {
	op = strings.ToLower(strings.TrimSpace(op))
	if op == "" {
		return
	}
	r.mu.Lock()
	r.operation[op]++
	r.mu.Unlock()
}

func (r *Registry) IncAuthFailure() {
	r.mu.Lock()
	r.authFail++
	r.mu.Unlock()
}

func (r *Registry) IncRateLimited() {
	r.mu.Lock()
	r.limited++
	r.mu.Unlock()
}

func (r *Registry) SetGauge(name string, value float64) {
	if name == "" {
		return
	}
	r.mu.Lock()
	r.gauges[name] = value
	r.mu.Unlock()
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Snapshot{
		GeneratedAt:      time.Now().UTC().Format(time.RFC3339),
		Endpoints:        make(map[string]EndpointStat, len(r.endpoint)),
		TaskOperations:   make(map[string]int64, len(r.operation)),
		AuthFailures:     r.authFail,
		RateLimitedTotal: r.limited,
		Gauges:           make(map[string]float64, len(r.gauges)),
	}
	for k, v := range r.endpoint {
		out.Endpoints[k] = *v
	}
	for k, v := range r.operation {
		out.TaskOperations[k] = v
	}
	for k, v := range r.gauges {
		out.Gauges[k] = v
	}
	return out
}

func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(snap)
	}
}

func (r *Registry) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snap := r.Snapshot()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		b := &strings.Builder{}
		b.WriteString("# HELP todo_endpoint_count total requests by endpoint\n")
		b.WriteString("# TYPE todo_endpoint_count counter\n")
		for _, ep := range sortedKeys(snap.Endpoints) {
			fmt.Fprintf(b, "todo_endpoint_count{endpoint=%q} %d\n", ep, snap.Endpoints[ep].Count)
		}
		b.WriteString("# HELP todo_endpoint_error_count total endpoint errors\n")
		b.WriteString("# TYPE todo_endpoint_error_count counter\n")
		for _, ep := range sortedKeys(snap.Endpoints) {
			fmt.Fprintf(b, "todo_endpoint_error_count{endpoint=%q} %d\n", ep, snap.Endpoints[ep].ErrorCount)
		}
		b.WriteString("# HELP todo_endpoint_avg_millis endpoint average latency in milliseconds\n")
		b.WriteString("# TYPE todo_endpoint_avg_millis gauge\n")
		for _, ep := range sortedKeys(snap.Endpoints) {
			fmt.Fprintf(b, "todo_endpoint_avg_millis{endpoint=%q} %.3f\n", ep, snap.Endpoints[ep].AverageMillis)
		}
		b.WriteString("# HELP todo_task_operation_total completed task operations\n")
		b.WriteString("# TYPE todo_task_operation_total counter\n")
		for _, op := range sortedKeys(snap.TaskOperations) {
			fmt.Fprintf(b, "todo_task_operation_total{operation=%q} %d\n", op, snap.TaskOperations[op])
		}
		b.WriteString("# HELP todo_auth_failures_total rejected authentications\n")
		b.WriteString("# TYPE todo_auth_failures_total counter\n")
		fmt.Fprintf(b, "todo_auth_failures_total %d\n", snap.AuthFailures)
		b.WriteString("# HELP todo_rate_limited_total requests rejected by the rate limiter\n")
		b.WriteString("# TYPE todo_rate_limited_total counter\n")
		fmt.Fprintf(b, "todo_rate_limited_total %d\n", snap.RateLimitedTotal)
		b.WriteString("# HELP todo_gauge operational gauge metrics\n")
		b.WriteString("# TYPE todo_gauge gauge\n")
		for _, name := range sortedKeys(snap.Gauges) {
			fmt.Fprintf(b, "todo_gauge{name=%q} %.3f\n", name, snap.Gauges[name])
		}
		_, _ = w.Write([]byte(b.String()))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
