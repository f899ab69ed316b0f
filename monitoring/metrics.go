// Package monitoring 收集预测服务的运行指标
package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// OutcomeOK labels requests that returned a prediction.
const OutcomeOK = "ok"

// Collector 指标收集器
type Collector struct {
	mu sync.RWMutex

	outcomes     map[string]int64
	latencyTotal time.Duration
	latencyMax   time.Duration
	inflight     int64
	startTime    time.Time
}

// Snapshot 指标快照
type Snapshot struct {
	Outcomes         map[string]int64 `json:"outcomes"`
	RequestsTotal    int64            `json:"requests_total"`
	InFlight         int64            `json:"inflight"`
	AvgLatencyMillis float64          `json:"avg_latency_ms"`
	MaxLatencyMillis float64          `json:"max_latency_ms"`
	Goroutines       int              `json:"goroutines"`
	HeapAllocBytes   uint64           `json:"heap_alloc_bytes"`
	Uptime           time.Duration    `json:"uptime"`
}

// NewCollector 创建指标收集器
func NewCollector() *Collector {
	return &Collector{
		outcomes:  make(map[string]int64),
		startTime: time.Now(),
	}
}

// RequestStarted 记录请求开始
func (c *Collector) RequestStarted() {
	c.mu.Lock()
	c.inflight++
	c.mu.Unlock()
}

// RequestDone records a finished predict request. outcome is OutcomeOK or
// the error kind.
func (c *Collector) RequestDone(outcome string, latency time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inflight--
	c.outcomes[outcome]++
	c.latencyTotal += latency
	if latency > c.latencyMax {
		c.latencyMax = latency
	}
}

// Snapshot 返回当前指标的副本
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	outcomes := make(map[string]int64, len(c.outcomes))
	var total int64
	for k, v := range c.outcomes {
		outcomes[k] = v
		total += v
	}
	latencyTotal := c.latencyTotal
	latencyMax := c.latencyMax
	inflight := c.inflight
	c.mu.RUnlock()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	avg := 0.0
	if total > 0 {
		avg = float64(latencyTotal) / float64(total) / float64(time.Millisecond)
	}
	return Snapshot{
		Outcomes:         outcomes,
		RequestsTotal:    total,
		InFlight:         inflight,
		AvgLatencyMillis: avg,
		MaxLatencyMillis: float64(latencyMax) / float64(time.Millisecond),
		Goroutines:       runtime.NumGoroutine(),
		HeapAllocBytes:   mem.HeapAlloc,
		Uptime:           time.Since(c.startTime),
	}
}

// ExportPrometheus 导出Prometheus格式
func (s Snapshot) ExportPrometheus() string {
	var b strings.Builder

	b.WriteString("# HELP predict_requests_total Predict requests by outcome\n")
	b.WriteString("# TYPE predict_requests_total counter\n")
	keys := make([]string, 0, len(s.Outcomes))
	for k := range s.Outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "predict_requests_total{outcome=%q} %d\n", k, s.Outcomes[k])
	}

	fmt.Fprintf(&b, "# TYPE predict_inflight gauge\npredict_inflight %d\n", s.InFlight)
	fmt.Fprintf(&b, "# TYPE predict_latency_ms_avg gauge\npredict_latency_ms_avg %.6f\n", s.AvgLatencyMillis)
	fmt.Fprintf(&b, "# TYPE predict_latency_ms_max gauge\npredict_latency_ms_max %.6f\n", s.MaxLatencyMillis)
	fmt.Fprintf(&b, "# TYPE process_goroutines gauge\nprocess_goroutines %d\n", s.Goroutines)
	fmt.Fprintf(&b, "# TYPE process_heap_alloc_bytes gauge\nprocess_heap_alloc_bytes %d\n", s.HeapAllocBytes)
	fmt.Fprintf(&b, "# TYPE process_uptime_seconds gauge\nprocess_uptime_seconds %.0f\n", s.Uptime.Seconds())
	return b.String()
}
