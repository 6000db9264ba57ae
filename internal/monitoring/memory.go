package monitoring

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// MemorySnapshot is one sampled view of the runtime's memory state.
type MemorySnapshot struct {
	Alloc         uint64    `json:"alloc_bytes"`
	TotalAlloc    uint64    `json:"total_alloc_bytes"`
	Sys           uint64    `json:"sys_bytes"`
	Mallocs       uint64    `json:"mallocs"`
	Frees         uint64    `json:"frees"`
	HeapAlloc     uint64    `json:"heap_alloc_bytes"`
	HeapSys       uint64    `json:"heap_sys_bytes"`
	HeapIdle      uint64    `json:"heap_idle_bytes"`
	HeapInuse     uint64    `json:"heap_inuse_bytes"`
	HeapObjects   uint64    `json:"heap_objects"`
	StackInuse    uint64    `json:"stack_inuse_bytes"`
	GCCPUFraction float64   `json:"gc_cpu_fraction"`
	NumGC         uint32    `json:"num_gc"`
	PauseTotalNs  uint64    `json:"gc_pause_total_ns"`
	NumGoroutine  int       `json:"num_goroutine"`
	Timestamp     time.Time `json:"timestamp"`
}

// MemoryMonitor samples runtime memory stats on an interval, feeds them
// into the metrics registry, and forces a GC cycle when the heap grows
// past the configured threshold. The catalogue snapshot swap is the main
// allocation source in this service, so the threshold is sized to a few
// snapshot generations.
type MemoryMonitor struct {
	current     MemorySnapshot
	history     []MemorySnapshot
	maxHistory  int
	interval    time.Duration
	stopChannel chan struct{}
	gcThreshold uint64
	logger      *Logger
	metrics     *Metrics
	mutex       sync.RWMutex
}

// NewMemoryMonitor creates a new memory monitor. metrics may be nil;
// samples are then only kept locally.
func NewMemoryMonitor(interval time.Duration, gcThreshold uint64, logger *Logger, metrics *Metrics) *MemoryMonitor {
	return &MemoryMonitor{
		history:     make([]MemorySnapshot, 0, 100),
		maxHistory:  100,
		interval:    interval,
		stopChannel: make(chan struct{}),
		gcThreshold: gcThreshold,
		logger:      logger,
		metrics:     metrics,
	}
}

// Start begins sampling in a goroutine.
func (mm *MemoryMonitor) Start() {
	go func() {
		ticker := time.NewTicker(mm.interval)
		defer ticker.Stop()

		slog.Info("Starting memory monitoring", "interval_ms", mm.interval.Milliseconds())

		for {
			select {
			case <-ticker.C:
				mm.sample()
			case <-mm.stopChannel:
				slog.Info("Memory monitoring stopped")
				return
			}
		}
	}()
}

// Stop stops memory monitoring
func (mm *MemoryMonitor) Stop() {
	close(mm.stopChannel)
}

func (mm *MemoryMonitor) sample() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snapshot := MemorySnapshot{
		Alloc:         memStats.Alloc,
		TotalAlloc:    memStats.TotalAlloc,
		Sys:           memStats.Sys,
		Mallocs:       memStats.Mallocs,
		Frees:         memStats.Frees,
		HeapAlloc:     memStats.HeapAlloc,
		HeapSys:       memStats.HeapSys,
		HeapIdle:      memStats.HeapIdle,
		HeapInuse:     memStats.HeapInuse,
		HeapObjects:   memStats.HeapObjects,
		StackInuse:    memStats.StackInuse,
		GCCPUFraction: memStats.GCCPUFraction,
		NumGC:         memStats.NumGC,
		PauseTotalNs:  memStats.PauseTotalNs,
		NumGoroutine:  runtime.NumGoroutine(),
		Timestamp:     time.Now(),
	}

	mm.mutex.Lock()
	mm.current = snapshot
	mm.history = append(mm.history, snapshot)
	if len(mm.history) > mm.maxHistory {
		mm.history = mm.history[1:]
	}
	mm.mutex.Unlock()

	if mm.metrics != nil {
		mm.metrics.RecordGCMetrics(
			int64(snapshot.NumGC),
			int64(snapshot.PauseTotalNs),
			int64(snapshot.HeapAlloc),
			int64(snapshot.HeapSys),
		)
	}

	if memStats.HeapAlloc > mm.gcThreshold {
		slog.Info("Triggering manual garbage collection",
			"heap_alloc_mb", memStats.HeapAlloc/(1024*1024),
			"gc_threshold_mb", mm.gcThreshold/(1024*1024))
		mm.ForceGC()
	}
}

// GetStats returns the latest sample plus derived gauges for the
// /memory endpoint.
func (mm *MemoryMonitor) GetStats() map[string]interface{} {
	mm.mutex.RLock()
	defer mm.mutex.RUnlock()

	heapUtilization := float64(0)
	if mm.current.HeapSys > 0 {
		heapUtilization = float64(mm.current.HeapInuse) / float64(mm.current.HeapSys)
	}

	mallocRate := float64(0)
	if len(mm.history) >= 2 {
		oldest := mm.history[0]
		timeDiff := mm.current.Timestamp.Sub(oldest.Timestamp).Seconds()
		if timeDiff > 0 {
			mallocRate = float64(mm.current.Mallocs-oldest.Mallocs) / timeDiff
		}
	}

	return map[string]interface{}{
		"current": map[string]interface{}{
			"alloc_mb":        mm.current.Alloc / (1024 * 1024),
			"total_alloc_mb":  mm.current.TotalAlloc / (1024 * 1024),
			"sys_mb":          mm.current.Sys / (1024 * 1024),
			"heap_alloc_mb":   mm.current.HeapAlloc / (1024 * 1024),
			"heap_sys_mb":     mm.current.HeapSys / (1024 * 1024),
			"heap_inuse_mb":   mm.current.HeapInuse / (1024 * 1024),
			"heap_objects":    mm.current.HeapObjects,
			"gc_cpu_fraction": mm.current.GCCPUFraction,
			"num_gc":          mm.current.NumGC,
			"num_goroutine":   mm.current.NumGoroutine,
		},
		"derived": map[string]interface{}{
			"heap_utilization":    heapUtilization,
			"malloc_rate_per_sec": mallocRate,
		},
		"history_count":   len(mm.history),
		"gc_threshold_mb": mm.gcThreshold / (1024 * 1024),
	}
}

// ForceGC forces a garbage collection cycle
func (mm *MemoryMonitor) ForceGC() {
	start := time.Now()
	runtime.GC()
	duration := time.Since(start)

	mm.logger.PerformanceLogger("forced_gc", float64(duration.Milliseconds()), "ms")
}

// OptimizeMemory forces a collection when heap utilization is high.
// Exposed through the admin surface for incident response.
func (mm *MemoryMonitor) OptimizeMemory() {
	mm.mutex.RLock()
	current := mm.current
	mm.mutex.RUnlock()

	heapUtilization := float64(0)
	if current.HeapSys > 0 {
		heapUtilization = float64(current.HeapInuse) / float64(current.HeapSys)
	}

	if heapUtilization > 0.8 {
		slog.Warn("High heap utilization detected", "utilization", heapUtilization)
		mm.ForceGC()
	}

	mm.logger.SystemLogger("memory_optimization", fmt.Sprintf(
		"heap_utilization:%.2f gc_cpu_fraction:%.4f",
		heapUtilization, current.GCCPUFraction,
	))
}
