package monitoring

import (
	"sync"
	"time"
)

// RunMetrics aggregates execution metrics across all runs.
type RunMetrics struct {
	RunCount              int           `json:"run_count"`
	SuccessCount          int           `json:"success_count"`
	FailureCount          int           `json:"failure_count"`
	ValidationFailedCount int           `json:"validation_failed_count"`
	TotalDuration         time.Duration `json:"total_duration"`
	AverageDuration       time.Duration `json:"average_duration"`
	MinDuration           time.Duration `json:"min_duration"`
	MaxDuration           time.Duration `json:"max_duration"`
	LastRunAt             time.Time     `json:"last_run_at"`
}

// AIMetrics aggregates AI request usage across providers.
type AIMetrics struct {
	TotalRequests  int            `json:"total_requests"`
	RequestsByName map[string]int `json:"requests_by_provider"`
	FailuresByName map[string]int `json:"failures_by_provider"`
	AverageLatency time.Duration  `json:"average_latency"`
	totalLatency   time.Duration
}

// MetricsCollector collects run and AI usage metrics. It also implements
// RunObserver so it can be fed directly by the observer manager.
type MetricsCollector struct {
	mu       sync.RWMutex
	runs     RunMetrics
	ai       AIMetrics
	started  map[string]time.Time
	chapters map[string]int
}

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		ai:       AIMetrics{RequestsByName: map[string]int{}, FailuresByName: map[string]int{}},
		started:  map[string]time.Time{},
		chapters: map[string]int{},
	}
}

// OnRunStarted implements RunObserver.
func (c *MetricsCollector) OnRunStarted(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started[runID] = time.Now()
}

// OnPhaseEntered implements RunObserver.
func (c *MetricsCollector) OnPhaseEntered(runID, phase string) {}

// OnChapterProgress implements RunObserver.
func (c *MetricsCollector) OnChapterProgress(runID string, chapterID int, status string, wordCount int) {
	if status != "done" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chapters[runID]++
}

// OnRunFinished implements RunObserver.
func (c *MetricsCollector) OnRunFinished(runID, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runs.RunCount++
	switch status {
	case "done":
		c.runs.SuccessCount++
	case "validation_failed":
		c.runs.ValidationFailedCount++
	default:
		c.runs.FailureCount++
	}

	if startedAt, ok := c.started[runID]; ok {
		duration := time.Since(startedAt)
		c.runs.TotalDuration += duration
		if c.runs.MinDuration == 0 || duration < c.runs.MinDuration {
			c.runs.MinDuration = duration
		}
		if duration > c.runs.MaxDuration {
			c.runs.MaxDuration = duration
		}
		c.runs.AverageDuration = c.runs.TotalDuration / time.Duration(c.runs.RunCount)
		delete(c.started, runID)
	}
	delete(c.chapters, runID)
	c.runs.LastRunAt = time.Now()
}

// RecordAIRequest records one AI call outcome.
func (c *MetricsCollector) RecordAIRequest(provider string, latency time.Duration, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ai.TotalRequests++
	c.ai.RequestsByName[provider]++
	if !success {
		c.ai.FailuresByName[provider]++
	}
	c.ai.totalLatency += latency
	c.ai.AverageLatency = c.ai.totalLatency / time.Duration(c.ai.TotalRequests)
}

// Snapshot returns a copy of all collected metrics.
func (c *MetricsCollector) Snapshot() (RunMetrics, AIMetrics) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	runs := c.runs
	aiCopy := AIMetrics{
		TotalRequests:  c.ai.TotalRequests,
		AverageLatency: c.ai.AverageLatency,
		RequestsByName: map[string]int{},
		FailuresByName: map[string]int{},
	}
	for k, v := range c.ai.RequestsByName {
		aiCopy.RequestsByName[k] = v
	}
	for k, v := range c.ai.FailuresByName {
		aiCopy.FailuresByName[k] = v
	}
	return runs, aiCopy
}
