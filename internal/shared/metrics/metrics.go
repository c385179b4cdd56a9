package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	assessmentStartedTotal   atomic.Uint64
	assessmentCompletedTotal atomic.Uint64
	assessmentFailedTotal    atomic.Uint64
	assessmentCancelledTotal atomic.Uint64

	batchRetriedTotal   atomic.Uint64
	batchExhaustedTotal atomic.Uint64

	parseCacheHitTotal  atomic.Uint64
	parseCacheMissTotal atomic.Uint64

	jobsReceivedTotal             atomic.Uint64
	jobsCompletedTotal            atomic.Uint64
	jobsFailedTotal               atomic.Uint64
	jobsDeletedUnrecoverableTotal atomic.Uint64

	assessmentDuration = newHistogram([]float64{1000, 5000, 15000, 30000, 60000, 120000, 300000, 600000, 1200000})
	modelCallDuration  = newHistogram([]float64{250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 90000})
)

// IncAssessmentStarted increments the started counter.
func IncAssessmentStarted() {
	assessmentStartedTotal.Add(1)
}

// IncAssessmentCompleted increments the completed counter.
func IncAssessmentCompleted() {
	assessmentCompletedTotal.Add(1)
}

// IncAssessmentFailed increments the failed counter.
func IncAssessmentFailed() {
	assessmentFailedTotal.Add(1)
}

// IncAssessmentCancelled increments the cancelled counter.
func IncAssessmentCancelled() {
	assessmentCancelledTotal.Add(1)
}

// IncBatchRetried counts criteria-batch retry attempts.
func IncBatchRetried() {
	batchRetriedTotal.Add(1)
}

// IncBatchExhausted counts criteria batches that exhausted their retry budget.
func IncBatchExhausted() {
	batchExhaustedTotal.Add(1)
}

// IncParseCacheHit counts extraction cache hits.
func IncParseCacheHit() {
	parseCacheHitTotal.Add(1)
}

// IncParseCacheMiss counts extraction cache misses.
func IncParseCacheMiss() {
	parseCacheMissTotal.Add(1)
}

// IncJobsReceived counts queue messages received by the worker.
func IncJobsReceived() {
	jobsReceivedTotal.Add(1)
}

// IncJobsCompleted counts queue messages processed and deleted.
func IncJobsCompleted() {
	jobsCompletedTotal.Add(1)
}

// IncJobsFailed counts queue messages whose processing failed.
func IncJobsFailed() {
	jobsFailedTotal.Add(1)
}

// IncJobsDeletedUnrecoverable counts malformed messages dropped from the queue.
func IncJobsDeletedUnrecoverable() {
	jobsDeletedUnrecoverableTotal.Add(1)
}

// ObserveAssessmentDurationMs records a whole-assessment duration in milliseconds.
func ObserveAssessmentDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	assessmentDuration.Observe(value)
}

// ObserveModelCallDurationMs records a single model call duration in milliseconds.
func ObserveModelCallDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	modelCallDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "assessment_started_total", "Total assessments started", assessmentStartedTotal.Load())
	writeCounter(&buf, "assessment_completed_total", "Total assessments completed", assessmentCompletedTotal.Load())
	writeCounter(&buf, "assessment_failed_total", "Total assessments failed", assessmentFailedTotal.Load())
	writeCounter(&buf, "assessment_cancelled_total", "Total assessments cancelled", assessmentCancelledTotal.Load())
	writeCounter(&buf, "criteria_batch_retried_total", "Total criteria-batch retry attempts", batchRetriedTotal.Load())
	writeCounter(&buf, "criteria_batch_exhausted_total", "Total criteria batches with exhausted retries", batchExhaustedTotal.Load())
	writeCounter(&buf, "parse_cache_hit_total", "Total extraction cache hits", parseCacheHitTotal.Load())
	writeCounter(&buf, "parse_cache_miss_total", "Total extraction cache misses", parseCacheMissTotal.Load())
	writeCounter(&buf, "worker_jobs_received_total", "Total queue messages received", jobsReceivedTotal.Load())
	writeCounter(&buf, "worker_jobs_completed_total", "Total queue messages completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "worker_jobs_failed_total", "Total queue messages failed", jobsFailedTotal.Load())
	writeCounter(&buf, "worker_jobs_deleted_unrecoverable_total", "Total malformed queue messages dropped", jobsDeletedUnrecoverableTotal.Load())
	writeHistogram(&buf, "assessment_duration_ms", "Assessment duration in milliseconds", assessmentDuration.Snapshot())
	writeHistogram(&buf, "model_call_duration_ms", "Model call duration in milliseconds", modelCallDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
