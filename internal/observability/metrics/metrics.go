package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// UploadLabel identifies an upload lifecycle event by privacy setting and
// terminal status.
type UploadLabel struct {
	Privacy string
	Status  string
}

// Recorder aggregates in-memory metrics counters and gauges for HTTP requests,
// YouTube upload lifecycle events, OAuth token refreshes, and notification
// delivery. It coordinates concurrent writers via a RWMutex while exposing a
// thread-safe gauge for active upload tracking.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	uploadEvents    map[UploadLabel]uint64
	tokenRefreshes  map[string]uint64
	notifyEvents    map[string]uint64
	activeUploads   atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers can
// immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		uploadEvents:    make(map[UploadLabel]uint64),
		tokenRefreshes:  make(map[string]uint64),
		notifyEvents:    make(map[string]uint64),
	}
}

// Default returns the singleton Recorder instance shared across helper
// functions for packages that do not require custom instrumentation pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// UploadStarted records the beginning of a YouTube upload with the requested
// privacy setting and increments the active upload gauge.
func (r *Recorder) UploadStarted(privacy string) {
	r.recordUploadEvent(privacy, "start")
	r.activeUploads.Add(1)
}

// UploadCompleted records a successful upload and decrements the active upload
// gauge.
func (r *Recorder) UploadCompleted(privacy string) {
	r.recordUploadEvent(privacy, "complete")
	r.decrementGauge(&r.activeUploads)
}

// UploadFailed records a failed upload and decrements the active upload gauge,
// guarding against negative counts when concurrent updates race.
func (r *Recorder) UploadFailed(privacy string) {
	r.recordUploadEvent(privacy, "fail")
	r.decrementGauge(&r.activeUploads)
}

func (r *Recorder) recordUploadEvent(privacy, status string) {
	label := UploadLabel{
		Privacy: normalizeName(privacy),
		Status:  normalizeName(status),
	}
	r.mu.Lock()
	r.uploadEvents[label]++
	r.mu.Unlock()
}

// ObserveTokenRefresh records an OAuth token refresh outcome, keyed by result
// (e.g. "success" or "failure").
func (r *Recorder) ObserveTokenRefresh(result string) {
	normalized := normalizeName(result)
	r.mu.Lock()
	r.tokenRefreshes[normalized]++
	r.mu.Unlock()
}

// ObserveNotification records a published notification event type for
// throughput monitoring.
func (r *Recorder) ObserveNotification(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.notifyEvents[normalized]++
	r.mu.Unlock()
}

// ActiveUploads exposes the current gauge of uploads in flight.
func (r *Recorder) ActiveUploads() int64 {
	return r.activeUploads.Load()
}

// UploadCounts returns a copy of the upload event counters and the current
// active upload gauge value.
func (r *Recorder) UploadCounts() (events map[UploadLabel]uint64, active int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events = make(map[UploadLabel]uint64, len(r.uploadEvents))
	for k, v := range r.uploadEvents {
		events[k] = v
	}
	return events, r.activeUploads.Load()
}

// Reset clears all counters and gauges on the recorder. It is intended for
// test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.uploadEvents = make(map[UploadLabel]uint64)
	r.tokenRefreshes = make(map[string]uint64)
	r.notifyEvents = make(map[string]uint64)
	r.activeUploads.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting label
// sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	uploadLabels := r.sortedUploadLabels()
	refreshResults := sortedKeys(r.tokenRefreshes)
	notifyEvents := sortedKeys(r.notifyEvents)

	fmt.Fprintln(w, "# HELP vidpress_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE vidpress_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "vidpress_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP vidpress_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE vidpress_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "vidpress_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP vidpress_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE vidpress_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "vidpress_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP vidpress_upload_events_total YouTube upload lifecycle events by privacy and status")
	fmt.Fprintln(w, "# TYPE vidpress_upload_events_total counter")
	for _, label := range uploadLabels {
		count := r.uploadEvents[label]
		fmt.Fprintf(w, "vidpress_upload_events_total{privacy=\"%s\",status=\"%s\"} %d\n", label.Privacy, label.Status, count)
	}

	fmt.Fprintln(w, "# HELP vidpress_active_uploads Current number of uploads in flight")
	fmt.Fprintln(w, "# TYPE vidpress_active_uploads gauge")
	fmt.Fprintf(w, "vidpress_active_uploads %d\n", r.activeUploads.Load())

	fmt.Fprintln(w, "# HELP vidpress_token_refreshes_total OAuth token refresh attempts by result")
	fmt.Fprintln(w, "# TYPE vidpress_token_refreshes_total counter")
	for _, result := range refreshResults {
		count := r.tokenRefreshes[result]
		fmt.Fprintf(w, "vidpress_token_refreshes_total{result=\"%s\"} %d\n", result, count)
	}

	fmt.Fprintln(w, "# HELP vidpress_notifications_total Published notification events by type")
	fmt.Fprintln(w, "# TYPE vidpress_notifications_total counter")
	for _, event := range notifyEvents {
		count := r.notifyEvents[event]
		fmt.Fprintf(w, "vidpress_notifications_total{event=\"%s\"} %d\n", event, count)
	}
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedUploadLabels() []UploadLabel {
	labels := make([]UploadLabel, 0, len(r.uploadEvents))
	for label := range r.uploadEvents {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Privacy != labels[j].Privacy {
			return labels[i].Privacy < labels[j].Privacy
		}
		return labels[i].Status < labels[j].Status
	})
	return labels
}

func sortedKeys(counters map[string]uint64) []string {
	keys := make([]string, 0, len(counters))
	for key := range counters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
			continue
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func (r *Recorder) decrementGauge(gauge *atomic.Int64) {
	for {
		current := gauge.Load()
		if current <= 0 {
			return
		}
		if gauge.CompareAndSwap(current, current-1) {
			return
		}
	}
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// UploadStarted increments counters on the default recorder.
func UploadStarted(privacy string) {
	defaultRecorder.UploadStarted(privacy)
}

// UploadCompleted records a completed upload on the default recorder.
func UploadCompleted(privacy string) {
	defaultRecorder.UploadCompleted(privacy)
}

// UploadFailed records a failed upload on the default recorder.
func UploadFailed(privacy string) {
	defaultRecorder.UploadFailed(privacy)
}

// ObserveTokenRefresh records a token refresh outcome on the default recorder.
func ObserveTokenRefresh(result string) {
	defaultRecorder.ObserveTokenRefresh(result)
}

// ObserveNotification records a notification event on the default recorder.
func ObserveNotification(event string) {
	defaultRecorder.ObserveNotification(event)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
