package observe

import (
	"math"
	"sync"
	"time"

	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/logger"
	"github.com/setgraph/setgraph/internal/store"
)

const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

const (
	responseTimeWarn     = 5 * time.Second
	responseTimeCritical = 10 * time.Second

	errorRateWarn     = 0.05
	errorRateCritical = 0.20
	// errorRateMinSamples keeps a single early failure from tripping the
	// 20% threshold.
	errorRateMinSamples = 20

	zScoreThreshold = 3.0

	sampleWindow = 100
)

type sourceWindow struct {
	total    int
	failures int
	outcomes []bool
}

// Detector watches fetch outcomes and arbitrary metric series for outliers.
// Anomalies are buffered in memory and flushed in one batch so detection
// stays cheap on the hot path.
type Detector struct {
	db  *store.DB
	log *logger.Logger

	mu      sync.Mutex
	buffer  []*store.Anomaly
	windows map[domain.Source]*sourceWindow
}

func NewDetector(db *store.DB, log *logger.Logger) *Detector {
	return &Detector{
		db:      db,
		log:     log.WithComponent("anomaly"),
		windows: make(map[domain.Source]*sourceWindow),
	}
}

// ObserveFetch feeds one fetch outcome into the per-source window, raising
// response-time and error-rate anomalies as thresholds are crossed.
func (d *Detector) ObserveFetch(source domain.Source, duration time.Duration, fetchErr error) {
	src := string(source)

	switch {
	case duration > responseTimeCritical:
		d.Raise("response_time", &src, "fetch_duration_seconds",
			duration.Seconds(), responseTimeCritical.Seconds(), SeverityCritical, "")
	case duration > responseTimeWarn:
		d.Raise("response_time", &src, "fetch_duration_seconds",
			duration.Seconds(), responseTimeWarn.Seconds(), SeverityWarning, "")
	}

	d.mu.Lock()
	w, ok := d.windows[source]
	if !ok {
		w = &sourceWindow{}
		d.windows[source] = w
	}
	w.total++
	if fetchErr != nil {
		w.failures++
	}
	w.outcomes = append(w.outcomes, fetchErr == nil)
	if len(w.outcomes) > sampleWindow {
		if !w.outcomes[0] {
			w.failures--
		}
		w.outcomes = w.outcomes[1:]
	}
	rate := 0.0
	samples := len(w.outcomes)
	if samples > 0 {
		rate = float64(w.failures) / float64(samples)
	}
	d.mu.Unlock()

	if samples < errorRateMinSamples {
		return
	}
	switch {
	case rate > errorRateCritical:
		d.Raise("error_rate", &src, "fetch_error_rate", rate, errorRateCritical, SeverityCritical, "")
	case rate > errorRateWarn:
		d.Raise("error_rate", &src, "fetch_error_rate", rate, errorRateWarn, SeverityWarning, "")
	}
}

// ObserveSeries compares the latest value of a metric against its history and
// raises a warning when the z-score exceeds 3.
func (d *Detector) ObserveSeries(kind, metric string, observed float64, history []float64) {
	if len(history) < 2 {
		return
	}
	mean, stddev := meanStddev(history)
	if stddev == 0 {
		return
	}
	z := math.Abs(observed-mean) / stddev
	if z <= zScoreThreshold {
		return
	}
	d.Raise(kind, nil, metric, observed, mean+zScoreThreshold*stddev, SeverityWarning, "")
}

// Raise buffers one anomaly for the next flush.
func (d *Detector) Raise(kind string, source *string, metric string, observed, threshold float64, severity, detail string) {
	a := &store.Anomaly{
		Kind:       kind,
		Source:     source,
		Metric:     metric,
		Observed:   observed,
		Threshold:  threshold,
		Severity:   severity,
		RecordedAt: time.Now(),
	}
	if detail != "" {
		a.Detail = &detail
	}

	d.mu.Lock()
	d.buffer = append(d.buffer, a)
	d.mu.Unlock()

	d.log.Warn("anomaly detected",
		"kind", kind, "metric", metric,
		"observed", observed, "threshold", threshold, "severity", severity,
	)
}

// Flush writes the buffered anomalies. Rows that fail to insert go back into
// the buffer for the next flush.
func (d *Detector) Flush() error {
	d.mu.Lock()
	pending := d.buffer
	d.buffer = nil
	d.mu.Unlock()

	var firstErr error
	var retry []*store.Anomaly
	for _, a := range pending {
		if err := d.db.InsertAnomaly(a); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			retry = append(retry, a)
		}
	}
	if len(retry) > 0 {
		d.mu.Lock()
		d.buffer = append(retry, d.buffer...)
		d.mu.Unlock()
	}
	return firstErr
}

// Pending reports the buffered anomaly count for /stats.
func (d *Detector) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffer)
}

func meanStddev(values []float64) (float64, float64) {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
