package observe

import (
	"errors"
	"testing"
	"time"

	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/logger"
)

func testDetector() *Detector {
	return NewDetector(nil, logger.Default())
}

func TestObserveFetchResponseTime(t *testing.T) {
	d := testDetector()

	d.ObserveFetch(domain.SourceMixesDB, time.Second, nil)
	if d.Pending() != 0 {
		t.Errorf("fast fetch raised %d anomalies", d.Pending())
	}

	d.ObserveFetch(domain.SourceMixesDB, 7*time.Second, nil)
	if d.Pending() != 1 {
		t.Fatalf("slow fetch raised %d anomalies, want 1 warning", d.Pending())
	}

	d.ObserveFetch(domain.SourceMixesDB, 15*time.Second, nil)
	if d.Pending() != 2 {
		t.Fatalf("very slow fetch raised %d anomalies, want 2", d.Pending())
	}
}

func TestObserveFetchErrorRateNeedsMinimumSamples(t *testing.T) {
	d := testDetector()

	// 10 straight failures: 100% error rate but under the sample minimum.
	for i := 0; i < 10; i++ {
		d.ObserveFetch(domain.SourceReddit, time.Second, errors.New("boom"))
	}
	if d.Pending() != 0 {
		t.Errorf("raised %d anomalies under the sample minimum", d.Pending())
	}

	// Bring the window to 20 samples with 10 failures: 50% rate, critical.
	for i := 0; i < 10; i++ {
		d.ObserveFetch(domain.SourceReddit, time.Second, nil)
	}
	if d.Pending() != 1 {
		t.Errorf("raised %d anomalies, want 1 critical", d.Pending())
	}
}

func TestObserveFetchWindowSlides(t *testing.T) {
	d := testDetector()

	// Fill the window with failures, then wash them out with successes.
	for i := 0; i < sampleWindow; i++ {
		d.ObserveFetch(domain.SourceSetlistFM, time.Second, errors.New("down"))
	}
	for i := 0; i < sampleWindow; i++ {
		d.ObserveFetch(domain.SourceSetlistFM, time.Second, nil)
	}
	before := d.Pending()

	// The old failures have slid out; a healthy fetch raises nothing new.
	d.ObserveFetch(domain.SourceSetlistFM, time.Second, nil)
	if d.Pending() != before {
		t.Errorf("healthy fetch on a clean window raised an anomaly")
	}
}

func TestObserveSeries(t *testing.T) {
	d := testDetector()
	history := []float64{10, 11, 9, 10, 10, 11, 9, 10}

	d.ObserveSeries("data_quality", "tracks.count", 10.5, history)
	if d.Pending() != 0 {
		t.Errorf("in-band value raised an anomaly")
	}

	d.ObserveSeries("data_quality", "tracks.count", 50, history)
	if d.Pending() != 1 {
		t.Errorf("outlier not flagged, pending = %d", d.Pending())
	}

	// Degenerate histories never divide by zero.
	d.ObserveSeries("data_quality", "flat", 100, []float64{5, 5, 5})
	d.ObserveSeries("data_quality", "short", 100, []float64{5})
	if d.Pending() != 1 {
		t.Errorf("degenerate history raised anomalies, pending = %d", d.Pending())
	}
}

func TestMeanStddev(t *testing.T) {
	mean, stddev := meanStddev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if mean != 5 {
		t.Errorf("mean = %v, want 5", mean)
	}
	if stddev != 2 {
		t.Errorf("stddev = %v, want 2", stddev)
	}
}

func TestRaiseBuffersDetail(t *testing.T) {
	d := testDetector()
	src := "mixesdb"
	d.Raise("data_quality", &src, "tracks.schema_conformity", 0.7, 0.8, SeverityCritical, "bpm out of range")
	if d.Pending() != 1 {
		t.Fatalf("Pending = %d", d.Pending())
	}
}
