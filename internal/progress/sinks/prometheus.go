package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/frontier-crawler/internal/progress"
)

// PrometheusSink derives crawl progress metrics from the event stream.
type PrometheusSink struct {
	events       *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec
	fetchBytes   prometheus.Counter
	runActive    prometheus.Gauge
	paused       prometheus.Gauge
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_progress_events_total",
			Help: "Progress events observed, partitioned by stage.",
		}, []string{"stage"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_progress_fetch_seconds",
			Help:    "Fetch latency reported by CRAWLED and FAILED events.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"stage"}),
		fetchBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_progress_fetch_bytes_total",
			Help: "Response bytes downloaded by the crawl loop.",
		}),
		runActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_progress_run_active",
			Help: "1 between RUN_START and RUN_STOP events.",
		}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_progress_paused",
			Help: "1 between PAUSED and RESUMED events.",
		}),
	}
	for _, collector := range []prometheus.Collector{s.events, s.fetchLatency, s.fetchBytes, s.runActive, s.paused} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Name implements progress.NamedSink.
func (s *PrometheusSink) Name() string { return "prometheus" }

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.events.WithLabelValues(string(evt.Stage)).Inc()
		switch evt.Stage {
		case progress.StageCrawled, progress.StageFailed:
			if evt.Dur > 0 {
				s.fetchLatency.WithLabelValues(string(evt.Stage)).Observe(evt.Dur.Seconds())
			}
			if evt.Bytes > 0 {
				s.fetchBytes.Add(float64(evt.Bytes))
			}
		case progress.StageRunStart:
			s.runActive.Set(1)
		case progress.StageRunStop:
			s.runActive.Set(0)
		case progress.StagePaused:
			s.paused.Set(1)
		case progress.StageResumed:
			s.paused.Set(0)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
