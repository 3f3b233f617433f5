package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/korostylevkirill70-stack/tgstat-parser/internal/progress"
)

// PrometheusSink exports task progress metrics. It owns all collectors for
// tasks started/completed/running and per-page extraction counters.
type PrometheusSink struct {
	tasksStarted   prometheus.Counter
	tasksCompleted *prometheus.CounterVec
	tasksRunning   prometheus.Gauge
	taskRuntime    *prometheus.HistogramVec
	pagesScraped   *prometheus.CounterVec
	recordsScraped prometheus.Counter

	tracker *taskTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		tasksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tgparser_tasks_started_total",
			Help: "Total parsing tasks that have started.",
		}),
		tasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tgparser_tasks_completed_total",
			Help: "Total parsing tasks finished, partitioned by result.",
		}, []string{"result"}),
		tasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tgparser_tasks_running",
			Help: "Current number of running parsing tasks.",
		}),
		taskRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tgparser_task_runtime_seconds",
			Help:    "Wall time per finished parsing task.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		pagesScraped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tgparser_pages_scraped_total",
			Help: "Pages processed, partitioned by listing type and record source.",
		}, []string{"listing_type", "source"}),
		recordsScraped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tgparser_records_scraped_total",
			Help: "Result records accumulated across all tasks.",
		}),
		tracker: newTaskTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.tasksStarted,
		s.tasksCompleted,
		s.tasksRunning,
		s.taskRuntime,
		s.pagesScraped,
		s.recordsScraped,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch. Safe for
// concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageTaskStart:
		s.tasksStarted.Inc()
		if s.tracker.start(evt.TaskID) {
			s.tasksRunning.Inc()
		}
	case progress.StageTaskDone:
		s.finishTask(evt, "completed")
	case progress.StageTaskError:
		s.finishTask(evt, "failed")
	case progress.StagePageDone:
		s.pagesScraped.WithLabelValues(string(evt.ListingType), string(evt.Source)).Inc()
		if evt.Records > 0 {
			s.recordsScraped.Add(float64(evt.Records))
		}
	}
}

func (s *PrometheusSink) finishTask(evt progress.Event, result string) {
	s.tasksCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.taskRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.TaskID) {
		s.tasksRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// taskTracker deduplicates start/finish transitions so the running gauge
// stays consistent even if events repeat.
type taskTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newTaskTracker() *taskTracker {
	return &taskTracker{running: make(map[string]struct{})}
}

func (t *taskTracker) start(taskID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[taskID]; ok {
		return false
	}
	t.running[taskID] = struct{}{}
	return true
}

func (t *taskTracker) complete(taskID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[taskID]; !ok {
		return false
	}
	delete(t.running, taskID)
	return true
}
