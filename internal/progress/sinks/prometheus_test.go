package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/korostylevkirill70-stack/tgstat-parser/internal/progress"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/scrape"
)

func TestPrometheusSinkTaskLifecycle(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, sink.Consume(ctx, []progress.Event{
		{TaskID: "t1", TS: now, Stage: progress.StageTaskStart},
		{TaskID: "t2", TS: now, Stage: progress.StageTaskStart},
	}))
	require.Equal(t, float64(2), testutil.ToFloat64(sink.tasksStarted))
	require.Equal(t, float64(2), testutil.ToFloat64(sink.tasksRunning))

	require.NoError(t, sink.Consume(ctx, []progress.Event{
		{TaskID: "t1", TS: now, Stage: progress.StageTaskDone, Records: 48, Dur: 30 * time.Second},
		{TaskID: "t2", TS: now, Stage: progress.StageTaskError, Note: "browser crashed", Dur: 5 * time.Second},
	}))
	require.Equal(t, float64(0), testutil.ToFloat64(sink.tasksRunning))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.tasksCompleted.WithLabelValues("completed")))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.tasksCompleted.WithLabelValues("failed")))
}

func TestPrometheusSinkRunningGaugeDeduplicates(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now().UTC()

	start := progress.Event{TaskID: "t1", TS: now, Stage: progress.StageTaskStart}
	require.NoError(t, sink.Consume(ctx, []progress.Event{start, start}))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.tasksRunning))

	done := progress.Event{TaskID: "t1", TS: now, Stage: progress.StageTaskDone}
	require.NoError(t, sink.Consume(ctx, []progress.Event{done, done}))
	require.Equal(t, float64(0), testutil.ToFloat64(sink.tasksRunning))
}

func TestPrometheusSinkPageCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, sink.Consume(ctx, []progress.Event{
		{TaskID: "t1", TS: now, Stage: progress.StagePageDone, ListingType: scrape.ListingChannels, Page: 1, Records: 10, Source: progress.SourceLive},
		{TaskID: "t1", TS: now, Stage: progress.StagePageDone, ListingType: scrape.ListingChannels, Page: 2, Records: 8, Source: progress.SourceSynthetic},
		{TaskID: "t1", TS: now, Stage: progress.StagePageDone, ListingType: scrape.ListingChats, Page: 1, Records: 8, Source: progress.SourceSynthetic},
	}))

	require.Equal(t, float64(1), testutil.ToFloat64(sink.pagesScraped.WithLabelValues("channels", "live")))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.pagesScraped.WithLabelValues("channels", "synthetic")))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.pagesScraped.WithLabelValues("chats", "synthetic")))
	require.Equal(t, float64(26), testutil.ToFloat64(sink.recordsScraped))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
