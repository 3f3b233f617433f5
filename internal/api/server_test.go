package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/korostylevkirill70-stack/tgstat-parser/internal/clock/system"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/export"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/scrape"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/storage/memory"
)

type stubRunner struct {
	started chan scrape.Task
}

func newStubRunner() *stubRunner {
	return &stubRunner{started: make(chan scrape.Task, 1)}
}

func (r *stubRunner) Run(_ context.Context, task scrape.Task) error {
	r.started <- task
	return nil
}

type fixedIDGenerator struct {
	id string
}

func (g fixedIDGenerator) NewID() (string, error) {
	if g.id == "" {
		return "", fmt.Errorf("no id configured")
	}
	return g.id, nil
}

func newTestServer(t *testing.T, store scrape.TaskStore, runner TaskRunner) http.Handler {
	t.Helper()
	server := New(
		Config{MaxPagesDefault: 3},
		store,
		runner,
		fixedIDGenerator{id: "0192aa00-0000-7000-8000-000000000001"},
		system.New(),
		prometheus.NewRegistry(),
		zap.NewNop(),
	)
	return server.Routes()
}

func seedTask(t *testing.T, store scrape.TaskStore, task scrape.Task) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), task))
}

func completedTask(id string) scrape.Task {
	done := time.Date(2026, 3, 1, 10, 2, 0, 0, time.UTC)
	return scrape.Task{
		ID:           id,
		Category:     "crypto",
		ListingTypes: []scrape.ListingType{scrape.ListingChannels},
		MaxPages:     2,
		Status:       scrape.TaskStatusCompleted,
		Progress:     2,
		TotalPages:   1,
		Results: []scrape.ResultRecord{
			{Name: "Alpha", Link: "https://t.me/alpha", Subscribers: "100", Category: "crypto", ListingType: scrape.ListingChannels},
			{Name: "Beta", Link: "https://t.me/beta", Subscribers: "200", Category: "crypto", ListingType: scrape.ListingChannels},
		},
		CreatedAt:   done.Add(-2 * time.Minute),
		CompletedAt: &done,
	}
}

func TestCreateTask(t *testing.T) {
	t.Parallel()

	store := memory.NewTaskStore()
	runner := newStubRunner()
	handler := newTestServer(t, store, runner)

	body := `{"category":"crypto","listing_types":["channels","chats"],"max_pages":2}`
	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp createTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "0192aa00-0000-7000-8000-000000000001", resp.TaskID)

	task, err := store.Get(context.Background(), resp.TaskID)
	require.NoError(t, err)
	require.Equal(t, scrape.TaskStatusPending, task.Status)
	require.Equal(t, "crypto", task.Category)
	require.Equal(t, []scrape.ListingType{scrape.ListingChannels, scrape.ListingChats}, task.ListingTypes)
	require.Equal(t, 2, task.MaxPages)

	select {
	case started := <-runner.started:
		require.Equal(t, resp.TaskID, started.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("runner was not started")
	}
}

func TestCreateTaskDefaultsMaxPages(t *testing.T) {
	t.Parallel()

	store := memory.NewTaskStore()
	runner := newStubRunner()
	handler := newTestServer(t, store, runner)

	body := `{"category":"news","listing_types":["channels"]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp createTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	task, err := store.Get(context.Background(), resp.TaskID)
	require.NoError(t, err)
	require.Equal(t, 3, task.MaxPages)
	<-runner.started
}

func TestCreateTaskValidation(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, memory.NewTaskStore(), newStubRunner())

	cases := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{`},
		{name: "missing category", body: `{"listing_types":["channels"]}`},
		{name: "empty listing types", body: `{"category":"x","listing_types":[]}`},
		{name: "unknown listing type", body: `{"category":"x","listing_types":["groups"]}`},
		{name: "negative max pages", body: `{"category":"x","listing_types":["channels"],"max_pages":-1}`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestTaskStatus(t *testing.T) {
	t.Parallel()

	store := memory.NewTaskStore()
	task := completedTask("t-done")
	seedTask(t, store, task)
	handler := newTestServer(t, store, newStubRunner())

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/t-done/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp taskStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "t-done", resp.TaskID)
	require.Equal(t, "completed", resp.Status)
	require.Equal(t, 2, resp.Progress)
	require.Equal(t, 1, resp.TotalPages)
	require.Equal(t, 2, resp.ResultsCount)
	require.NotNil(t, resp.CompletedAt)
}

func TestTaskStatusUnknownID(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, memory.NewTaskStore(), newStubRunner())
	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/nope/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskResults(t *testing.T) {
	t.Parallel()

	store := memory.NewTaskStore()
	seedTask(t, store, completedTask("t-done"))
	handler := newTestServer(t, store, newStubRunner())

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/t-done/results", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp taskResultsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "crypto", resp.Category)
	require.Equal(t, 2, resp.TotalResults)
	require.Len(t, resp.Results, 2)
	require.Equal(t, "Alpha", resp.Results[0].Name)
}

func TestTaskResultsNotReady(t *testing.T) {
	t.Parallel()

	store := memory.NewTaskStore()
	pending := completedTask("t-pending")
	pending.Status = scrape.TaskStatusRunning
	pending.CompletedAt = nil
	seedTask(t, store, pending)
	handler := newTestServer(t, store, newStubRunner())

	for _, path := range []string{"/v1/tasks/t-pending/results", "/v1/tasks/t-pending/export"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusConflict, rec.Code, "path %s", path)
	}
}

func TestTaskExport(t *testing.T) {
	t.Parallel()

	store := memory.NewTaskStore()
	task := completedTask("t-done")
	seedTask(t, store, task)
	handler := newTestServer(t, store, newStubRunner())

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/t-done/export", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	require.Equal(t,
		fmt.Sprintf("attachment; filename=%q", export.Filename("crypto", "t-done")),
		rec.Header().Get("Content-Disposition"),
	)
	require.Equal(t, `1. Alpha \ https://t.me/alpha \ 100`+"\n"+`2. Beta \ https://t.me/beta \ 200`, rec.Body.String())
}

func TestExportUnknownID(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, memory.NewTaskStore(), newStubRunner())
	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/nope/export", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	handler := newTestServer(t, memory.NewTaskStore(), newStubRunner())

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "path %s", path)
	}
}
