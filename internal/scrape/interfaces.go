package scrape

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrTaskNotFound is returned by task stores for unknown task IDs.
var ErrTaskNotFound = errors.New("task not found")

// ErrDegraded is returned by Fetch on a degraded session: no browser is
// available and callers should synthesize data instead.
var ErrDegraded = errors.New("session degraded: no live browser")

// Session is the per-task browsing capability. Exactly one variant is
// selected at task start: a live chromedp-backed session or a degraded one
// whose Fetch always returns ErrDegraded.
type Session interface {
	// Live reports whether real navigation is possible.
	Live() bool
	// Fetch navigates to the requested URL and returns the rendered document.
	Fetch(ctx context.Context, req FetchRequest) (*goquery.Document, error)
	// Close releases browser resources. Safe to call once per session.
	Close(ctx context.Context) error
}

// SessionLauncher establishes the browsing session at task start. A launch
// failure that is survivable yields a degraded session and a nil error; an
// error return is unrecoverable and fails the task.
type SessionLauncher interface {
	Launch(ctx context.Context) (Session, error)
}

// TaskStore is the process-scoped task registry. Mutators are called only by
// the runner owning the task; Get may be called concurrently by API readers.
type TaskStore interface {
	Create(ctx context.Context, task Task) error
	Get(ctx context.Context, taskID string) (Task, error)
	MarkRunning(ctx context.Context, taskID string) error
	AddPlannedPages(ctx context.Context, taskID string, pages int) error
	AppendResults(ctx context.Context, taskID string, records []ResultRecord) error
	Complete(ctx context.Context, taskID string, at time.Time) error
	Fail(ctx context.Context, taskID string, message string, at time.Time) error
}

// Archiver persists completed task records durably. Failures are logged by
// callers, never surfaced as task failures.
type Archiver interface {
	Archive(ctx context.Context, record ArchiveRecord) error
}

// BlobStore writes artifacts (screenshots, export files) and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
