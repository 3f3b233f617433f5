// Package runner drives parsing tasks through their full lifecycle: session
// launch, per-listing pagination, page extraction, and completion side
// effects.
package runner

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/korostylevkirill70-stack/tgstat-parser/internal/export"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/extract"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/progress"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/scrape"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/session"
)

// Config controls runner pacing and side effects.
type Config struct {
	// BaseURL is the directory site root, without a trailing slash.
	BaseURL string
	// PageGap is the jitter window between consecutive pages of one listing
	// type; ListingGap separates listing types. Zero ranges disable waiting.
	PageGap    session.WaitRange
	ListingGap session.WaitRange
	// CompletionTopic names the topic completion events are published to.
	CompletionTopic string
}

// Runner executes one task at a time per Run call. The task store is the
// single source of truth; the runner is the only writer for its task.
type Runner struct {
	cfg       Config
	store     scrape.TaskStore
	launcher  scrape.SessionLauncher
	extractor *extract.Extractor
	clock     scrape.Clock
	emitter   progress.Emitter
	archiver  scrape.Archiver
	exports   scrape.BlobStore
	publisher scrape.Publisher
	logger    *zap.Logger
}

// Options carries the optional completion collaborators. Any of them may be
// nil, in which case the corresponding side effect is skipped.
type Options struct {
	Emitter   progress.Emitter
	Archiver  scrape.Archiver
	Exports   scrape.BlobStore
	Publisher scrape.Publisher
}

// New constructs a Runner.
func New(
	cfg Config,
	store scrape.TaskStore,
	launcher scrape.SessionLauncher,
	extractor *extract.Extractor,
	clock scrape.Clock,
	opts Options,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:       cfg,
		store:     store,
		launcher:  launcher,
		extractor: extractor,
		clock:     clock,
		emitter:   opts.Emitter,
		archiver:  opts.Archiver,
		exports:   opts.Exports,
		publisher: opts.Publisher,
		logger:    logger,
	}
}

// Run drives the task to a terminal state. The returned error mirrors the
// stored failure; a nil return means the task completed.
func (r *Runner) Run(ctx context.Context, task scrape.Task) error {
	started := r.clock.Now()
	logger := r.logger.With(zap.String("task_id", task.ID), zap.String("category", task.Category))

	if err := r.store.MarkRunning(ctx, task.ID); err != nil {
		return err
	}
	r.emit(progress.Event{TaskID: task.ID, TS: started, Stage: progress.StageTaskStart})
	logger.Info("task started",
		zap.Strings("listing_types", listingTypeStrings(task.ListingTypes)),
		zap.Int("max_pages", task.MaxPages),
	)

	sess, err := r.launcher.Launch(ctx)
	if err != nil {
		return r.fail(ctx, task, started, err)
	}
	defer func() {
		if cerr := sess.Close(context.Background()); cerr != nil {
			logger.Warn("session close failed", zap.Error(cerr))
		}
	}()
	if !sess.Live() {
		logger.Warn("running without a live browser, all pages will be synthetic")
	}

	for i, listing := range task.ListingTypes {
		if err := r.runListing(ctx, sess, task, listing, logger); err != nil {
			return r.fail(ctx, task, started, err)
		}
		if i < len(task.ListingTypes)-1 {
			if err := sleepCtx(ctx, r.cfg.ListingGap.Duration()); err != nil {
				return r.fail(ctx, task, started, err)
			}
		}
	}

	completedAt := r.clock.Now()
	if err := r.store.Complete(ctx, task.ID, completedAt); err != nil {
		return err
	}

	final, err := r.store.Get(ctx, task.ID)
	if err != nil {
		return err
	}
	r.emit(progress.Event{
		TaskID:  task.ID,
		TS:      completedAt,
		Stage:   progress.StageTaskDone,
		Records: len(final.Results),
		Dur:     completedAt.Sub(started),
	})
	logger.Info("task completed",
		zap.Int("total_pages", final.TotalPages),
		zap.Int("records", len(final.Results)),
		zap.Duration("runtime", completedAt.Sub(started)),
	)

	r.finalize(ctx, final, logger)
	return nil
}

// runListing plans and walks all pages of one listing type.
func (r *Runner) runListing(ctx context.Context, sess scrape.Session, task scrape.Task, listing scrape.ListingType, logger *zap.Logger) error {
	planned := r.planPages(ctx, sess, task, listing)
	if err := r.store.AddPlannedPages(ctx, task.ID, planned); err != nil {
		return err
	}
	logger.Info("listing planned",
		zap.String("listing_type", string(listing)),
		zap.Int("pages", planned),
	)

	for page := 1; page <= planned; page++ {
		pageStart := r.clock.Now()
		records, source := r.processPage(ctx, sess, task, listing, page, logger)
		if err := r.store.AppendResults(ctx, task.ID, records); err != nil {
			return err
		}
		r.emit(progress.Event{
			TaskID:      task.ID,
			TS:          r.clock.Now(),
			Stage:       progress.StagePageDone,
			ListingType: listing,
			Page:        page,
			Records:     len(records),
			Source:      source,
			Dur:         r.clock.Now().Sub(pageStart),
		})
		if page < planned {
			if err := sleepCtx(ctx, r.cfg.PageGap.Duration()); err != nil {
				return err
			}
		}
	}
	return nil
}

// processPage fetches and extracts one page. Fetch failures of any kind fall
// back to a synthetic page so a task never stalls on a single bad navigation.
func (r *Runner) processPage(ctx context.Context, sess scrape.Session, task scrape.Task, listing scrape.ListingType, page int, logger *zap.Logger) ([]scrape.ResultRecord, progress.PageSource) {
	doc, err := sess.Fetch(ctx, scrape.FetchRequest{
		URL:            r.listingURL(listing, page),
		FirstOfListing: page == 1,
		ScreenshotPath: r.screenshotPath(task.ID, listing, page),
	})
	if err != nil {
		if !errors.Is(err, scrape.ErrDegraded) {
			logger.Warn("page fetch failed, synthesizing page",
				zap.String("listing_type", string(listing)),
				zap.Int("page", page),
				zap.Error(err),
			)
		}
		return scrape.SyntheticPage(task.Category, listing, page), progress.SourceSynthetic
	}
	return r.extractor.Extract(doc, task.Category, listing, page), progress.SourceLive
}

// fail records the terminal failure and emits the matching progress event.
func (r *Runner) fail(ctx context.Context, task scrape.Task, started time.Time, cause error) error {
	failedAt := r.clock.Now()
	if err := r.store.Fail(ctx, task.ID, cause.Error(), failedAt); err != nil {
		r.logger.Error("recording task failure failed",
			zap.String("task_id", task.ID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
	}
	r.emit(progress.Event{
		TaskID: task.ID,
		TS:     failedAt,
		Stage:  progress.StageTaskError,
		Dur:    failedAt.Sub(started),
		Note:   cause.Error(),
	})
	r.logger.Error("task failed", zap.String("task_id", task.ID), zap.Error(cause))
	return cause
}

// finalize runs the completion side effects: durable archive, export artifact
// upload, and the completion event. All three are best effort; failures are
// logged and never affect the stored task.
func (r *Runner) finalize(ctx context.Context, task scrape.Task, logger *zap.Logger) {
	if r.archiver != nil && task.CompletedAt != nil {
		record := scrape.ArchiveRecord{
			TaskID:       task.ID,
			Category:     task.Category,
			ListingTypes: task.ListingTypes,
			MaxPages:     task.MaxPages,
			Results:      task.Results,
			CreatedAt:    task.CreatedAt,
			CompletedAt:  *task.CompletedAt,
		}
		if err := r.archiver.Archive(ctx, record); err != nil {
			logger.Warn("task archive failed", zap.Error(err))
		}
	}

	if r.exports != nil {
		path := "exports/" + export.Filename(task.Category, task.ID)
		content := export.Render(task.Results)
		uri, err := r.exports.PutObject(ctx, path, export.ContentType, strings.NewReader(content))
		if err != nil {
			logger.Warn("export upload failed", zap.String("path", path), zap.Error(err))
		} else {
			logger.Info("export uploaded", zap.String("uri", uri))
		}
	}

	if r.publisher != nil && r.cfg.CompletionTopic != "" {
		payload := map[string]any{
			"task_id":      task.ID,
			"category":     task.Category,
			"records":      len(task.Results),
			"completed_at": task.CompletedAt,
		}
		id, err := r.publisher.Publish(ctx, r.cfg.CompletionTopic, payload)
		if err != nil {
			logger.Warn("completion publish failed", zap.Error(err))
		} else {
			logger.Debug("completion event published", zap.String("message_id", id))
		}
	}
}

func (r *Runner) emit(evt progress.Event) {
	if r.emitter == nil {
		return
	}
	r.emitter.Emit(evt)
}

// sleepCtx waits for d or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func listingTypeStrings(types []scrape.ListingType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
