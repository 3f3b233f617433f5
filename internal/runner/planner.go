package runner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/korostylevkirill70-stack/tgstat-parser/internal/extract"
	"github.com/korostylevkirill70-stack/tgstat-parser/internal/scrape"
)

// planPages decides how many pages to walk for one listing type. Degraded
// sessions plan the task's page cap directly; live sessions inspect the
// listing root for pagination controls and clamp the discovered depth to the
// cap. Any planning failure falls back to the cap so the task keeps moving.
func (r *Runner) planPages(ctx context.Context, session scrape.Session, task scrape.Task, listing scrape.ListingType) int {
	if !session.Live() {
		return task.MaxPages
	}

	doc, err := session.Fetch(ctx, scrape.FetchRequest{
		URL:            r.listingURL(listing, 1),
		FirstOfListing: true,
		ScreenshotPath: r.screenshotPath(task.ID, listing, 0),
	})
	if err != nil {
		r.logger.Warn("pagination discovery failed, assuming page cap",
			zap.String("task_id", task.ID),
			zap.String("listing_type", string(listing)),
			zap.Int("max_pages", task.MaxPages),
			zap.Error(err),
		)
		return task.MaxPages
	}

	label, ok := extract.MaxPageLabel(doc)
	if !ok {
		r.logger.Debug("no pagination controls found, assuming page cap",
			zap.String("task_id", task.ID),
			zap.String("listing_type", string(listing)),
		)
		return task.MaxPages
	}
	if label > task.MaxPages {
		return task.MaxPages
	}
	return label
}

// listingURL builds the navigation URL for one listing page. The first page
// is the bare listing root; deeper pages carry an explicit page parameter.
func (r *Runner) listingURL(listing scrape.ListingType, page int) string {
	base := fmt.Sprintf("%s/%s", r.cfg.BaseURL, listing)
	if page <= 1 {
		return base
	}
	return fmt.Sprintf("%s?page=%d", base, page)
}

// screenshotPath names the debug artifact for one navigation; page 0 marks
// the pagination discovery fetch.
func (r *Runner) screenshotPath(taskID string, listing scrape.ListingType, page int) string {
	if page == 0 {
		return fmt.Sprintf("screenshots/%s/%s_root.png", taskID, listing)
	}
	return fmt.Sprintf("screenshots/%s/%s_page_%d.png", taskID, listing, page)
}
