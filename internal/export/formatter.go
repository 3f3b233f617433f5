// Package export renders result sequences into the canonical flat-text form.
package export

import (
	"fmt"
	"strings"

	"github.com/korostylevkirill70-stack/tgstat-parser/internal/scrape"
)

// ContentType is the media type of the rendered export.
const ContentType = "text/plain; charset=utf-8"

// Filename returns the export filename for a completed task.
func Filename(category, taskID string) string {
	return fmt.Sprintf("tgstat_results_%s_%s.txt", category, taskID)
}

// Render produces one line per record, 1-indexed, fields separated by a
// backslash padded with single spaces:
//
//	1. name \ link \ subscribers
//
// Lines are newline-joined with no trailing terminator.
func Render(records []scrape.ResultRecord) string {
	lines := make([]string, 0, len(records))
	for i, record := range records {
		lines = append(lines, fmt.Sprintf(`%d. %s \ %s \ %s`, i+1, record.Name, record.Link, record.Subscribers))
	}
	return strings.Join(lines, "\n")
}
