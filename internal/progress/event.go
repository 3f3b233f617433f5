// Package progress defines the event stream emitted by task runners.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/korostylevkirill70-stack/tgstat-parser/internal/scrape"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageTaskStart Stage = "TASK_START"
	StageTaskDone  Stage = "TASK_DONE"
	StageTaskError Stage = "TASK_ERROR"
	StagePageDone  Stage = "PAGE_DONE"
)

// PageSource records how a page's records were produced.
type PageSource string

// Supported page sources.
const (
	SourceLive      PageSource = "live"
	SourceSynthetic PageSource = "synthetic"
)

// Event captures a single milestone of task progress.
type Event struct {
	// TaskID identifies the owning parsing task.
	TaskID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or page milestone occurred.
	Stage Stage
	// ListingType scopes page events to one listing type.
	ListingType scrape.ListingType
	// Page is the 1-based page number for page events.
	Page int
	// Records is the record count contributed by a page, or the final total
	// for task completion events.
	Records int
	// Source reports whether a page's records came from live extraction or
	// synthetic generation.
	Source PageSource
	// Dur captures wall time for task completion events.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TaskID == "" {
		return errors.New("task id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageTaskStart, StageTaskDone, StageTaskError:
	case StagePageDone:
		if e.ListingType == "" {
			return errors.New("page done requires listing type")
		}
		if e.Page < 1 {
			return errors.New("page done requires a 1-based page number")
		}
		if e.Source == "" {
			return errors.New("page done requires a source")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
