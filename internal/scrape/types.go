// Package scrape defines core types shared across subsystems.
package scrape

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus represents the lifecycle state of a parsing task.
type TaskStatus string

// Task status values held in the task store. Transitions are monotonic:
// pending -> running -> completed|failed, with no way out of a terminal state.
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// ListingType identifies which directory listing a task scrapes.
type ListingType string

// Supported listing types.
const (
	ListingChannels ListingType = "channels"
	ListingChats    ListingType = "chats"
)

// ParseListingType validates a client-supplied listing type value.
func ParseListingType(input string) (ListingType, error) {
	switch ListingType(strings.ToLower(strings.TrimSpace(input))) {
	case ListingChannels:
		return ListingChannels, nil
	case ListingChats:
		return ListingChats, nil
	default:
		return "", fmt.Errorf("unknown listing type %q", input)
	}
}

// Singular returns the singular form used in synthetic record names
// ("channels" -> "channel").
func (t ListingType) Singular() string {
	return strings.TrimSuffix(string(t), "s")
}

// ResultRecord is one scraped (or synthesized) directory entry. It is a pure
// value type; its only identity is its position in the owning task's results.
type ResultRecord struct {
	Name        string      `json:"name"`
	Link        string      `json:"link"`
	Subscribers string      `json:"subscribers"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	ListingType ListingType `json:"listing_type"`
}

// FieldUnresolved is the sentinel for name/link/subscriber fields that no
// selector candidate could fill.
const FieldUnresolved = "N/A"

// Task is the lifecycle record for one scraping request. It is owned by
// exactly one runner execution; readers receive copies from the task store.
type Task struct {
	ID           string         `json:"id"`
	Category     string         `json:"category"`
	ListingTypes []ListingType  `json:"listing_types"`
	MaxPages     int            `json:"max_pages"`
	Status       TaskStatus     `json:"status"`
	Progress     int            `json:"progress"`
	TotalPages   int            `json:"total_pages"`
	Results      []ResultRecord `json:"results"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// FetchRequest captures everything the session needs for one navigation.
type FetchRequest struct {
	URL string
	// FirstOfListing selects the longer anti-bot wait used for the first
	// navigation of each listing type.
	FirstOfListing bool
	// ScreenshotPath, when non-empty, asks the session to persist a debug
	// screenshot under this blob path. Best effort only.
	ScreenshotPath string
}

// ArchiveRecord is the durable row pushed to the persistence collaborator
// once a task completes.
type ArchiveRecord struct {
	TaskID       string         `json:"task_id"`
	Category     string         `json:"category"`
	ListingTypes []ListingType  `json:"listing_types"`
	MaxPages     int            `json:"max_pages"`
	Results      []ResultRecord `json:"results"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  time.Time      `json:"completed_at"`
}
