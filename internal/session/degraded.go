package session

import (
	"context"

	"github.com/PuerkitoBio/goquery"

	"github.com/korostylevkirill70-stack/tgstat-parser/internal/scrape"
)

// Degraded is the synthetic-only session variant used when no browser is
// available. Every Fetch returns scrape.ErrDegraded instead of failing the
// owning task.
type Degraded struct{}

var _ scrape.Session = Degraded{}

// NewDegraded creates a Degraded session.
func NewDegraded() Degraded {
	return Degraded{}
}

// Live reports that no real navigation is possible.
func (Degraded) Live() bool { return false }

// Fetch always signals degraded operation.
func (Degraded) Fetch(context.Context, scrape.FetchRequest) (*goquery.Document, error) {
	return nil, scrape.ErrDegraded
}

// Close is a no-op; there are no browser resources to release.
func (Degraded) Close(context.Context) error { return nil }

// DegradedLauncher always yields a degraded session. It is the launcher used
// when headless browsing is disabled by configuration.
type DegradedLauncher struct{}

var _ scrape.SessionLauncher = DegradedLauncher{}

// Launch returns a degraded session.
func (DegradedLauncher) Launch(context.Context) (scrape.Session, error) {
	return NewDegraded(), nil
}
