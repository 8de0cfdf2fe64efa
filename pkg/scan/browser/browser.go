// Package browser abstracts the headless-browser automation surface
// the harvester drives.  Keeping the surface behind a small interface
// makes the best-effort nature of individual calls explicit and lets
// the harvest loop run against a fake session in tests.
package browser

import (
	"context"
	"time"
)

// Options controls how a browsing session is launched.
type Options struct {
	// Headless is the normal mode; a debug session opens a visible
	// browser window instead.
	Headless bool
	// ProfileDir, when non-empty, launches a persistent context using
	// the given user-data directory so logged-in sessions survive.
	ProfileDir string
	UserAgent  string
	// NavigateTimeout bounds page navigation wall-clock time.
	NavigateTimeout time.Duration
}

// ResponseInfo describes one observed network response.
type ResponseInfo struct {
	URL         string
	ContentType string
}

// ResponseHandler receives every network response the page triggers.
// The body is fetched lazily; calling body may fail (the browser can
// evict response bodies at any time) and the handler must treat that
// as "no body".
type ResponseHandler func(info ResponseInfo, body func() ([]byte, error))

// Session is one live browser page.  Navigate is best-effort: a
// timeout or load error leaves the page in whatever state was reached,
// and the caller may deliberately ignore the returned error.  Close
// must be called on every exit path.
type Session interface {
	// OnResponse registers the network observer.  It must be called
	// before Navigate to see the page's initial requests.
	OnResponse(handler ResponseHandler)

	Navigate(ctx context.Context, url string) error

	// ScrollBy scrolls the page down by the given pixel offset.
	ScrollBy(ctx context.Context, pixels int) error

	// ScrollHeight reads the current document scroll height.
	ScrollHeight(ctx context.Context) (int, error)

	// Evaluate runs a JavaScript expression and unmarshals its result
	// into out.  Pass nil to discard the result.
	Evaluate(ctx context.Context, expr string, out any) error

	// Location returns the page's current URL, which may differ from
	// the navigated one after redirects.
	Location(ctx context.Context) (string, error)

	Close() error
}

// LaunchFunc opens a new browser session.  The scanner takes one of
// these so tests can substitute a fake browser.
type LaunchFunc func(ctx context.Context, opts Options) (Session, error)
