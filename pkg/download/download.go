// Package download is the builtin engine for saving selected media
// URLs to disk.  Files land in a per-host subdirectory of the
// destination; transfers run concurrently with resume support.
package download

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cavaliercoder/grab"
)

const defaultWorkers = 4

// Result summarizes a batch download.
type Result struct {
	OK     int `json:"ok"`
	Failed int `json:"fail"`
}

// Engine downloads batches of URLs.  Construct one via NewEngine.
type Engine struct {
	client    *grab.Client
	workers   int
	userAgent string
}

// Option is an option that can be passed to NewEngine.
type Option func(*Engine)

// WithWorkers sets the number of concurrent transfers.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every transfer.
func WithUserAgent(ua string) Option {
	return func(e *Engine) {
		e.userAgent = ua
	}
}

// NewEngine creates a download engine.
func NewEngine(options ...Option) *Engine {
	engine := &Engine{
		client:  grab.NewClient(),
		workers: defaultWorkers,
	}
	for _, option := range options {
		option(engine)
	}
	return engine
}

// FetchAll downloads every URL into a per-host subdirectory of
// destDir and reports how many transfers succeeded.  Individual
// failures never abort the batch.
func (e *Engine) FetchAll(ctx context.Context, urls []string, destDir string) Result {
	var result Result
	var reqs []*grab.Request

	for _, raw := range urls {
		req, err := e.newRequest(ctx, raw, destDir)
		if err != nil {
			result.Failed++
			continue
		}
		reqs = append(reqs, req)
	}

	if len(reqs) == 0 {
		return result
	}

	for resp := range e.client.DoBatch(e.workers, reqs...) {
		if resp.Err() != nil {
			result.Failed++
		} else {
			result.OK++
		}
	}
	return result
}

func (e *Engine) newRequest(ctx context.Context, rawURL, destDir string) (*grab.Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	hostDir := filepath.Join(destDir, SafeName(u.Host))
	if err := os.MkdirAll(hostDir, 0755); err != nil {
		return nil, err
	}

	// grab picks the filename from the URL path or the
	// Content-Disposition header when the destination is a directory.
	req, err := grab.NewRequest(hostDir, rawURL)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	if e.userAgent != "" {
		req.HTTPRequest.Header.Set("User-Agent", e.userAgent)
	}
	return req, nil
}

var unsafeNameChars = regexp.MustCompile(`[\\/:*?"<>|]+`)

// SafeName sanitizes a string for use as a file or directory name.
func SafeName(s string) string {
	s = unsafeNameChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, " ._")
	if len(s) > 160 {
		s = s[:160]
	}
	if s == "" {
		return "file"
	}
	return s
}
