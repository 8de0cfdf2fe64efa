// Package scan implements the harvest-verify-thumbnail pipeline: a
// headless browser discovers candidate media URLs on a page, a probing
// stage confirms they are fetchable images or videos, and a thumbnail
// stage renders browsing-ready previews.  Each scan runs as a
// cancellable background job tracked in a shared registry.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/QQcutePig/RIOimgDownload/pkg/scan/browser"
	"github.com/QQcutePig/RIOimgDownload/pkg/scan/extract"
	"github.com/QQcutePig/RIOimgDownload/pkg/scan/meta"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const navigateTimeout = 60 * time.Second

// ErrThumbNotFound is returned when no thumbnail exists for the given
// job/item pair.
var ErrThumbNotFound = errors.New("thumbnail not found")

// Options controls a single scan job.
type Options struct {
	// Ultra trades runtime for recall: broader selectors, doubled
	// scrolling, looser network-response acceptance.
	Ultra bool
	// UseLoginProfile launches the browser with the persistent profile
	// so logged-in sessions are reused.
	UseLoginProfile bool
	// DebugBrowser opens a visible browser window.
	DebugBrowser bool
	// StaticOnly skips the browser and harvests a single HTML fetch.
	StaticOnly bool
	// MinWidth/MinHeight drop smaller images from the final results.
	MinWidth  int
	MinHeight int
	// WantImage/WantVideo select which media kinds to collect.
	WantImage bool
	WantVideo bool
	// Blacklist overrides extract.DefaultBlacklist when non-empty.
	Blacklist []string
}

// Config configures a Scanner.
type Config struct {
	// JobsDir is where per-job working directories (thumbnails) live.
	JobsDir string
	// ProfileDir is the persistent browser profile directory.
	ProfileDir string
	// Launch opens browser sessions; defaults to browser.Launch.
	Launch browser.LaunchFunc
	// HTTPClient is used for all probing and fetching; defaults to a
	// redirect-following client without a global timeout (individual
	// operations carry their own).
	HTTPClient *http.Client
	UserAgent  string
}

// Scanner owns the job registry and runs scan jobs on background
// goroutines.
type Scanner struct {
	registry   *Registry
	jobsDir    string
	profileDir string
	launch     browser.LaunchFunc
	client     *http.Client
	userAgent  string
}

// New creates a Scanner.
func New(cfg Config) *Scanner {
	s := &Scanner{
		registry:   NewRegistry(),
		jobsDir:    cfg.JobsDir,
		profileDir: cfg.ProfileDir,
		launch:     cfg.Launch,
		client:     cfg.HTTPClient,
		userAgent:  cfg.UserAgent,
	}
	if s.launch == nil {
		s.launch = browser.Launch
	}
	if s.client == nil {
		s.client = &http.Client{}
	}
	if s.userAgent == "" {
		s.userAgent = defaultUserAgent
	}
	return s
}

// Registry exposes the job registry so hosts can register their own
// job types (direct downloads) against the same store.
func (s *Scanner) Registry() *Registry {
	return s.registry
}

// Start registers a new scan job and launches its worker.  It returns
// immediately with the job id.
func (s *Scanner) Start(rawURL string, opts Options) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", errors.New("url required")
	}

	jobID := s.registry.NewJob(meta.JobScan)
	go s.run(jobID, rawURL, opts)
	return jobID, nil
}

// Job returns the job's current state.
func (s *Scanner) Job(id string) (meta.JobState, error) {
	return s.registry.State(id)
}

// Items returns a snapshot of the job's accumulated media items.
func (s *Scanner) Items(id string) ([]meta.MediaItem, error) {
	return s.registry.Items(id)
}

// Cancel raises the job's cancellation flag.
func (s *Scanner) Cancel(id string) error {
	return s.registry.Cancel(id)
}

// ThumbPath returns where the thumbnail for an item is stored.
func (s *Scanner) ThumbPath(jobID, itemID string) string {
	return filepath.Join(s.jobsDir, jobID, "thumbs", itemID+".jpg")
}

// OpenThumb opens the stored thumbnail JPEG for reading.
func (s *Scanner) OpenThumb(jobID, itemID string) (io.ReadCloser, error) {
	f, err := os.Open(s.ThumbPath(jobID, itemID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrThumbNotFound
	}
	return f, err
}

// run is the per-job worker: harvest, verify, thumbnail, publish.
func (s *Scanner) run(jobID, rawURL string, opts Options) {
	// Anything unexpected is fatal to the job, never to the process.
	defer func() {
		if r := recover(); r != nil {
			s.registry.SetStatus(jobID, meta.StatusError, truncate(fmt.Sprintf("Error: %v", r), 200))
		}
	}()

	cancel := s.registry.flag(jobID)
	preset := resolvePreset(rawURL)
	blacklist := normalizeBlacklist(opts.Blacklist)

	thumbsDir := filepath.Join(s.jobsDir, jobID, "thumbs")
	if err := os.MkdirAll(thumbsDir, 0755); err != nil {
		s.registry.SetStatus(jobID, meta.StatusError, truncate("Error: "+err.Error(), 200))
		return
	}

	s.registry.SetStatus(jobID, meta.StatusRunning, fmt.Sprintf("Scanning... (%s)", preset.Name))

	candidates, stats, err := s.harvest(jobID, rawURL, preset, opts, blacklist, cancel)
	switch {
	case errors.Is(err, errCancelled):
		s.registry.SetStatus(jobID, meta.StatusCancelled, "Cancelled.")
		return
	case err != nil:
		s.registry.SetStatus(jobID, meta.StatusError, truncate("Error: "+err.Error(), 200))
		return
	}

	if len(candidates) == 0 {
		s.registry.SetStatus(jobID, meta.StatusDone, "No candidates found (try Ultra).")
		return
	}

	s.registry.SetProgress(jobID, 0, len(candidates),
		fmt.Sprintf("Verifying links... (net=%d dom=%d)", stats.Net, stats.Dom))

	accepted, err := s.verifyCandidates(jobID, candidates, opts, cancel)
	if errors.Is(err, errCancelled) {
		s.registry.SetStatus(jobID, meta.StatusCancelled, "Cancelled.")
		return
	}

	if len(accepted) == 0 {
		s.registry.SetStatus(jobID, meta.StatusDone, "No media verified (try Ultra).")
		return
	}

	s.registry.SetProgress(jobID, 0, len(accepted), "Building thumbnails...")

	items, err := s.buildThumbnails(jobID, thumbsDir, accepted, opts, cancel)
	if errors.Is(err, errCancelled) {
		s.registry.SetStatus(jobID, meta.StatusCancelled, "Cancelled.")
		return
	}

	s.registry.AddItems(jobID, items)
	s.registry.SetStatus(jobID, meta.StatusDone,
		fmt.Sprintf("Done. %d items. (net=%d)", len(items), stats.Net))
}

// harvest runs either the browser-driven or the static harvest and
// returns the merged candidate list.
func (s *Scanner) harvest(jobID, rawURL string, preset Preset, opts Options, blacklist []string, cancel *cancelFlag) ([]string, harvestStats, error) {
	progress := func(index, total int, message string) {
		s.registry.SetProgress(jobID, index, total, message)
	}

	if opts.StaticOnly {
		return s.staticHarvest(rawURL, opts, blacklist, cancel)
	}

	ctx := context.Background()

	browserOpts := browser.Options{
		Headless:        !opts.DebugBrowser,
		UserAgent:       s.userAgent,
		NavigateTimeout: navigateTimeout,
	}
	if opts.UseLoginProfile {
		if err := os.MkdirAll(s.profileDir, 0755); err != nil {
			return nil, harvestStats{}, err
		}
		browserOpts.ProfileDir = s.profileDir
	}

	session, err := s.launch(ctx, browserOpts)
	if err != nil {
		return nil, harvestStats{}, fmt.Errorf("cannot open browser: %w", err)
	}
	// Closed before verification starts so the browser does not sit on
	// resources while the HTTP stages run.
	defer session.Close()

	return newHarvester(session, preset, opts, blacklist, cancel, progress).Run(ctx, rawURL)
}

// normalizeBlacklist lowercases and trims the configured keywords,
// falling back to the default list.
func normalizeBlacklist(words []string) []string {
	var out []string
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			out = append(out, w)
		}
	}
	if len(out) == 0 {
		return extract.DefaultBlacklist
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
