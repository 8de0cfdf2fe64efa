package scan

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/QQcutePig/RIOimgDownload/pkg/scan/browser"
	"github.com/QQcutePig/RIOimgDownload/pkg/scan/extract"
)

// errCancelled aborts a pipeline stage when the job's cancellation
// flag is observed.
var errCancelled = errors.New("job cancelled")

const (
	settleDelay   = 1500 * time.Millisecond
	scrollStep    = 1800
	// Past this round, two consecutive rounds without new network
	// candidates stop the loop even if the page keeps growing.
	netStallMinRound = 10
	netStallRounds   = 2
)

// harvestStats counts the two candidate sources for status messages.
type harvestStats struct {
	Net int
	Dom int
}

// harvester drives one browser session through the
// navigate/settle/scroll/extract sequence and accumulates candidate
// URLs from the DOM and from observed network traffic.
type harvester struct {
	session   browser.Session
	preset    Preset
	opts      Options
	blacklist []string
	cancel    *cancelFlag
	progress  func(index, total int, message string)

	// The response observer runs concurrently with the scroll loop.
	mu       sync.Mutex
	netSeen  map[string]struct{}
	netOrder []string

	dom []string
}

func newHarvester(session browser.Session, preset Preset, opts Options, blacklist []string,
	cancel *cancelFlag, progress func(int, int, string)) *harvester {
	return &harvester{
		session:   session,
		preset:    preset,
		opts:      opts,
		blacklist: blacklist,
		cancel:    cancel,
		progress:  progress,
		netSeen:   map[string]struct{}{},
	}
}

// Run performs the full harvest and returns the merged, deduplicated
// candidate list.  It returns errCancelled when the job's flag was
// observed mid-loop.  The caller owns the session and must close it.
func (h *harvester) Run(ctx context.Context, target string) ([]string, harvestStats, error) {
	h.session.OnResponse(h.observeResponse)

	// Navigation is best-effort: whatever loaded before a timeout or
	// error is still worth scrolling and extracting.
	_ = h.session.Navigate(ctx, target)

	sleep(ctx, settleDelay)

	if err := h.scrollLoop(ctx); err != nil {
		return nil, harvestStats{}, err
	}

	base, err := h.session.Location(ctx)
	if err != nil || base == "" {
		base = target
	}
	h.extractDOM(ctx, base)

	merged := h.mergeCandidates()
	stats := harvestStats{Net: h.netCount(), Dom: len(h.dom)}
	return merged, stats, nil
}

// scrollLoop scrolls until the page stops growing, network candidates
// stall, or the round budget runs out.  Ultra mode doubles the budget,
// waits longer per round, and demands more stable rounds before
// stopping.
func (h *harvester) scrollLoop(ctx context.Context) error {
	wait := h.preset.ScrollWait
	maxRounds := h.preset.MaxScrollRounds
	stableToStop := h.preset.StableRoundsToStop
	if h.opts.Ultra {
		wait += 500 * time.Millisecond
		maxRounds *= 2
		stableToStop += 2
	}

	lastHeight := 0
	stable := 0
	lastNetCount := 0
	netStall := 0

	for round := 0; round < maxRounds; round++ {
		if h.cancel.Cancelled() {
			return errCancelled
		}

		h.progress(round, maxRounds, fmtScrollProgress(round, maxRounds, h.netCount()))

		_ = h.session.ScrollBy(ctx, scrollStep)
		sleep(ctx, wait)

		height, err := h.session.ScrollHeight(ctx)
		if err != nil {
			height = lastHeight
		}

		if height == lastHeight {
			stable++
			if stable >= stableToStop {
				break
			}
		} else {
			stable = 0
		}
		lastHeight = height

		netCount := h.netCount()
		if netCount == lastNetCount {
			netStall++
			if netStall >= netStallRounds && round > netStallMinRound {
				break
			}
		} else {
			netStall = 0
		}
		lastNetCount = netCount
	}

	return nil
}

// observeResponse is the network-side candidate source.  Direct media
// URLs are admitted as-is; JSON/script responses that pass the preset
// filter are mined for media-shaped string leaves.
func (h *harvester) observeResponse(info browser.ResponseInfo, body func() ([]byte, error)) {
	if h.cancel.Cancelled() {
		return
	}
	if !shouldScanResponse(info.URL, info.ContentType, h.preset, h.opts.Ultra) {
		return
	}

	if h.opts.WantImage && extract.LooksLikeImageURL(info.URL) {
		h.addNet(info.URL)
		return
	}
	if h.opts.WantVideo && extract.LooksLikeVideoURL(info.URL) {
		h.addNet(info.URL)
		return
	}

	if !h.preset.ParseNetworkJSON {
		return
	}
	data, err := body()
	if err != nil {
		return
	}
	value, err := extract.ParseValue(data)
	if err != nil {
		return
	}

	value.EachString(func(s string) bool {
		if !strings.HasPrefix(s, "http") {
			return true
		}
		// JSON-native & escapes are already plain & after
		// parsing; only HTML-entity ampersands survive and need
		// undoing before the URL shape check.
		s = strings.ReplaceAll(s, "&amp;", "&")
		if h.opts.WantImage && extract.LooksLikeImageURL(s) {
			h.addNet(s)
		} else if h.opts.WantVideo && extract.LooksLikeVideoURL(s) {
			h.addNet(s)
		}
		return true
	})
}

func (h *harvester) addNet(u string) {
	if !admissible(u, h.blacklist) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, seen := h.netSeen[u]; seen {
		return
	}
	h.netSeen[u] = struct{}{}
	h.netOrder = append(h.netOrder, u)
}

func (h *harvester) netCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.netOrder)
}

func (h *harvester) addDOM(u string) {
	if admissible(u, h.blacklist) {
		h.dom = append(h.dom, u)
	}
}

// admissible rejects empty strings, data: URIs and blacklisted URLs.
func admissible(u string, blacklist []string) bool {
	if u == "" || strings.HasPrefix(strings.ToLower(u), "data:") {
		return false
	}
	return !extract.Blacklisted(u, blacklist)
}

// mergeCandidates concatenates network candidates with DOM candidates
// and deduplicates preserving first-seen order.
func (h *harvester) mergeCandidates() []string {
	h.mu.Lock()
	net := make([]string, len(h.netOrder))
	copy(net, h.netOrder)
	h.mu.Unlock()

	seen := make(map[string]struct{}, len(net)+len(h.dom))
	var out []string
	for _, u := range append(net, h.dom...) {
		if _, dup := seen[u]; dup || u == "" {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func fmtScrollProgress(round, maxRounds, netCount int) string {
	return fmt.Sprintf("Scrolling... (%d/%d) net=%d", round, maxRounds, netCount)
}

// resolveRef resolves a possibly-relative reference against the final
// page URL.  Unparseable references are dropped.
func resolveRef(base *url.URL, ref string) (string, bool) {
	if ref == "" {
		return "", false
	}
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", false
	}
	if base == nil {
		return u.String(), true
	}
	return base.ResolveReference(u).String(), true
}
