package scan

import (
	"net/url"
	"strings"
	"time"

	"github.com/QQcutePig/RIOimgDownload/pkg/scan/extract"
)

const (
	defaultScrollWait         = 1500 * time.Millisecond
	defaultMaxScrollRounds    = 50
	defaultStableRoundsToStop = 3
)

// Preset tunes the scroll loop and network-response filtering for a
// target site.  The generic preset applies to unrecognized hosts.
type Preset struct {
	Name               string
	ScrollWait         time.Duration
	MaxScrollRounds    int
	StableRoundsToStop int
	// ParseNetworkJSON enables deep string-mining of JSON responses.
	ParseNetworkJSON bool
	// NetworkURLKeywords limits which JSON responses get mined.  Empty
	// means every JSON response is scanned.
	NetworkURLKeywords []string
}

// resolvePreset maps the target URL's host to scroll/stop tuning and
// network keyword filters.
func resolvePreset(rawURL string) Preset {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = strings.ToLower(u.Hostname())
	}

	preset := Preset{
		Name:               "generic",
		ScrollWait:         defaultScrollWait,
		MaxScrollRounds:    defaultMaxScrollRounds,
		StableRoundsToStop: defaultStableRoundsToStop,
		ParseNetworkJSON:   true,
	}

	switch {
	case strings.Contains(host, "instagram.com"):
		preset.Name = "instagram"
		preset.ScrollWait = 1800 * time.Millisecond
		preset.MaxScrollRounds = 80
		preset.StableRoundsToStop = 4
		preset.NetworkURLKeywords = []string{"graphql", "api", "query", "feed", "reels", "media"}
	case strings.Contains(host, "x.com"), strings.Contains(host, "twitter.com"):
		preset.Name = "x"
		preset.ScrollWait = 1700 * time.Millisecond
		preset.MaxScrollRounds = 90
		preset.StableRoundsToStop = 4
		preset.NetworkURLKeywords = []string{"graphql", "api", "timeline", "tweet", "search", "user", "hometimeline"}
	case strings.Contains(host, "facebook.com"), strings.Contains(host, "fb.com"):
		preset.Name = "facebook"
		preset.ScrollWait = 1900 * time.Millisecond
		preset.MaxScrollRounds = 80
		preset.StableRoundsToStop = 4
		preset.NetworkURLKeywords = []string{"graphql", "api", "photo", "video", "stories"}
	}

	return preset
}

// shouldScanResponse decides whether a network response is worth
// treating as a candidate source.  Direct-looking media URLs are always
// accepted; JSON and script responses are accepted for string-mining
// when they match the preset's keyword allowlist (or the allowlist is
// empty); ultra mode additionally accepts anything that smells like an
// API call.
func shouldScanResponse(respURL, contentType string, preset Preset, ultra bool) bool {
	u := strings.ToLower(respURL)
	ct := strings.ToLower(contentType)

	if extract.LooksLikeImageURL(u) || extract.LooksLikeVideoURL(u) {
		return true
	}
	if ultra && (strings.Contains(u, "graphql") || strings.Contains(u, "api")) {
		return true
	}
	if strings.Contains(ct, "application/json") ||
		strings.Contains(ct, "text/javascript") ||
		strings.Contains(ct, "application/x-javascript") {
		if len(preset.NetworkURLKeywords) == 0 {
			return true
		}
		for _, k := range preset.NetworkURLKeywords {
			if strings.Contains(u, k) {
				return true
			}
		}
		return false
	}
	return strings.Contains(u, "graphql")
}
