// Package extract contains the pure candidate-extraction helpers used
// by the harvester: srcset parsing, CSS background URLs, media URL and
// content-type classification, and blacklist filtering.
package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var imageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tif", ".tiff", ".avif"}

var videoExts = []string{".mp4", ".webm", ".mov", ".m4v"}

// DefaultBlacklist filters out the usual page furniture: avatars,
// icons, tracking pixels, lazy-load placeholders.
var DefaultBlacklist = []string{
	"avatar", "noavatar", "logo", "sprite", "icon", "favicon", "emoji", "emoticon",
	"blank", "spacer", "loading", "placeholder", "banner", "tracking", "pixel",
}

// ParseSrcsetLargest picks the URL with the numerically largest `w`
// descriptor from a srcset attribute.  Ties keep the first entry seen.
// If no entry carries a width descriptor the first URL wins.  Returns
// false for empty input.
func ParseSrcsetLargest(srcset string) (string, bool) {
	bestURL := ""
	bestW := -1

	for _, part := range strings.Split(srcset, ",") {
		seg := strings.Fields(strings.TrimSpace(part))
		if len(seg) == 0 {
			continue
		}
		u := seg[0]

		w := -1
		if len(seg) >= 2 && strings.HasSuffix(seg[1], "w") {
			if n, err := strconv.Atoi(strings.TrimSuffix(seg[1], "w")); err == nil {
				w = n
			}
		}

		if w >= 0 && w > bestW {
			bestW = w
			bestURL = u
		} else if bestURL == "" {
			bestURL = u
		}
	}

	return bestURL, bestURL != ""
}

// RE2 has no backreferences, so quoted and bare url() arguments are
// matched as alternatives and unquoted afterwards.
var cssURLRegex = regexp.MustCompile(`(?i)url\(\s*("[^"]*"|'[^']*'|[^)'"][^)]*|)\s*\)`)

// BackgroundURLs extracts every url(...) occurrence from inline CSS
// text, stripping optional quotes and excluding data: URLs.
func BackgroundURLs(styleText string) []string {
	if styleText == "" {
		return nil
	}

	var out []string
	for _, m := range cssURLRegex.FindAllStringSubmatch(styleText, -1) {
		u := strings.TrimSpace(m[1])
		if len(u) >= 2 && (u[0] == '"' || u[0] == '\'') {
			u = strings.TrimSpace(u[1 : len(u)-1])
		}
		if u != "" && !strings.HasPrefix(strings.ToLower(u), "data:") {
			out = append(out, u)
		}
	}
	return out
}

// urlPath lowercases a URL and strips the query and fragment.
func urlPath(u string) string {
	lu := strings.ToLower(u)
	if i := strings.IndexByte(lu, '?'); i >= 0 {
		lu = lu[:i]
	}
	if i := strings.IndexByte(lu, '#'); i >= 0 {
		lu = lu[:i]
	}
	return lu
}

// LooksLikeImageURL reports whether the URL path ends in a known image
// extension.
func LooksLikeImageURL(u string) bool {
	lu := urlPath(u)
	for _, ext := range imageExts {
		if strings.HasSuffix(lu, ext) {
			return true
		}
	}
	return false
}

// LooksLikeVideoURL reports whether the URL path ends in a known video
// extension.
func LooksLikeVideoURL(u string) bool {
	lu := urlPath(u)
	for _, ext := range videoExts {
		if strings.HasSuffix(lu, ext) {
			return true
		}
	}
	return false
}

func mimeType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// IsImageContentType reports whether the content-type header declares
// an image, ignoring any parameters after ";".
func IsImageContentType(ct string) bool {
	return strings.HasPrefix(mimeType(ct), "image/")
}

// IsVideoContentType reports whether the content-type header declares
// a video, ignoring any parameters after ";".
func IsVideoContentType(ct string) bool {
	return strings.HasPrefix(mimeType(ct), "video/")
}

// Blacklisted reports whether the URL contains any of the given
// keywords, case-insensitively.
func Blacklisted(u string, blacklist []string) bool {
	lu := strings.ToLower(u)
	for _, k := range blacklist {
		if k != "" && strings.Contains(lu, k) {
			return true
		}
	}
	return false
}
