package scan

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/QQcutePig/RIOimgDownload/pkg/scan/extract"
	"golang.org/x/net/html"
)

// staticHarvest is the no-browser fallback: one HTTP fetch of the page
// HTML, walked for the same attribute conventions the browser
// harvester reads.  Pages that only populate media from script get
// little out of this, which is exactly the trade-off StaticOnly makes.
func (s *Scanner) staticHarvest(rawURL string, opts Options, blacklist []string, cancel *cancelFlag) ([]string, harvestStats, error) {
	if cancel.Cancelled() {
		return nil, harvestStats{}, errCancelled
	}

	ctx, cancelFetch := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancelFetch()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, harvestStats{}, err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, harvestStats{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, harvestStats{}, fmt.Errorf("page fetch returned status %d", resp.StatusCode)
	}

	root, err := html.Parse(resp.Body)
	if err != nil {
		return nil, harvestStats{}, err
	}

	// Redirects move the base URL.
	base := resp.Request.URL

	w := &staticWalker{opts: opts, blacklist: blacklist, base: base, seen: map[string]struct{}{}}
	w.walk(root)

	return w.out, harvestStats{Dom: len(w.out)}, nil
}

type staticWalker struct {
	opts      Options
	blacklist []string
	base      *url.URL
	seen      map[string]struct{}
	out       []string
}

func (w *staticWalker) walk(node *html.Node) {
	if node.Type == html.ElementNode {
		switch node.Data {
		case "img":
			w.addImg(node)
		case "a":
			w.addAnchor(attrVal(node, "href"))
		case "video", "source":
			w.add(attrVal(node, "src"))
			if best, ok := extract.ParseSrcsetLargest(attrVal(node, "srcset")); ok {
				w.add(best)
			}
		}
		if style := attrVal(node, "style"); style != "" {
			for _, u := range extract.BackgroundURLs(style) {
				w.add(u)
			}
		}
	}

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		w.walk(child)
	}
}

func (w *staticWalker) addImg(node *html.Node) {
	attrs := imgAttrs{
		Src:             attrVal(node, "src"),
		Srcset:          attrVal(node, "srcset"),
		DataSrc:         attrVal(node, "data-src"),
		DataOriginal:    attrVal(node, "data-original"),
		DataLazy:        attrVal(node, "data-lazy"),
		DataLazySrc:     attrVal(node, "data-lazy-src"),
		DataSrcset:      attrVal(node, "data-srcset"),
		DataLazySrcset:  attrVal(node, "data-lazy-srcset"),
		DataZoom:        attrVal(node, "data-zoom-image"),
		DataLarge:       attrVal(node, "data-large"),
		DataFullSrc:     attrVal(node, "data-full-src"),
		DataHires:       attrVal(node, "data-hires"),
		DataOriginalSrc: attrVal(node, "data-original-src"),
		DataHighRes:     attrVal(node, "data-high-res"),
		DataLightbox:    attrVal(node, "data-lightbox"),
	}
	w.add(bestImageURL(attrs))
}

func (w *staticWalker) addAnchor(href string) {
	if href == "" {
		return
	}
	abs, ok := resolveRef(w.base, href)
	if !ok {
		return
	}
	lower := strings.ToLower(abs)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "data:") {
		return
	}
	if w.opts.Ultra || extract.LooksLikeImageURL(lower) || extract.LooksLikeVideoURL(lower) ||
		strings.Contains(lower, "/attachment") {
		w.push(abs)
	}
}

func (w *staticWalker) add(ref string) {
	if ref == "" {
		return
	}
	if abs, ok := resolveRef(w.base, ref); ok {
		w.push(abs)
	}
}

func (w *staticWalker) push(u string) {
	if !admissible(u, w.blacklist) {
		return
	}
	if _, dup := w.seen[u]; dup {
		return
	}
	w.seen[u] = struct{}{}
	w.out = append(w.out, u)
}

func attrVal(node *html.Node, name string) string {
	for _, attr := range node.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}
