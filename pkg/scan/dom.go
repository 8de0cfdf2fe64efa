package scan

import (
	"context"
	"net/url"
	"strings"

	"github.com/QQcutePig/RIOimgDownload/pkg/scan/extract"
)

// imgAttrs is the bulk-read attribute set for one <img> element,
// covering the common lazy-load data-* conventions.
type imgAttrs struct {
	Src             string `json:"src"`
	CurrentSrc      string `json:"currentSrc"`
	Srcset          string `json:"srcset"`
	DataSrc         string `json:"dataSrc"`
	DataOriginal    string `json:"dataOriginal"`
	DataLazy        string `json:"dataLazy"`
	DataLazySrc     string `json:"dataLazySrc"`
	DataSrcset      string `json:"dataSrcset"`
	DataLazySrcset  string `json:"dataLazySrcset"`
	DataZoom        string `json:"dataZoom"`
	DataLarge       string `json:"dataLarge"`
	DataFullSrc     string `json:"dataFullSrc"`
	DataHires       string `json:"dataHires"`
	DataOriginalSrc string `json:"dataOriginalSrc"`
	DataHighRes     string `json:"dataHighRes"`
	DataLightbox    string `json:"dataLightbox"`
}

type sourceAttrs struct {
	Src    string `json:"src"`
	Srcset string `json:"srcset"`
}

const imgAttrsJS = `Array.from(document.querySelectorAll('img')).map(e => ({
	src: e.getAttribute('src') || '',
	currentSrc: e.currentSrc || '',
	srcset: e.getAttribute('srcset') || '',
	dataSrc: e.getAttribute('data-src') || '',
	dataOriginal: e.getAttribute('data-original') || '',
	dataLazy: e.getAttribute('data-lazy') || '',
	dataLazySrc: e.getAttribute('data-lazy-src') || '',
	dataSrcset: e.getAttribute('data-srcset') || '',
	dataLazySrcset: e.getAttribute('data-lazy-srcset') || '',
	dataZoom: e.getAttribute('data-zoom-image') || '',
	dataLarge: e.getAttribute('data-large') || '',
	dataFullSrc: e.getAttribute('data-full-src') || '',
	dataHires: e.getAttribute('data-hires') || '',
	dataOriginalSrc: e.getAttribute('data-original-src') || '',
	dataHighRes: e.getAttribute('data-high-res') || '',
	dataLightbox: e.getAttribute('data-lightbox') || ''
}))`

const styleAttrsJS = `Array.from(document.querySelectorAll('[style]'))
	.map(e => e.getAttribute('style') || '').filter(Boolean)`

const anchorHrefsJS = `Array.from(document.querySelectorAll('a[href]'))
	.map(a => a.getAttribute('href') || '').filter(Boolean)`

const videoAttrsJS = `Array.from(document.querySelectorAll("video, video source, source[type^='video']")).map(e => ({
	src: e.getAttribute('src') || '',
	srcset: e.getAttribute('srcset') || ''
}))`

const sourceAttrsJS = `Array.from(document.querySelectorAll('source[srcset], source[src]')).map(e => ({
	src: e.getAttribute('src') || '',
	srcset: e.getAttribute('srcset') || ''
}))`

const preloadHrefsJS = `Array.from(document.querySelectorAll("link[rel='preload'][href]"))
	.map(l => l.getAttribute('href') || '').filter(Boolean)`

// globalStateJS mines well-known framework state containers for
// media-shaped URLs, bounded to 5 levels of nesting.
const globalStateJS = `(() => {
	const urls = [];
	const roots = [
		window.__INITIAL_DATA__,
		window.__NEXT_DATA__,
		window.__PRELOADED_STATE__,
		window.App,
		window.pageData
	];
	function findUrls(obj, depth) {
		if (depth > 5 || !obj) return;
		if (typeof obj === 'string') {
			if (obj.match(/^https?:\/\/.+\.(jpg|jpeg|png|gif|webp|bmp|mp4|webm)/i)) urls.push(obj);
		} else if (typeof obj === 'object') {
			for (const key in obj) {
				if (Object.prototype.hasOwnProperty.call(obj, key)) findUrls(obj[key], depth + 1);
			}
		}
	}
	roots.forEach(r => findUrls(r, 0));
	return urls;
})()`

// extractDOM bulk-reads candidate attributes from the settled page and
// feeds them through the DOM candidate filter.  Every evaluate is
// best-effort: a failing selector just contributes nothing.
func (h *harvester) extractDOM(ctx context.Context, baseURL string) {
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	var imgs []imgAttrs
	_ = h.session.Evaluate(ctx, imgAttrsJS, &imgs)
	for _, attrs := range imgs {
		if best := bestImageURL(attrs); best != "" {
			if abs, ok := resolveRef(base, best); ok {
				h.addDOM(abs)
			}
		}
	}

	var styles []string
	_ = h.session.Evaluate(ctx, styleAttrsJS, &styles)
	for _, style := range styles {
		for _, u := range extract.BackgroundURLs(style) {
			if abs, ok := resolveRef(base, u); ok {
				h.addDOM(abs)
			}
		}
	}

	var hrefs []string
	_ = h.session.Evaluate(ctx, anchorHrefsJS, &hrefs)
	for _, href := range hrefs {
		abs, ok := resolveRef(base, href)
		if !ok {
			continue
		}
		lower := strings.ToLower(abs)
		if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "data:") {
			continue
		}
		if h.opts.Ultra {
			h.addDOM(abs)
			continue
		}
		// Outside ultra mode only media-looking links and forum
		// attachment paths are worth probing.
		if extract.LooksLikeImageURL(lower) || extract.LooksLikeVideoURL(lower) ||
			strings.Contains(lower, "/attachment") {
			h.addDOM(abs)
		}
	}

	if h.opts.Ultra {
		var sources []sourceAttrs
		_ = h.session.Evaluate(ctx, sourceAttrsJS, &sources)
		for _, src := range sources {
			if best, ok := extract.ParseSrcsetLargest(src.Srcset); ok {
				if abs, ok := resolveRef(base, best); ok {
					h.addDOM(abs)
				}
			}
			if src.Src != "" && !strings.HasPrefix(strings.ToLower(src.Src), "data:") {
				if abs, ok := resolveRef(base, src.Src); ok {
					h.addDOM(abs)
				}
			}
		}

		var preloads []string
		_ = h.session.Evaluate(ctx, preloadHrefsJS, &preloads)
		for _, href := range preloads {
			if abs, ok := resolveRef(base, href); ok {
				h.addDOM(abs)
			}
		}

		var globals []string
		_ = h.session.Evaluate(ctx, globalStateJS, &globals)
		for _, u := range globals {
			h.addDOM(u)
		}
	}

	var videos []sourceAttrs
	_ = h.session.Evaluate(ctx, videoAttrsJS, &videos)
	for _, video := range videos {
		if video.Src != "" {
			if abs, ok := resolveRef(base, video.Src); ok {
				h.addDOM(abs)
			}
		}
		if best, ok := extract.ParseSrcsetLargest(video.Srcset); ok {
			if abs, ok := resolveRef(base, best); ok {
				h.addDOM(abs)
			}
		}
	}
}

// bestImageURL builds the priority-ordered candidate list for one img
// element and returns the first entry that is not a data: URI.  The
// best srcset entry outranks everything else.
func bestImageURL(attrs imgAttrs) string {
	candidates := make([]string, 0, 16)
	if best, ok := extract.ParseSrcsetLargest(attrs.Srcset); ok {
		candidates = append(candidates, best)
	}
	candidates = append(candidates,
		attrs.CurrentSrc, attrs.Src, attrs.DataSrc, attrs.DataOriginal,
		attrs.DataLazy, attrs.DataLazySrc, attrs.DataSrcset,
		attrs.DataLazySrcset, attrs.DataZoom, attrs.DataLarge,
		attrs.DataFullSrc, attrs.DataHires, attrs.DataOriginalSrc,
		attrs.DataHighRes, attrs.DataLightbox,
	)

	for _, c := range candidates {
		if c != "" && !strings.HasPrefix(strings.ToLower(c), "data:") {
			return c
		}
	}
	return ""
}
