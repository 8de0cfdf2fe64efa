package scan

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/QQcutePig/RIOimgDownload/pkg/scan/extract"
	"github.com/QQcutePig/RIOimgDownload/pkg/scan/meta"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	// Decoders for the formats the pipeline accepts.  imaging handles
	// JPEG/PNG/GIF/TIFF/BMP; webp is decode-only.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

const (
	thumbWorkers  = 12
	thumbSize     = 800
	jpegQuality   = 85
	maxThumbBytes = 25 << 20
	fetchTimeout  = 25 * time.Second
)

var (
	thumbBackground = color.NRGBA{R: 30, G: 30, B: 30, A: 255}
	placeholderEdge = color.NRGBA{R: 90, G: 90, B: 90, A: 255}
	placeholderText = color.NRGBA{R: 220, G: 220, B: 220, A: 255}
)

// buildThumbnails turns verified tuples into MediaItems with persisted
// JPEG thumbnails, then filters undersized images and orders the
// result.  Every tuple yields exactly one item: failures become
// placeholder items, never silent drops.
func (s *Scanner) buildThumbnails(jobID, thumbsDir string, tuples []verified, opts Options, cancel *cancelFlag) ([]meta.MediaItem, error) {
	tasks := make(chan verified)
	results := make(chan meta.MediaItem, len(tuples))

	for i := 0; i < thumbWorkers; i++ {
		go func() {
			for t := range tasks {
				// No new thumbnails start once cancellation is seen;
				// the empty item only keeps the completion count right.
				if cancel.Cancelled() {
					results <- meta.MediaItem{}
					continue
				}
				results <- s.thumbOne(t, thumbsDir)
			}
		}()
	}
	go func() {
		for _, t := range tuples {
			tasks <- t
		}
		close(tasks)
	}()

	var items []meta.MediaItem
	for done := 1; done <= len(tuples); done++ {
		item := <-results
		if cancel.Cancelled() {
			return nil, errCancelled
		}
		if done%3 == 0 || done == len(tuples) {
			s.registry.SetProgress(jobID, done, len(tuples), fmt.Sprintf("Thumb... (%d/%d)", done, len(tuples)))
		}

		// Images below the requested minimum dimensions are dropped
		// from the result set; their thumbnail files stay on disk.
		if item.Kind == meta.KindImage && item.Width > 0 && item.Height > 0 {
			if item.Width < opts.MinWidth || item.Height < opts.MinHeight {
				continue
			}
		}
		items = append(items, item)
	}

	sortItems(items)
	return items, nil
}

// sortItems orders images before videos and, within each kind, larger
// pixel area first.  Videos and dimension-less images share a zero
// area and sort last within their kind.
func sortItems(items []meta.MediaItem) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := kindRank(items[i].Kind), kindRank(items[j].Kind)
		if ri != rj {
			return ri < rj
		}
		return items[i].Area() > items[j].Area()
	})
}

func kindRank(k meta.MediaKind) int {
	if k == meta.KindImage {
		return 0
	}
	return 1
}

// thumbOne produces the MediaItem for one verified tuple, writing
// either a real thumbnail or a placeholder to disk.
func (s *Scanner) thumbOne(t verified, thumbsDir string) meta.MediaItem {
	item := meta.MediaItem{
		ID:          hash8(t.URL),
		URL:         t.URL,
		Kind:        meta.KindImage,
		ContentType: t.ContentType,
		Size:        t.Size,
	}
	if extract.IsVideoContentType(t.ContentType) || extract.LooksLikeVideoURL(t.URL) {
		item.Kind = meta.KindVideo
	}
	item.ThumbPath = filepath.Join(thumbsDir, item.ID+".jpg")

	if item.Kind == meta.KindVideo {
		// Video bytes are never fetched; a labeled placeholder stands in.
		item.Format = "VIDEO"
		_ = writePlaceholder(item.ThumbPath, "VIDEO")
		return item
	}

	if t.Size > maxThumbBytes {
		item.Format = "BIG"
		_ = writePlaceholder(item.ThumbPath, "BIG")
		return item
	}

	body, err := s.fetchBytes(t.URL)
	if err != nil {
		item.Format = "ERR"
		_ = writePlaceholder(item.ThumbPath, "ERR")
		return item
	}

	if err := writeThumb(item.ThumbPath, body); err != nil {
		item.Format = "ERR"
		_ = writePlaceholder(item.ThumbPath, "ERR")
		return item
	}

	// True dimensions and format are read independently; failing here
	// leaves them unknown without failing the item.
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(body)); err == nil {
		item.Width = cfg.Width
		item.Height = cfg.Height
		item.Format = strings.ToUpper(format)
	}
	return item
}

// writeThumb decodes image bytes, downscales them to fit the square
// thumbnail bound, flattens transparency onto the dark background and
// persists a JPEG.
func writeThumb(path string, body []byte) error {
	img, err := imaging.Decode(bytes.NewReader(body), imaging.AutoOrientation(true))
	if err != nil {
		return err
	}

	thumb := imaging.Fit(img, thumbSize, thumbSize, imaging.Lanczos)
	flat := imaging.New(thumb.Bounds().Dx(), thumb.Bounds().Dy(), thumbBackground)
	flat = imaging.Overlay(flat, thumb, image.Pt(0, 0), 1.0)

	return imaging.Save(flat, path, imaging.JPEGQuality(jpegQuality))
}

// writePlaceholder renders the synthetic thumbnail used for videos,
// oversize images and decode failures: dark background, thin border,
// centered label.
func writePlaceholder(path, label string) error {
	img := imaging.New(thumbSize, thumbSize, thumbBackground)

	edge := image.NewUniform(placeholderEdge)
	draw.Draw(img, image.Rect(10, 10, thumbSize-10, 12), edge, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(10, thumbSize-12, thumbSize-10, thumbSize-10), edge, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(10, 10, 12, thumbSize-10), edge, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(thumbSize-12, 10, thumbSize-10, thumbSize-10), edge, image.Point{}, draw.Src)

	drawer := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(placeholderText),
		Face: basicfont.Face7x13,
	}
	width := drawer.MeasureString(label)
	drawer.Dot = fixed.P((thumbSize-width.Ceil())/2, thumbSize/2)
	drawer.DrawString(label)

	return imaging.Save(img, path, imaging.JPEGQuality(jpegQuality))
}

// fetchBytes downloads the full image body for thumbnailing.
func (s *Scanner) fetchBytes(u string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
