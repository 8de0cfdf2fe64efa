package scan

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/QQcutePig/RIOimgDownload/pkg/scan/extract"
)

const (
	verifyWorkers = 20
	headTimeout   = 10 * time.Second
	sniffTimeout  = 18 * time.Second
	sniffBytes    = 64 * 1024
)

// verified is a candidate that passed probing: confirmed media of a
// wanted kind.  Size is -1 when the server did not report one.
type verified struct {
	URL         string
	ContentType string
	Size        int64
}

// verifyCandidates probes every candidate with a bounded worker pool
// and returns the accepted ones in completion order.  It returns
// errCancelled as soon as the job's flag is observed between task
// completions; results of still-running probes are discarded.
func (s *Scanner) verifyCandidates(jobID string, urls []string, opts Options, cancel *cancelFlag) ([]verified, error) {
	tasks := make(chan string)
	// Buffered to capacity so workers never block on send and simply
	// drain away after an early cancellation return.
	results := make(chan *verified, len(urls))

	for i := 0; i < verifyWorkers; i++ {
		go func() {
			for u := range tasks {
				if cancel.Cancelled() {
					results <- nil
					continue
				}
				results <- s.verifyOne(u, opts)
			}
		}()
	}
	go func() {
		for _, u := range urls {
			tasks <- u
		}
		close(tasks)
	}()

	var accepted []verified
	for done := 1; done <= len(urls); done++ {
		r := <-results
		if cancel.Cancelled() {
			return nil, errCancelled
		}
		if r != nil {
			accepted = append(accepted, *r)
		}
		if done%5 == 0 || done == len(urls) {
			s.registry.SetProgress(jobID, done, len(urls), fmt.Sprintf("Verifying... (%d/%d)", done, len(urls)))
		}
	}

	return accepted, nil
}

// verifyOne runs the two-tier probe for a single URL.  Any transport
// failure is a rejection, not an error: the candidate is dropped.
func (s *Scanner) verifyOne(u string, opts Options) *verified {
	ct, size := s.probeHead(u)

	// Tier 1: the header probe (or the URL shape) already confirms a
	// wanted kind.
	if opts.WantImage && (extract.IsImageContentType(ct) || extract.LooksLikeImageURL(u)) {
		return &verified{URL: u, ContentType: ct, Size: size}
	}
	if opts.WantVideo && (extract.IsVideoContentType(ct) || extract.LooksLikeVideoURL(u)) {
		return &verified{URL: u, ContentType: ct, Size: size}
	}

	// Tier 2: sniff the first bytes of the body.
	body, sniffCT, err := s.probeSniff(u)
	if err != nil {
		return nil
	}
	if sniffCT == "" {
		sniffCT = ct
	}

	if opts.WantImage && (extract.IsImageContentType(sniffCT) || extract.LooksLikeImageURL(u)) {
		// Content types lie; a real decode of the sniffed bytes is the
		// acceptance gate for images.
		if _, _, err := image.DecodeConfig(bytes.NewReader(body)); err != nil {
			return nil
		}
		return &verified{URL: u, ContentType: sniffCT, Size: size}
	}
	if opts.WantVideo && (extract.IsVideoContentType(sniffCT) || extract.LooksLikeVideoURL(u)) {
		return &verified{URL: u, ContentType: sniffCT, Size: size}
	}
	return nil
}

// probeHead issues a redirect-following HEAD request and reports the
// content type and length.  Failures report empty/unknown.
func (s *Scanner) probeHead(u string) (string, int64) {
	ctx, cancel := context.WithTimeout(context.Background(), headTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return "", -1
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", -1
	}
	defer resp.Body.Close()

	return resp.Header.Get("Content-Type"), resp.ContentLength
}

// probeSniff streams at most sniffBytes of the body and returns them
// with the response's content type.
func (s *Scanner) probeSniff(u string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sniffTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, sniffBytes))
	if err != nil && len(body) == 0 {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}
