package scan

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QQcutePig/RIOimgDownload/pkg/scan/meta"
)

// pngBytes encodes a solid-color PNG for probe and thumbnail tests.
func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestScanner(t *testing.T, client *http.Client) *Scanner {
	t.Helper()
	return New(Config{
		JobsDir:    t.TempDir(),
		HTTPClient: client,
	})
}

func TestVerifyAcceptsImageByContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", "12345")
	}))
	defer server.Close()

	s := newTestScanner(t, server.Client())
	jobID := s.registry.NewJob(meta.JobScan)

	// The URL has no image extension, so only the header probe admits it.
	accepted, err := s.verifyCandidates(jobID, []string{server.URL + "/media/123"},
		Options{WantImage: true}, s.registry.flag(jobID))
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, "image/jpeg", accepted[0].ContentType)
	assert.Equal(t, int64(12345), accepted[0].Size)
}

func TestVerifyRejectsUnwantedKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
	}))
	defer server.Close()

	s := newTestScanner(t, server.Client())
	jobID := s.registry.NewJob(meta.JobScan)

	accepted, err := s.verifyCandidates(jobID, []string{server.URL + "/media/clip"},
		Options{WantImage: true, WantVideo: false}, s.registry.flag(jobID))
	require.NoError(t, err)
	assert.Empty(t, accepted)
}

func TestVerifySniffDecodesMislabeledImage(t *testing.T) {
	body := pngBytes(t, 6, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			// The HEAD probe lies about the payload.
			w.Header().Set("Content-Type", "text/html")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer server.Close()

	s := newTestScanner(t, server.Client())
	jobID := s.registry.NewJob(meta.JobScan)

	accepted, err := s.verifyCandidates(jobID, []string{server.URL + "/media/456"},
		Options{WantImage: true}, s.registry.flag(jobID))
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, "image/png", accepted[0].ContentType)
}

func TestVerifySniffRejectsFakeImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "text/html")
			return
		}
		// Claims to be an image but the bytes do not decode.
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("<html>not an image</html>"))
	}))
	defer server.Close()

	s := newTestScanner(t, server.Client())
	jobID := s.registry.NewJob(meta.JobScan)

	accepted, err := s.verifyCandidates(jobID, []string{server.URL + "/media/789"},
		Options{WantImage: true}, s.registry.flag(jobID))
	require.NoError(t, err)
	assert.Empty(t, accepted)
}

func TestVerifyAcceptsVideoWithoutDecode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
	}))
	defer server.Close()

	s := newTestScanner(t, server.Client())
	jobID := s.registry.NewJob(meta.JobScan)

	accepted, err := s.verifyCandidates(jobID, []string{server.URL + "/media/clip"},
		Options{WantVideo: true}, s.registry.flag(jobID))
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, "video/mp4", accepted[0].ContentType)
}

func TestVerifyDropsUnreachableURLs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	s := newTestScanner(t, server.Client())
	jobID := s.registry.NewJob(meta.JobScan)

	accepted, err := s.verifyCandidates(jobID, []string{"http://127.0.0.1:1/nothing", server.URL + "/gone"},
		Options{WantImage: true, WantVideo: true}, s.registry.flag(jobID))
	require.NoError(t, err)
	assert.Empty(t, accepted)
}

func TestVerifyObservesCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
	}))
	defer server.Close()

	s := newTestScanner(t, server.Client())
	jobID := s.registry.NewJob(meta.JobScan)
	require.NoError(t, s.registry.Cancel(jobID))

	urls := make([]string, 40)
	for i := range urls {
		urls[i] = server.URL + "/media"
	}

	_, err := s.verifyCandidates(jobID, urls, Options{WantImage: true}, s.registry.flag(jobID))
	assert.ErrorIs(t, err, errCancelled)
}
