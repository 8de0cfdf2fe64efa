package scan

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QQcutePig/RIOimgDownload/pkg/scan/meta"
)

func thumbFixture(t *testing.T) (*Scanner, string, string, *httptest.Server) {
	t.Helper()

	body := pngBytes(t, 40, 30)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/a.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)

	s := newTestScanner(t, server.Client())
	jobID := s.registry.NewJob(meta.JobScan)
	thumbsDir := filepath.Join(t.TempDir(), "thumbs")
	require.NoError(t, os.MkdirAll(thumbsDir, 0755))
	return s, jobID, thumbsDir, server
}

func TestBuildThumbnailsForImage(t *testing.T) {
	s, jobID, thumbsDir, server := thumbFixture(t)

	tuples := []verified{{URL: server.URL + "/a.png", ContentType: "image/png", Size: 1234}}
	items, err := s.buildThumbnails(jobID, thumbsDir, tuples, Options{WantImage: true}, s.registry.flag(jobID))
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, meta.KindImage, item.Kind)
	assert.Equal(t, 40, item.Width)
	assert.Equal(t, 30, item.Height)
	assert.Equal(t, "PNG", item.Format)
	assert.Equal(t, hash8(tuples[0].URL), item.ID)
	assert.FileExists(t, item.ThumbPath)
}

func TestBuildThumbnailsVideoPlaceholderWithoutFetch(t *testing.T) {
	s, jobID, thumbsDir, _ := thumbFixture(t)

	// The URL would 404; videos never fetch, so a placeholder appears.
	tuples := []verified{{URL: "http://127.0.0.1:1/clip.mp4", ContentType: "video/mp4", Size: -1}}
	items, err := s.buildThumbnails(jobID, thumbsDir, tuples, Options{WantVideo: true}, s.registry.flag(jobID))
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, meta.KindVideo, item.Kind)
	assert.Equal(t, "VIDEO", item.Format)
	assert.Zero(t, item.Width)
	assert.Zero(t, item.Height)
	assert.FileExists(t, item.ThumbPath)
}

func TestBuildThumbnailsOversizePlaceholder(t *testing.T) {
	s, jobID, thumbsDir, server := thumbFixture(t)

	tuples := []verified{{URL: server.URL + "/a.png", ContentType: "image/png", Size: maxThumbBytes + 1}}
	items, err := s.buildThumbnails(jobID, thumbsDir, tuples, Options{WantImage: true}, s.registry.flag(jobID))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "BIG", items[0].Format)
	assert.FileExists(t, items[0].ThumbPath)
}

func TestBuildThumbnailsFetchFailurePlaceholder(t *testing.T) {
	s, jobID, thumbsDir, server := thumbFixture(t)

	tuples := []verified{{URL: server.URL + "/missing.png", ContentType: "image/png", Size: 10}}
	items, err := s.buildThumbnails(jobID, thumbsDir, tuples, Options{WantImage: true}, s.registry.flag(jobID))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "ERR", items[0].Format)
	assert.Zero(t, items[0].Width)
	assert.FileExists(t, items[0].ThumbPath)
}

func TestBuildThumbnailsDecodeFailurePlaceholder(t *testing.T) {
	// 200 OK with an image content type but bytes no decoder accepts.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("<html>definitely not a jpeg</html>"))
	}))
	defer server.Close()

	s := newTestScanner(t, server.Client())
	jobID := s.registry.NewJob(meta.JobScan)
	thumbsDir := filepath.Join(t.TempDir(), "thumbs")
	require.NoError(t, os.MkdirAll(thumbsDir, 0755))

	tuples := []verified{{URL: server.URL + "/fake", ContentType: "image/jpeg", Size: 34}}
	items, err := s.buildThumbnails(jobID, thumbsDir, tuples, Options{WantImage: true}, s.registry.flag(jobID))
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, meta.KindImage, item.Kind)
	assert.Equal(t, "ERR", item.Format)
	assert.Zero(t, item.Width)
	assert.Zero(t, item.Height)
	assert.FileExists(t, item.ThumbPath)
}

func TestMinSizeFilterDropsItemButKeepsFile(t *testing.T) {
	s, jobID, thumbsDir, server := thumbFixture(t)

	tuples := []verified{{URL: server.URL + "/a.png", ContentType: "image/png", Size: 1234}}
	items, err := s.buildThumbnails(jobID, thumbsDir, tuples,
		Options{WantImage: true, MinWidth: 100, MinHeight: 100}, s.registry.flag(jobID))
	require.NoError(t, err)
	assert.Empty(t, items)

	// The thumbnail file survives the filter.
	assert.FileExists(t, filepath.Join(thumbsDir, hash8(tuples[0].URL)+".jpg"))
}

func TestBuildThumbnailsObservesCancellation(t *testing.T) {
	s, jobID, thumbsDir, server := thumbFixture(t)
	require.NoError(t, s.registry.Cancel(jobID))

	tuples := []verified{{URL: server.URL + "/a.png", ContentType: "image/png", Size: 1234}}
	_, err := s.buildThumbnails(jobID, thumbsDir, tuples, Options{WantImage: true}, s.registry.flag(jobID))
	assert.ErrorIs(t, err, errCancelled)
}

func TestSortItemsImagesFirstLargerFirst(t *testing.T) {
	items := []meta.MediaItem{
		{ID: "vid1", Kind: meta.KindVideo},
		{ID: "tiny", Kind: meta.KindImage, Width: 10, Height: 10},
		{ID: "nodim", Kind: meta.KindImage},
		{ID: "big", Kind: meta.KindImage, Width: 800, Height: 600},
		{ID: "tall", Kind: meta.KindImage, Width: 400, Height: 900},
	}

	sortItems(items)

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	assert.Equal(t, []string{"big", "tall", "tiny", "nodim", "vid1"}, ids)
}
