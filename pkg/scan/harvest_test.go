package scan

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QQcutePig/RIOimgDownload/pkg/scan/browser"
)

// fakeSession scripts a browser for harvester tests: canned network
// responses delivered on navigation, scripted scroll heights and
// canned evaluate results keyed by expression.
type fakeSession struct {
	mu      sync.Mutex
	handler browser.ResponseHandler

	responses []fakeResponse
	heights   []int
	scrolls   int
	evaluate  map[string]string
	location  string
	closed    bool
}

type fakeResponse struct {
	info browser.ResponseInfo
	body string
}

func (f *fakeSession) OnResponse(handler browser.ResponseHandler) {
	f.handler = handler
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	for _, r := range f.responses {
		body := r.body
		f.handler(r.info, func() ([]byte, error) { return []byte(body), nil })
	}
	return nil
}

func (f *fakeSession) ScrollBy(ctx context.Context, pixels int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrolls++
	return nil
}

func (f *fakeSession) ScrollHeight(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.scrolls - 1
	if i >= len(f.heights) {
		i = len(f.heights) - 1
	}
	if i < 0 || len(f.heights) == 0 {
		return 0, nil
	}
	return f.heights[i], nil
}

func (f *fakeSession) Evaluate(ctx context.Context, expr string, out any) error {
	if raw, ok := f.evaluate[expr]; ok && out != nil {
		return json.Unmarshal([]byte(raw), out)
	}
	return nil
}

func (f *fakeSession) Location(ctx context.Context) (string, error) {
	return f.location, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func fastPreset() Preset {
	return Preset{
		Name:               "generic",
		ScrollWait:         time.Millisecond,
		MaxScrollRounds:    50,
		StableRoundsToStop: 3,
		ParseNetworkJSON:   true,
	}
}

func newTestHarvester(session browser.Session, preset Preset, opts Options) *harvester {
	return newHarvester(session, preset, opts, nil, &cancelFlag{}, func(int, int, string) {})
}

func TestScrollLoopStopsOnStableHeight(t *testing.T) {
	session := &fakeSession{heights: []int{1000}}
	h := newTestHarvester(session, fastPreset(), Options{WantImage: true, WantVideo: true})

	require.NoError(t, h.scrollLoop(context.Background()))

	// One scroll per round; three rounds at the same height stop the loop.
	assert.LessOrEqual(t, session.scrolls, 5)
}

func TestScrollLoopStopsOnNetworkStall(t *testing.T) {
	// Heights grow forever, so only the network stall breaks the loop,
	// and only past its minimum round.
	heights := make([]int, 60)
	for i := range heights {
		heights[i] = 1000 + i*100
	}
	session := &fakeSession{heights: heights}
	h := newTestHarvester(session, fastPreset(), Options{WantImage: true, WantVideo: true})

	require.NoError(t, h.scrollLoop(context.Background()))

	assert.Equal(t, 12, session.scrolls)
}

func TestUltraScrollLoopNeedsMoreStableRounds(t *testing.T) {
	session := &fakeSession{heights: []int{1000}}
	h := newTestHarvester(session, fastPreset(), Options{Ultra: true, WantImage: true, WantVideo: true})

	require.NoError(t, h.scrollLoop(context.Background()))

	// Ultra raises the stable threshold from 3 to 5.
	assert.Equal(t, 6, session.scrolls)
}

func TestScrollLoopReturnsCancelled(t *testing.T) {
	session := &fakeSession{heights: []int{1000}}
	cancel := &cancelFlag{}
	cancel.Cancel()
	h := newHarvester(session, fastPreset(), Options{WantImage: true}, nil, cancel, func(int, int, string) {})

	assert.ErrorIs(t, h.scrollLoop(context.Background()), errCancelled)
	assert.Zero(t, session.scrolls)
}

func TestHarvestMergesNetBeforeDOM(t *testing.T) {
	imgs, err := json.Marshal([]imgAttrs{
		{Src: "/relative/b.png"},
		{Src: "https://cdn.example.com/net.jpg"}, // duplicate of a net candidate
	})
	require.NoError(t, err)

	session := &fakeSession{
		heights:  []int{1000},
		location: "https://example.com/gallery",
		evaluate: map[string]string{imgAttrsJS: string(imgs)},
		responses: []fakeResponse{
			{info: browser.ResponseInfo{URL: "https://cdn.example.com/net.jpg", ContentType: "image/jpeg"}},
		},
	}
	h := newTestHarvester(session, fastPreset(), Options{WantImage: true, WantVideo: true})

	merged, stats, err := h.Run(context.Background(), "https://example.com/gallery")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://cdn.example.com/net.jpg",
		"https://example.com/relative/b.png",
	}, merged)
	assert.Equal(t, 1, stats.Net)
	assert.Equal(t, 2, stats.Dom)
}

func TestObserveResponseMinesJSONStrings(t *testing.T) {
	h := newTestHarvester(&fakeSession{}, fastPreset(), Options{WantImage: true, WantVideo: true})

	// One URL with an HTML-entity ampersand, one with the JSON &
	// escape; both must come out with a plain &.
	body := `{"data": {"display_url": "https://cdn.example.com/pic.jpg?tag=1&amp;sig=2",` +
		` "thumb_url": "https://cdn.example.com/small.jpg?a=1&b=2", "caption": "hello"}}`
	h.observeResponse(
		browser.ResponseInfo{URL: "https://example.com/api/feed", ContentType: "application/json"},
		func() ([]byte, error) { return []byte(body), nil },
	)

	assert.Equal(t, []string{
		"https://cdn.example.com/pic.jpg?tag=1&sig=2",
		"https://cdn.example.com/small.jpg?a=1&b=2",
	}, h.mergeCandidates())
}

func TestObserveResponseHonorsKindFilter(t *testing.T) {
	h := newTestHarvester(&fakeSession{}, fastPreset(), Options{WantImage: true, WantVideo: false})

	h.observeResponse(
		browser.ResponseInfo{URL: "https://cdn.example.com/clip.mp4", ContentType: "video/mp4"},
		func() ([]byte, error) { return nil, nil },
	)

	assert.Empty(t, h.mergeCandidates())
}

func TestObserveResponseDeduplicates(t *testing.T) {
	h := newTestHarvester(&fakeSession{}, fastPreset(), Options{WantImage: true, WantVideo: true})

	for i := 0; i < 3; i++ {
		h.observeResponse(
			browser.ResponseInfo{URL: "https://cdn.example.com/a.jpg", ContentType: "image/jpeg"},
			func() ([]byte, error) { return nil, nil },
		)
	}

	assert.Equal(t, []string{"https://cdn.example.com/a.jpg"}, h.mergeCandidates())
}

func TestBestImageURLPriority(t *testing.T) {
	// The best srcset entry outranks the plain src.
	attrs := imgAttrs{
		Src:    "https://x/small.jpg",
		Srcset: "https://x/med.jpg 640w, https://x/big.jpg 1280w",
	}
	assert.Equal(t, "https://x/big.jpg", bestImageURL(attrs))

	// data: URIs are skipped in favor of the lazy-load attribute.
	attrs = imgAttrs{
		Src:     "data:image/gif;base64,R0lGOD",
		DataSrc: "https://x/real.jpg",
	}
	assert.Equal(t, "https://x/real.jpg", bestImageURL(attrs))

	assert.Equal(t, "", bestImageURL(imgAttrs{}))
}
