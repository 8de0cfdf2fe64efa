package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"example.com", "example.com"},
		{`a\b/c:d*e?f"g<h>i|j`, "a_b_c_d_e_f_g_h_i_j"},
		{" ._trimmed._ ", "trimmed"},
		{"", "file"},
		{`///`, "file"},
		{strings.Repeat("x", 200), strings.Repeat("x", 160)},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, SafeName(tc.in))
	}
}

func TestFetchAllDownloadsIntoHostDirs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "missing.jpg") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpegbytes"))
	}))
	defer server.Close()

	dest := t.TempDir()
	engine := NewEngine(WithWorkers(2), WithUserAgent("riodl-test"))

	result := engine.FetchAll(context.Background(), []string{
		server.URL + "/a.jpg",
		server.URL + "/missing.jpg",
		"::not-a-url",
	}, dest)

	assert.Equal(t, 1, result.OK)
	assert.Equal(t, 2, result.Failed)

	hostDir := filepath.Join(dest, SafeName(strings.TrimPrefix(server.URL, "http://")))
	data, err := os.ReadFile(filepath.Join(hostDir, "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpegbytes", string(data))
}
