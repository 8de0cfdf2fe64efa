// Package tools wraps the external downloader executables (gallery-dl
// and yt-dlp): discovery next to the server binary, version probing,
// GitHub release checks and Linux self-update.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Tool identifies one of the supported external downloaders.
type Tool string

const (
	GalleryDL Tool = "gallery-dl"
	YtDlp     Tool = "yt-dlp"
)

// ErrNotAvailable is returned when the tool executable is not present.
var ErrNotAvailable = errors.New("tool not available")

// Platform names the host OS the way the web UI expects it.
func Platform() string {
	switch runtime.GOOS {
	case "windows":
		return "windows"
	case "darwin":
		return "macos"
	default:
		return "linux"
	}
}

const (
	versionTimeout = 10 * time.Second
	apiTimeout     = 10 * time.Second
	updateTimeout  = 2 * time.Minute

	// DefaultRunTimeout bounds one batch invocation of a tool.
	DefaultRunTimeout = 30 * time.Minute
)

func (t Tool) repo() string {
	if t == GalleryDL {
		return "mikf/gallery-dl"
	}
	return "yt-dlp/yt-dlp"
}

// Valid reports whether t names a supported tool.
func (t Tool) Valid() bool {
	return t == GalleryDL || t == YtDlp
}

// Status describes a tool's availability for the UI.
type Status struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
	HasUpdate bool   `json:"has_update"`
	Latest    string `json:"latest_version,omitempty"`
}

// Manager locates and runs the external downloader executables from a
// single directory, usually next to the server binary.
type Manager struct {
	dir    string
	client *http.Client
}

// NewManager creates a Manager rooted at dir.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir, client: &http.Client{}}
}

// Path returns the expected executable path for a tool.
func (m *Manager) Path(t Tool) string {
	name := string(t)
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(m.dir, name)
}

// Command returns the executable path, or ErrNotAvailable when the
// tool is not installed.
func (m *Manager) Command(t Tool) (string, error) {
	path := m.Path(t)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: place %s in %s", ErrNotAvailable, t, m.dir)
	}
	return path, nil
}

// Version runs the tool's --version probe.
func (m *Manager) Version(ctx context.Context, t Tool) (string, error) {
	path, err := m.Command(t)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "--version").CombinedOutput()
	version := strings.TrimSpace(string(out))
	if err != nil {
		if version == "" {
			version = err.Error()
		}
		return "", fmt.Errorf("version check failed: %s", version)
	}
	return version, nil
}

// Run executes a tool with the given arguments and returns its
// combined output.  A non-zero exit status is returned as an error
// together with the captured output.
func (m *Manager) Run(ctx context.Context, t Tool, args []string, timeout time.Duration) (string, error) {
	path, err := m.Command(t)
	if err != nil {
		return "", err
	}
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		return output, fmt.Errorf("%s failed: %w", t, err)
	}
	return output, nil
}

type release struct {
	TagName string `json:"tag_name"`
	Assets  []struct {
		Name        string `json:"name"`
		DownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

func (m *Manager) latestRelease(ctx context.Context, t Tool) (*release, error) {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	url := fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", t.repo())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release check returned status %d", resp.StatusCode)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// CheckUpdate compares the installed version against the latest
// GitHub release and returns (hasUpdate, latestVersion).
func (m *Manager) CheckUpdate(ctx context.Context, t Tool) (bool, string, error) {
	rel, err := m.latestRelease(ctx, t)
	if err != nil {
		return false, "", err
	}
	latest := strings.TrimPrefix(rel.TagName, "v")

	current, err := m.Version(ctx, t)
	if err != nil {
		return false, "", err
	}
	fields := strings.Fields(current)
	if len(fields) == 0 {
		return false, latest, nil
	}
	currentVersion := strings.TrimPrefix(fields[0], "v")

	return latest != "" && latest != currentVersion, latest, nil
}

// UpdateLinux downloads the latest release binary and atomically
// replaces the installed one.  Only supported on Linux; other
// platforms update manually.
func (m *Manager) UpdateLinux(ctx context.Context, t Tool) (string, error) {
	if runtime.GOOS != "linux" {
		return "", fmt.Errorf("automatic update is only supported on Linux")
	}

	rel, err := m.latestRelease(ctx, t)
	if err != nil {
		return "", err
	}

	downloadURL := ""
	for _, asset := range rel.Assets {
		if asset.Name == string(t) || asset.Name == string(t)+"_linux" {
			downloadURL = asset.DownloadURL
			break
		}
	}
	if downloadURL == "" {
		return "", fmt.Errorf("no linux binary in release %s", rel.TagName)
	}

	ctx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	path := m.Path(t)
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", err
	}

	version, err := m.Version(ctx, t)
	if err != nil {
		return "", err
	}
	return version, nil
}

// Status collects availability and update info for the UI.
func (m *Manager) Status(ctx context.Context, t Tool) Status {
	version, err := m.Version(ctx, t)
	if err != nil {
		return Status{Error: err.Error()}
	}

	status := Status{Available: true, Version: version}
	if hasUpdate, latest, err := m.CheckUpdate(ctx, t); err == nil && hasUpdate {
		status.HasUpdate = true
		status.Latest = latest
	}
	return status
}
