package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/QQcutePig/RIOimgDownload/internal/log"
	"github.com/QQcutePig/RIOimgDownload/internal/tools"
	"github.com/QQcutePig/RIOimgDownload/pkg/scan/meta"
)

const directRunTimeout = time.Hour

type downloadRequest struct {
	Items []struct {
		URL string `json:"url"`
	} `json:"items"`
	URLs    []string `json:"urls"`
	Engine  string   `json:"engine"`
	DestDir string   `json:"dest_dir"`
}

type downloadResult struct {
	OK    int    `json:"ok"`
	Fail  int    `json:"fail"`
	Error string `json:"error,omitempty"`
}

// Download handles POST /api/download.  The engine field selects the
// builtin grab downloader, gallery-dl or yt-dlp.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, http.StatusBadRequest, "invalid json")
		return
	}

	urls := req.URLs
	if len(req.Items) > 0 {
		urls = urls[:0]
		for _, item := range req.Items {
			if item.URL != "" {
				urls = append(urls, item.URL)
			}
		}
	}
	if len(urls) == 0 {
		apiError(w, http.StatusBadRequest, "urls required")
		return
	}

	destDir := h.destDir(req.DestDir)

	var result downloadResult
	switch req.Engine {
	case "gallery-dl":
		result = h.toolBatch(r.Context(), tools.GalleryDL, urls, destDir)
	case "yt-dlp":
		result = h.toolBatch(r.Context(), tools.YtDlp, urls, destDir)
	default:
		res := h.engine.FetchAll(r.Context(), urls, destDir)
		result = downloadResult{OK: res.OK, Fail: res.Failed}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "result": result})
}

// toolBatch feeds the URL list to an external tool through a batch
// file.  The tool reports success for the batch as a whole.
func (h *Handler) toolBatch(ctx context.Context, tool tools.Tool, urls []string, destDir string) downloadResult {
	if _, err := h.tools.Command(tool); err != nil {
		return downloadResult{Fail: len(urls), Error: err.Error()}
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return downloadResult{Fail: len(urls), Error: err.Error()}
	}

	batch, err := os.CreateTemp("", "riodl-urls-*.txt")
	if err != nil {
		return downloadResult{Fail: len(urls), Error: err.Error()}
	}
	defer os.Remove(batch.Name())

	_, err = batch.WriteString(strings.Join(urls, "\n") + "\n")
	if closeErr := batch.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return downloadResult{Fail: len(urls), Error: err.Error()}
	}

	var args []string
	if tool == tools.GalleryDL {
		args = []string{"--input-file", batch.Name(), "--directory", destDir}
	} else {
		args = []string{"--batch-file", batch.Name(), "--paths", destDir}
	}

	out, err := h.tools.Run(ctx, tool, args, 30*time.Minute)
	if err != nil {
		return downloadResult{Fail: len(urls), Error: out}
	}
	return downloadResult{OK: len(urls)}
}

type directRequest struct {
	URL     string `json:"url"`
	DestDir string `json:"dest_dir"`
}

// GdlDirect handles POST /api/gdl_direct: hand the page URL straight
// to gallery-dl as a background job.
func (h *Handler) GdlDirect(w http.ResponseWriter, r *http.Request) {
	h.startDirect(w, r, tools.GalleryDL, meta.JobGdlDirect)
}

// YtdlpDirect handles POST /api/ytdlp/direct.
func (h *Handler) YtdlpDirect(w http.ResponseWriter, r *http.Request) {
	h.startDirect(w, r, tools.YtDlp, meta.JobYtdlpDirect)
}

func (h *Handler) startDirect(w http.ResponseWriter, r *http.Request, tool tools.Tool, jobType meta.JobType) {
	var req directRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		apiError(w, http.StatusBadRequest, "url required")
		return
	}
	if _, err := h.tools.Command(tool); err != nil {
		apiError(w, http.StatusBadRequest, fmt.Sprintf("%s not available", tool))
		return
	}

	destDir := h.destDir(req.DestDir)
	registry := h.scanner.Registry()
	jobID := registry.NewJob(jobType)

	go h.runDirect(jobID, tool, req.URL, destDir)

	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID})
}

// runDirect executes one external-tool download as a registry job.
// The cancellation flag is checked once the process finishes; a
// cancelled job never reports done or error.
func (h *Handler) runDirect(jobID string, tool tools.Tool, url, destDir string) {
	registry := h.scanner.Registry()
	registry.SetStatus(jobID, meta.StatusRunning, fmt.Sprintf("%s downloading...", tool))
	registry.SetProgress(jobID, 0, 1, fmt.Sprintf("%s running...", tool))

	var args []string
	if tool == tools.GalleryDL {
		args = []string{"--directory", destDir, url}
	} else {
		args = []string{"--paths", destDir, url}
	}

	out, err := h.tools.Run(context.Background(), tool, args, directRunTimeout)

	if registry.Cancelled(jobID) {
		registry.SetStatus(jobID, meta.StatusCancelled, "Cancelled")
		return
	}
	if err != nil {
		log.Errorf("%s job %s: %v", tool, jobID, err)
		registry.SetStatus(jobID, meta.StatusError, fmt.Sprintf("%s failed: %s", tool, clip(out, 800)))
		return
	}
	registry.SetStatus(jobID, meta.StatusDone, fmt.Sprintf("%s done", tool))
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
