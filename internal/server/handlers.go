// Package server exposes the scan pipeline, download engines and tool
// management over a JSON HTTP API consumed by the bundled web UI.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/QQcutePig/RIOimgDownload/internal/appdata"
	"github.com/QQcutePig/RIOimgDownload/internal/tools"
	"github.com/QQcutePig/RIOimgDownload/pkg/download"
	"github.com/QQcutePig/RIOimgDownload/pkg/scan"
	"github.com/QQcutePig/RIOimgDownload/pkg/scan/meta"
)

const appName = "RIOimgDownload"

type scanService interface {
	Start(rawURL string, opts scan.Options) (string, error)
	Job(id string) (meta.JobState, error)
	Items(id string) ([]meta.MediaItem, error)
	Cancel(id string) error
	OpenThumb(jobID, itemID string) (io.ReadCloser, error)
	Registry() *scan.Registry
}

type settingsStore interface {
	All() map[string]interface{}
	GetString(key, fallback string) string
	Set(key string, value interface{}) error
	Update(values map[string]interface{}) error
}

// Handler implements the API endpoints.
type Handler struct {
	scanner  scanService
	engine   *download.Engine
	tools    *tools.Manager
	settings settingsStore
	paths    appdata.Paths
}

// NewHandler wires the API handlers with their collaborators.
func NewHandler(scanner scanService, engine *download.Engine, toolMgr *tools.Manager, settings settingsStore, paths appdata.Paths) *Handler {
	return &Handler{
		scanner:  scanner,
		engine:   engine,
		tools:    toolMgr,
		settings: settings,
		paths:    paths,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func apiError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}

type scanRequest struct {
	URL             string `json:"url"`
	Ultra           bool   `json:"ultra"`
	UseLoginProfile bool   `json:"use_login_profile"`
	DebugBrowser    bool   `json:"debug_browser"`
	MinW            int    `json:"min_w"`
	MinH            int    `json:"min_h"`
	WantImage       *bool  `json:"want_image"`
	WantVideo       *bool  `json:"want_video"`
	Blacklist       string `json:"blacklist"`
}

// Scan handles POST /api/scan.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		apiError(w, http.StatusBadRequest, "url required")
		return
	}

	opts := scan.Options{
		Ultra:           req.Ultra,
		UseLoginProfile: req.UseLoginProfile,
		DebugBrowser:    req.DebugBrowser,
		MinWidth:        req.MinW,
		MinHeight:       req.MinH,
		WantImage:       req.WantImage == nil || *req.WantImage,
		WantVideo:       req.WantVideo == nil || *req.WantVideo,
	}
	if req.Blacklist != "" {
		opts.Blacklist = strings.Split(req.Blacklist, ",")
	}

	jobID, err := h.scanner.Start(req.URL, opts)
	if err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID})
}

// Status handles GET /api/status/{id}.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	state, err := h.scanner.Job(mux.Vars(r)["id"])
	if err != nil {
		apiError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Items handles GET /api/items/{id}.
func (h *Handler) Items(w http.ResponseWriter, r *http.Request) {
	items, err := h.scanner.Items(mux.Vars(r)["id"])
	if err != nil {
		apiError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// Stop handles POST /api/stop/{id}.
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.scanner.Cancel(mux.Vars(r)["id"]); err != nil {
		apiError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Thumb handles GET /api/thumb/{job}/{item}.jpg.
func (h *Handler) Thumb(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	reader, err := h.scanner.OpenThumb(vars["job"], vars["item"])
	if err != nil {
		if errors.Is(err, scan.ErrThumbNotFound) {
			apiError(w, http.StatusNotFound, "thumb not found")
			return
		}
		apiError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = io.Copy(w, reader)
}

// ThumbLarge handles GET /api/thumb_large/{job}/{item}.jpg, the
// lightbox rendition.  A dedicated large file is served when one
// exists; the regular thumbnail is already at the full bound size, so
// it is the fallback.
func (h *Handler) ThumbLarge(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	reader, err := h.scanner.OpenThumb(vars["job"], vars["item"]+"_large")
	if errors.Is(err, scan.ErrThumbNotFound) {
		reader, err = h.scanner.OpenThumb(vars["job"], vars["item"])
	}
	if err != nil {
		if errors.Is(err, scan.ErrThumbNotFound) {
			apiError(w, http.StatusNotFound, "thumb not found")
			return
		}
		apiError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = io.Copy(w, reader)
}

// AppInfo handles GET /api/appinfo.
func (h *Handler) AppInfo(w http.ResponseWriter, r *http.Request) {
	gdlVersion, gdlErr := h.tools.Version(r.Context(), tools.GalleryDL)
	info := gdlVersion
	if gdlErr != nil {
		info = gdlErr.Error()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"app":                  appName,
		"data_dir":             h.paths.DataDir,
		"has_login_profile":    h.paths.HasProfile(),
		"config":               h.settings.All(),
		"platform":             tools.Platform(),
		"gallery_dl_available": gdlErr == nil,
		"gallery_dl_info":      info,
	})
}

// SetConfig handles POST /api/config.
func (h *Handler) SetConfig(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		apiError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.settings.Update(payload); err != nil {
		apiError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "config": h.settings.All()})
}

// SetDestDir handles POST /api/set_dest_dir.
func (h *Handler) SetDestDir(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		apiError(w, http.StatusBadRequest, "invalid json")
		return
	}
	payload.Path = strings.TrimSpace(payload.Path)
	if payload.Path == "" {
		apiError(w, http.StatusBadRequest, "path required")
		return
	}
	if err := h.settings.Set("dest_dir", payload.Path); err != nil {
		apiError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "dest_dir": payload.Path})
}

// ToolsStatus handles GET /api/tools/status.
func (h *Handler) ToolsStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"platform":   tools.Platform(),
		"gallery_dl": h.tools.Status(r.Context(), tools.GalleryDL),
		"yt_dlp":     h.tools.Status(r.Context(), tools.YtDlp),
	})
}

// ToolsUpdate handles POST /api/tools/update/{tool}.
func (h *Handler) ToolsUpdate(w http.ResponseWriter, r *http.Request) {
	tool := tools.Tool(mux.Vars(r)["tool"])
	if !tool.Valid() {
		apiError(w, http.StatusBadRequest, "invalid tool")
		return
	}

	switch tools.Platform() {
	case "windows", "macos":
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":      false,
			"message": "automatic update is only supported on Linux",
		})
		return
	}

	version, err := h.tools.UpdateLinux(r.Context(), tool)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"message": "updated to " + version,
	})
}

// ClearLogin handles POST /api/login/clear.
func (h *Handler) ClearLogin(w http.ResponseWriter, r *http.Request) {
	if err := h.paths.ClearProfile(); err != nil {
		apiError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "message": "Login profile cleared."})
}

func (h *Handler) destDir(requested string) string {
	requested = strings.TrimSpace(requested)
	if requested != "" {
		return requested
	}
	return h.settings.GetString("dest_dir", h.paths.DefaultDownloadDir)
}
