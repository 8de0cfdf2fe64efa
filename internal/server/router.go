package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewRouter configures the API routes and static web UI serving.
// The returned handler has permissive CORS applied for local UIs
// served from other ports.
func NewRouter(handler *Handler, webDir string) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/scan", handler.Scan).Methods("POST")
	r.HandleFunc("/api/status/{id}", handler.Status).Methods("GET")
	r.HandleFunc("/api/items/{id}", handler.Items).Methods("GET")
	r.HandleFunc("/api/stop/{id}", handler.Stop).Methods("POST")
	r.HandleFunc("/api/thumb/{job}/{item}.jpg", handler.Thumb).Methods("GET")
	r.HandleFunc("/api/thumb_large/{job}/{item}.jpg", handler.ThumbLarge).Methods("GET")

	r.HandleFunc("/api/download", handler.Download).Methods("POST")
	r.HandleFunc("/api/gdl_direct", handler.GdlDirect).Methods("POST")
	r.HandleFunc("/api/ytdlp/direct", handler.YtdlpDirect).Methods("POST")

	r.HandleFunc("/api/appinfo", handler.AppInfo).Methods("GET")
	r.HandleFunc("/api/config", handler.SetConfig).Methods("POST")
	r.HandleFunc("/api/set_dest_dir", handler.SetDestDir).Methods("POST")
	r.HandleFunc("/api/tools/status", handler.ToolsStatus).Methods("GET")
	r.HandleFunc("/api/tools/update/{tool}", handler.ToolsUpdate).Methods("POST")
	r.HandleFunc("/api/login/clear", handler.ClearLogin).Methods("POST")

	if webDir != "" {
		r.PathPrefix("/ui/").Handler(http.StripPrefix("/ui/", http.FileServer(http.Dir(webDir))))
	}

	return cors.AllowAll().Handler(r)
}
