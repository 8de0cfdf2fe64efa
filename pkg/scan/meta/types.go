// Package meta contains the data model shared by the scan pipeline and
// its consumers: verified media items and per-job progress records.
package meta

import "time"

// MediaKind classifies a verified media item.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

// Status is the lifecycle state of a job.  Once a job reaches a
// terminal status (done, error, cancelled) it never changes again.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal returns true if s is a final state.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusCancelled
}

// JobType distinguishes a scan job from a direct external download.
type JobType string

const (
	JobScan        JobType = "scan"
	JobGdlDirect   JobType = "gdl_direct"
	JobYtdlpDirect JobType = "ytdlp_direct"
)

// MediaItem is a verified, thumbnailed media candidate.  Items are
// created by the thumbnail stage and immutable afterwards.
//
// JSON field names match the web UI payloads.
type MediaItem struct {
	// ID is an 8 hex char hash of URL, also the thumbnail file name.
	ID  string `json:"id"`
	URL string `json:"url"`
	// Kind is image or video.
	Kind MediaKind `json:"kind"`
	// ContentType is the raw content-type header, possibly empty.
	ContentType string `json:"ct"`
	// Width and Height are 0 when unknown (video, decode failure).
	Width  int `json:"w"`
	Height int `json:"h"`
	// Format is the uppercase decoded image format, or one of the
	// sentinels "VIDEO", "ERR", "BIG" when no real decode happened.
	Format string `json:"fmt"`
	// Size is the Content-Length in bytes, or -1 if unknown.
	Size int64 `json:"size"`
	// ThumbPath is the JPEG thumbnail on disk, real or placeholder.
	ThumbPath string `json:"thumb_path"`
}

// Area returns the pixel area used for result ordering, 0 when either
// dimension is unknown.
func (m MediaItem) Area() int {
	if m.Width <= 0 || m.Height <= 0 {
		return 0
	}
	return m.Width * m.Height
}

// JobState is a snapshot of one job's progress.
type JobState struct {
	ID      string `json:"id"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	// ProgressIndex / ProgressTotal count units in the active stage.
	// ProgressTotal is always at least 1.
	ProgressIndex int       `json:"progress_i"`
	ProgressTotal int       `json:"progress_total"`
	CreatedAt     time.Time `json:"created_at"`
	// FinishedAt is zero until the job reaches a terminal status.
	FinishedAt time.Time `json:"finished_at"`
	JobType    JobType   `json:"job_type"`
}
