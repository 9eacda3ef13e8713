package domain

import "time"

// VideoStatus is the render state of a VideoArtifact.
type VideoStatus string

const (
	VideoQueued    VideoStatus = "queued"
	VideoRendering VideoStatus = "rendering"
	VideoReady     VideoStatus = "ready"
	VideoFailed    VideoStatus = "failed"
	VideoTimedOut  VideoStatus = "timed_out"
)

// IsTerminal reports whether no further transition is possible.
func (s VideoStatus) IsTerminal() bool {
	return s == VideoReady || s == VideoFailed || s == VideoTimedOut
}

var videoTransitions = map[VideoStatus][]VideoStatus{
	VideoQueued:    {VideoRendering, VideoReady, VideoFailed, VideoTimedOut},
	VideoRendering: {VideoReady, VideoFailed, VideoTimedOut},
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to VideoStatus) bool {
	for _, allowed := range videoTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Reasons attached to failed and timed out artifacts.
const (
	ReasonTimeout       = "timeout"
	ReasonFailed        = "failed"
	ReasonSubmitFailed  = "submit_failed"
	ReasonNotConfigured = "not_configured"
)

// VideoArtifact is the output of avatar rendering for one script.
type VideoArtifact struct {
	ID          string      `json:"id"`
	ScriptRef   string      `json:"script_ref"`
	JobID       string      `json:"external_job_id,omitempty"`
	Status      VideoStatus `json:"status"`
	DownloadURL string      `json:"download_url,omitempty"`
	Attempts    int         `json:"attempts"`
	SubmittedAt time.Time   `json:"submitted_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Reason      string      `json:"reason,omitempty"`
	Detail      string      `json:"detail,omitempty"`
	Retryable   bool        `json:"-"`
	LastError   string      `json:"last_error,omitempty"`
}

// Advance returns a copy moved to status to. Illegal transitions leave the artifact unchanged
// and report false; a same-state update is accepted as a no-op.
func (a VideoArtifact) Advance(to VideoStatus, at time.Time) (VideoArtifact, bool) {
	if a.Status == to {
		return a, !a.Status.IsTerminal()
	}
	if !CanTransition(a.Status, to) {
		return a, false
	}
	a.Status = to
	a.UpdatedAt = at
	if to != VideoReady {
		a.DownloadURL = ""
	}
	return a, true
}

// RenderState is what a render provider reports for a job.
type RenderState string

const (
	RenderQueued    RenderState = "queued"
	RenderRendering RenderState = "rendering"
	RenderReady     RenderState = "ready"
	RenderFailed    RenderState = "failed"
)

// RenderRequest is submitted to the avatar provider.
type RenderRequest struct {
	Title string
	Text  string
}

// RenderStatus is a single status observation from the avatar provider.
type RenderStatus struct {
	State       RenderState
	DownloadURL string
	Message     string
}

// VideoStatusFor maps provider render states onto artifact states.
func VideoStatusFor(state RenderState) (VideoStatus, bool) {
	switch state {
	case RenderQueued:
		return VideoQueued, true
	case RenderRendering:
		return VideoRendering, true
	case RenderReady:
		return VideoReady, true
	case RenderFailed:
		return VideoFailed, true
	default:
		return "", false
	}
}
