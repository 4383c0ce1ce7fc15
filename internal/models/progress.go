package models

const (
	UpdateProgress  = "progress"
	UpdateKeepalive = "keepalive"
)

type ProgressUpdate struct {
	Type     string   `json:"type"`
	JobID    string   `json:"job_id,omitempty"`
	State    JobState `json:"state,omitempty"`
	Done     int      `json:"done"`
	Total    int      `json:"total"`
	Progress float64  `json:"progress"`
	Error    string   `json:"error,omitempty"`
}

// IsTerminal reports whether this is the last update a job will produce.
func (u ProgressUpdate) IsTerminal() bool {
	return u.Type == UpdateProgress && u.State.IsTerminal()
}
