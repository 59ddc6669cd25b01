package jobs

import "time"

// State is a job lifecycle state.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Status is a point-in-time snapshot of one indexing job.
type Status struct {
	JobID          string     `json:"job_id"`
	State          State      `json:"status"`
	Progress       float64    `json:"progress"`
	TotalSites     int        `json:"total_sites"`
	SitesProcessed int        `json:"sites_processed"`
	FilesProcessed int        `json:"files_processed"`
	CurrentSite    string     `json:"current_site,omitempty"`
	Message        string     `json:"message,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// SiteToggles selects what gets crawled for one site. The zero value
// means everything; callers disable sources explicitly.
type SiteToggles struct {
	SkipDocuments bool `json:"skip_documents"`
	SkipEmail     bool `json:"skip_email"`
}

// StartRequest scopes a new indexing job.
type StartRequest struct {
	// SiteIDs restricts the job to these sites. Empty means every
	// discovered site.
	SiteIDs []string `json:"site_ids,omitempty"`

	// Sites carries per-site source toggles, keyed by site ID.
	Sites map[string]SiteToggles `json:"sites,omitempty"`
}
