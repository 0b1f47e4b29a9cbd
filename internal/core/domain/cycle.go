package domain

import "time"

// FetchState is a step of the imagery fetch state machine.
type FetchState string

const (
	StateIdle     FetchState = "idle"
	StateLoading  FetchState = "loading"
	StateSuccess  FetchState = "success"
	StateFallback FetchState = "fallback"
	StateFailed   FetchState = "failed"
)

// Terminal reports whether the state ends a cycle.
func (s FetchState) Terminal() bool {
	return s == StateSuccess || s == StateFallback || s == StateFailed
}

// Area is a resolved user submission.
type Area struct {
	Bounds Bounds          `json:"bounds"`
	Center GeoPoint        `json:"center"`
	Extent Extent          `json:"extent_m"`
	Links  CopernicusLinks `json:"links"`
}

// ImageryResult is the outcome of one fetch cycle.
type ImageryResult struct {
	CycleID   string          `json:"cycle_id"`
	SessionID string          `json:"session_id"`
	State     FetchState      `json:"state"`
	Strategy  Strategy        `json:"strategy"`
	Bounds    Bounds          `json:"bounds"`
	Before    *ImageSource    `json:"before,omitempty"`
	Now       *ImageSource    `json:"now,omitempty"`
	Links     CopernicusLinks `json:"links"`
	Error     string          `json:"error,omitempty"`
	// Stale is set when a newer cycle superseded this one before it finished.
	Stale bool `json:"stale,omitempty"`
}

// FetchCycle is the journal record of one fetch cycle.
type FetchCycle struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	Bounds     Bounds     `json:"bounds"`
	State      FetchState `json:"state"`
	Strategy   Strategy   `json:"strategy"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// CycleEvent is published on every state transition of a cycle.
type CycleEvent struct {
	CycleID   string     `json:"cycle_id"`
	SessionID string     `json:"session_id"`
	State     FetchState `json:"state"`
	Strategy  Strategy   `json:"strategy,omitempty"`
	Error     string     `json:"error,omitempty"`
	Time      time.Time  `json:"time"`
}

// SessionSnapshot is a read-only copy of a client session.
type SessionSnapshot struct {
	ID              string     `json:"id"`
	Bounds          *Bounds    `json:"bounds,omitempty"`
	ControlsEnabled bool       `json:"controls_enabled"`
	CycleID         string     `json:"cycle_id,omitempty"`
	Generation      uint64     `json:"generation"`
	State           FetchState `json:"state"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
