// Package store keeps a log of accessibility runs and the outcome of every
// (travel-time, land-use) pair they processed.
package store

import (
	"context"
	"time"
)

// RunStatus is the lifecycle state of a run or pair.
type RunStatus string

// Run and pair states.
const (
	StatusRunning  RunStatus = "running"
	StatusComplete RunStatus = "complete"
	StatusFailed   RunStatus = "failed"
)

// Run is one invocation of the accessibility runner.
type Run struct {
	ID        string    `json:"id"`
	Location  string    `json:"location"`
	Status    RunStatus `json:"status"`
	Failed    int       `json:"failed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Pair is the outcome of one output table.
type Pair struct {
	ID         string     `json:"id"`
	RunID      string     `json:"run_id"`
	TravelTime string     `json:"travel_time"`
	LandUse    string     `json:"land_use"`
	Output     string     `json:"output,omitempty"`
	Status     RunStatus  `json:"status"`
	Rows       int        `json:"rows"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// PairFilter specifies criteria for listing pairs.
type PairFilter struct {
	RunID  string    `json:"run_id,omitempty"`
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
}

// defaultLimit caps list queries without an explicit limit.
const defaultLimit = 100

// Store persists runs. Implementations satisfy accessibility.Recorder.
type Store interface {
	// Recording
	BeginRun(ctx context.Context, runID, location string) error
	EndRun(ctx context.Context, runID string, failed int) error
	BeginPair(ctx context.Context, runID, travelTime, landUse, output string) (string, error)
	EndPair(ctx context.Context, pairID string, rows int, pairErr error) error

	// Queries
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
	ListPairs(ctx context.Context, filter PairFilter) ([]Pair, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func runStatus(failed int) RunStatus {
	if failed > 0 {
		return StatusFailed
	}
	return StatusComplete
}

func pairOutcome(pairErr error) (RunStatus, *string) {
	if pairErr == nil {
		return StatusComplete, nil
	}
	msg := pairErr.Error()
	return StatusFailed, &msg
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}
