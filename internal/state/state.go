// Package state holds the durable checkpoint state for the scout and
// backfill coordinators. Each coordinator loads its state before a run
// and saves after every meaningful transition, which is what makes
// resume-after-crash safe.
package state

import (
	"sort"
	"time"
)

// Bounds on persisted scout history.
const (
	SeenIDCap  = 10_000
	RunHistory = 100
)

// RunSummary records one completed scout run.
type RunSummary struct {
	RunAt        time.Time `json:"run_at"`
	TotalFetched int       `json:"total_fetched"`
	NewCount     int       `json:"new_count"`
}

// ScoutState is the scout coordinator's checkpoint: the watermark for the
// next fetch window, the bounded seen-set for novelty filtering, and a
// ring buffer of recent run summaries.
type ScoutState struct {
	LastRunAt     *time.Time   `json:"last_run_at,omitempty"`
	SeenNoticeIDs []string     `json:"seen_notice_ids"`
	Runs          []RunSummary `json:"runs"`
	TotalFetched  int          `json:"total_fetched"`
	TotalNew      int          `json:"total_new"`
}

// SeenSet returns the seen ids as a set for constant-time lookups.
func (s *ScoutState) SeenSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.SeenNoticeIDs))
	for _, id := range s.SeenNoticeIDs {
		set[id] = struct{}{}
	}
	return set
}

// MarkSeen appends ids not already tracked, preserving insertion order,
// then trims the oldest entries past SeenIDCap.
func (s *ScoutState) MarkSeen(ids []string) {
	seen := s.SeenSet()
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		s.SeenNoticeIDs = append(s.SeenNoticeIDs, id)
	}
	if excess := len(s.SeenNoticeIDs) - SeenIDCap; excess > 0 {
		s.SeenNoticeIDs = s.SeenNoticeIDs[excess:]
	}
}

// RecordRun advances the watermark and appends a run summary, keeping the
// last RunHistory entries.
func (s *ScoutState) RecordRun(runAt time.Time, fetched, newCount int) {
	s.LastRunAt = &runAt
	s.TotalFetched += fetched
	s.TotalNew += newCount
	s.Runs = append(s.Runs, RunSummary{RunAt: runAt, TotalFetched: fetched, NewCount: newCount})
	if excess := len(s.Runs) - RunHistory; excess > 0 {
		s.Runs = s.Runs[excess:]
	}
}

// Backfill run statuses.
const (
	BackfillIdle      = "idle"
	BackfillRunning   = "running"
	BackfillPaused    = "paused"
	BackfillCompleted = "completed"
	BackfillError     = "error"
)

// BackfillState is the historical crawler's checkpoint. ResumeMonth always
// points at the month currently in progress (or next to process) in the
// newest-first iteration, so a restart resumes there without re-processing
// completed months or skipping past them.
type BackfillState struct {
	Status            string     `json:"status"`
	MonthsRequested   int        `json:"months_requested"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CurrentMonth      string     `json:"current_month,omitempty"`
	MonthsDone        []string   `json:"months_done"`
	TotalUpserted     int        `json:"total_upserted"`
	TotalPagesFetched int        `json:"total_pages_fetched"`
	LastError         string     `json:"last_error,omitempty"`
	ResumeMonth       string     `json:"resume_month,omitempty"`
}

// NewBackfillState returns the default idle state.
func NewBackfillState() *BackfillState {
	return &BackfillState{Status: BackfillIdle, MonthsDone: []string{}}
}

// IsMonthDone reports whether the "YYYY-MM" key is already complete.
func (b *BackfillState) IsMonthDone(key string) bool {
	for _, m := range b.MonthsDone {
		if m == key {
			return true
		}
	}
	return false
}

// MarkMonthDone records a completed month and clears the in-progress
// marker. The list stays sorted so status output reads oldest first.
func (b *BackfillState) MarkMonthDone(key string) {
	if !b.IsMonthDone(key) {
		b.MonthsDone = append(b.MonthsDone, key)
		sort.Strings(b.MonthsDone)
	}
	b.CurrentMonth = ""
}

// ProgressPct reports completion as a percentage of requested months.
func (b *BackfillState) ProgressPct() float64 {
	if b.MonthsRequested == 0 {
		return 0
	}
	return float64(len(b.MonthsDone)) / float64(b.MonthsRequested) * 100
}
