// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package sched

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is the in-process Scheduler. Jobs live in memory only; after a
// restart the reconciliation engine re-derives them from the ledger.
type Memory struct {
	mu   sync.Mutex
	jobs map[jobKey]Job
}

type jobKey struct {
	pollID string
	kind   JobKind
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[jobKey]Job)}
}

// ScheduleJob registers the job, replacing any pending job of the same
// kind for the poll. Replacement keeps the one-job-per-transition
// invariant without a separate cancel call.
func (m *Memory) ScheduleJob(_ context.Context, pollID string, fireAt time.Time, kind JobKind) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := Job{
		ID:     uuid.NewString(),
		PollID: pollID,
		Kind:   kind,
		FireAt: fireAt,
	}
	m.jobs[jobKey{pollID, kind}] = job
	return job.ID, nil
}

func (m *Memory) CancelJob(_ context.Context, pollID string, kind JobKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobKey{pollID, kind})
	return nil
}

func (m *Memory) ListPendingJobs(_ context.Context) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].FireAt.Equal(jobs[j].FireAt) {
			return jobs[i].FireAt.Before(jobs[j].FireAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs, nil
}

// popDue removes and returns jobs whose fire time has passed.
func (m *Memory) popDue(now time.Time) []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []Job
	for key, j := range m.jobs {
		if !j.FireAt.After(now) {
			due = append(due, j)
			delete(m.jobs, key)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].FireAt.Before(due[j].FireAt) })
	return due
}

var _ Scheduler = (*Memory)(nil)
