// Package memory provides in-process job and stats stores for local runs and tests
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/UnendingLoop/Colorizer/internal/model"
)

type JobRepo struct {
	mu   sync.RWMutex
	jobs map[string]model.Job
}

func NewJobRepo() *JobRepo {
	return &JobRepo{jobs: make(map[string]model.Job)}
}

func (r *JobRepo) Create(_ context.Context, j *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[j.ID]; ok {
		return fmt.Errorf("job %q already exists", j.ID)
	}
	r.jobs[j.ID] = *j
	return nil
}

func (r *JobRepo) Get(_ context.Context, id string) (*model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	return &j, nil
}

func (r *JobRepo) ListByOwner(_ context.Context, ownerID string, limit int) ([]model.Job, error) {
	r.mu.RLock()
	res := make([]model.Job, 0)
	for _, j := range r.jobs {
		if j.OwnerID == ownerID {
			res = append(res, j)
		}
	}
	r.mu.RUnlock()

	// тот же порядок, что и в postgres: created_at DESC, id DESC
	sort.Slice(res, func(a, b int) bool {
		if !res[a].CreatedAt.Equal(res[b].CreatedAt) {
			return res[a].CreatedAt.After(res[b].CreatedAt)
		}
		return res[a].ID > res[b].ID
	})

	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *JobRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id]; !ok {
		return model.ErrJobNotFound
	}
	delete(r.jobs, id)
	return nil
}

//---------------------

type StatsRepo struct {
	mu      sync.Mutex
	applied map[string]struct{}
	stats   map[string]model.OwnerStats
}

func NewStatsRepo() *StatsRepo {
	return &StatsRepo{
		applied: make(map[string]struct{}),
		stats:   make(map[string]model.OwnerStats),
	}
}

func (r *StatsRepo) ApplyEvent(_ context.Context, ev model.JobEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.applied[ev.JobID]; ok {
		return false, nil
	}
	r.applied[ev.JobID] = struct{}{}

	s := r.stats[ev.OwnerID]
	s.OwnerID = ev.OwnerID
	s.Total++
	if ev.Status == model.StatusSucceeded {
		s.Succeeded++
	} else {
		s.Failed++
	}
	if s.LastJobAt == nil || ev.CreatedAt.After(*s.LastJobAt) {
		t := ev.CreatedAt
		s.LastJobAt = &t
	}
	r.stats[ev.OwnerID] = s
	return true, nil
}

func (r *StatsRepo) GetStats(_ context.Context, ownerID string) (*model.OwnerStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stats[ownerID]
	if !ok {
		return &model.OwnerStats{OwnerID: ownerID}, nil
	}
	if s.LastJobAt != nil {
		t := *s.LastJobAt
		s.LastJobAt = &t
	}
	return &s, nil
}
