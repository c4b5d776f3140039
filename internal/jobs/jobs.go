// Package jobs keeps an in-memory record of transcription runs so clients
// can look them up by id. Records do not survive a restart.
package jobs

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var ErrNotFound = errors.New("transcription not found")

// Job is a snapshot of one transcription run.
type Job struct {
	ID                    string    `json:"id"`
	Status                Status    `json:"status"`
	Filename              string    `json:"filename,omitempty"`
	Text                  string    `json:"text"`
	DurationSeconds       float64   `json:"duration_seconds"`
	WordCount             int       `json:"word_count"`
	ChunksProcessed       int       `json:"chunks_processed"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds"`
	CreatedAt             time.Time `json:"created_at"`
	Error                 string    `json:"error,omitempty"`
	Summary               string    `json:"summary,omitempty"`
}

// Outcome is what a finished run reports back.
type Outcome struct {
	Text            string
	DurationSeconds float64
	WordCount       int
	ChunksProcessed int
}

type Store struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	limit int
	now   func() time.Time
}

// NewStore keeps at most limit jobs, evicting the oldest; limit <= 0 means unbounded.
func NewStore(limit int) *Store {
	return &Store{jobs: make(map[string]*Job), limit: limit, now: time.Now}
}

// Create registers a pending job and returns its id.
func (s *Store) Create(filename string) Job {
	j := &Job{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Filename:  filename,
		CreatedAt: s.now().UTC(),
	}
	s.mu.Lock()
	s.jobs[j.ID] = j
	s.evictLocked()
	s.mu.Unlock()
	return *j
}

func (s *Store) Start(id string) error {
	return s.update(id, func(j *Job) { j.Status = StatusProcessing })
}

func (s *Store) Complete(id string, out Outcome) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusCompleted
		j.Text = out.Text
		j.DurationSeconds = out.DurationSeconds
		j.WordCount = out.WordCount
		j.ChunksProcessed = out.ChunksProcessed
		j.ProcessingTimeSeconds = s.now().Sub(j.CreatedAt).Seconds()
	})
}

func (s *Store) Fail(id string, cause error) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusFailed
		if cause != nil {
			j.Error = cause.Error()
		}
		j.ProcessingTimeSeconds = s.now().Sub(j.CreatedAt).Seconds()
	})
}

func (s *Store) SetSummary(id, summary string) error {
	return s.update(id, func(j *Job) { j.Summary = summary })
}

// Get returns a copy of the job.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *j, nil
}

// List returns all jobs, newest first.
func (s *Store) List() []Job {
	s.mu.RLock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out
}

func (s *Store) update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	fn(j)
	return nil
}

func (s *Store) evictLocked() {
	if s.limit <= 0 || len(s.jobs) <= s.limit {
		return
	}
	var oldest *Job
	for _, j := range s.jobs {
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	delete(s.jobs, oldest.ID)
}
