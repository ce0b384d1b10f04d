// Package scheduler runs named background jobs on fixed intervals.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"taskmate/app/pkg/logger"
)

var (
	ErrDuplicateJob   = errors.New("scheduler: duplicate job")
	ErrAlreadyRunning = errors.New("scheduler: already running")
)

// Job is one periodic unit of work. Timeout bounds a single run; zero means
// the run only ends with the scheduler.
type Job struct {
	Name      string
	Every     time.Duration
	Timeout   time.Duration
	Immediate bool
	Run       func(context.Context) error
}

type JobStatus struct {
	Name       string    `json:"name"`
	Every      string    `json:"every"`
	Runs       int64     `json:"runs"`
	Failures   int64     `json:"failures"`
	LastRunAt  time.Time `json:"last_run_at,omitempty"`
	LastTookMS int64     `json:"last_took_ms"`
	LastError  string    `json:"last_error,omitempty"`
}

type Scheduler struct {
	mu      sync.Mutex
	jobs    []Job
	status  map[string]*JobStatus
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	now     func() time.Time
}

func New() *Scheduler {
	return &Scheduler{status: map[string]*JobStatus{}, now: time.Now}
}

// Add registers a job. Jobs added after Start begin immediately.
func (s *Scheduler) Add(job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.status[job.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
	}
	s.jobs = append(s.jobs, job)
	s.status[job.Name] = &JobStatus{Name: job.Name, Every: job.Every.String()}
	return nil
}

func (s *Scheduler) Start(parent context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.running = true
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	logger.Info("[Scheduler] Started %d job(s)", len(s.jobs))
	return nil
}

// Stop cancels every job and waits up to timeout for in-flight runs.
// A non-positive timeout waits indefinitely.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("scheduler: jobs still running after %s", timeout)
	}
}

// Snapshot returns per-job counters sorted by name.
func (s *Scheduler) Snapshot() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()
	if job.Immediate {
		s.runOnce(ctx, job)
	}
	ticker := time.NewTicker(job.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	runCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	started := s.now()
	err := job.Run(runCtx)
	took := time.Since(started)

	s.mu.Lock()
	st := s.status[job.Name]
	st.Runs++
	st.LastRunAt = started
	st.LastTookMS = took.Milliseconds()
	st.LastError = ""
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		logger.Warn("[Scheduler] Job %s failed: %v", job.Name, err)
	}
}

func (j Job) validate() error {
	switch {
	case j.Name == "":
		return errors.New("scheduler: job name is required")
	case j.Every <= 0:
		return fmt.Errorf("scheduler: job %s needs a positive interval", j.Name)
	case j.Run == nil:
		return fmt.Errorf("scheduler: job %s has no run function", j.Name)
	}
	return nil
}
