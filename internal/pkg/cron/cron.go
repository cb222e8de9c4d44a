package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	robfig "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobStatus represents the last known state of a job.
type JobStatus string

const (
	StatusIdle    JobStatus = "idle"
	StatusRunning JobStatus = "running"
	StatusFulfill JobStatus = "fulfill"
	StatusReject  JobStatus = "reject"
)

var ErrJobNotFound = errors.New("job not found")

// Standard 5-field expressions plus descriptors such as "@every 1m".
var specParser = robfig.NewParser(robfig.Minute | robfig.Hour | robfig.Dom | robfig.Month | robfig.Dow | robfig.Descriptor)

// ParseSpec validates a cron expression.
func ParseSpec(spec string) (robfig.Schedule, error) {
	sched, err := specParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return sched, nil
}

// Job defines a scheduled background task.
type Job struct {
	Name        string
	Description string
	Spec        string
	Fn          func(ctx context.Context) error
}

// JobState holds runtime state for a registered job.
type JobState struct {
	Job
	schedule  robfig.Schedule
	Status    JobStatus
	Message   string
	LastRunAt *time.Time
	NextRunAt time.Time
	mu        sync.Mutex
}

// ListItem is the serializable representation of a job for the API.
type ListItem struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Spec        string     `json:"spec"`
	Status      JobStatus  `json:"status"`
	Message     string     `json:"message,omitempty"`
	NextDate    *time.Time `json:"nextDate"`
	LastRunAt   *time.Time `json:"lastRunAt,omitempty"`
}

// Scheduler manages a collection of named cron jobs.
type Scheduler struct {
	mu     sync.RWMutex
	jobs   map[string]*JobState
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

// New creates an empty Scheduler evaluating specs in loc (time.Local when nil).
func New(loc *time.Location, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		jobs:   make(map[string]*JobState),
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}
}

// Register adds a job to the scheduler. Must be called before Start.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Fn == nil {
		return fmt.Errorf("cron job requires a name and a func")
	}
	sched, err := ParseSpec(job.Spec)
	if err != nil {
		return fmt.Errorf("register %s: %w", job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("cron job %q already registered", job.Name)
	}
	s.jobs[job.Name] = &JobState{
		Job:       job,
		schedule:  sched,
		Status:    StatusIdle,
		NextRunAt: sched.Next(s.now().In(s.loc)),
	}
	return nil
}

// Start launches all registered jobs in background goroutines.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, js := range s.jobs {
		go s.runLoop(ctx, js)
	}
}

func (s *Scheduler) runLoop(ctx context.Context, js *JobState) {
	for {
		js.mu.Lock()
		wait := js.NextRunAt.Sub(s.now())
		js.mu.Unlock()
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.execute(ctx, js)
			js.mu.Lock()
			js.NextRunAt = js.schedule.Next(s.now().In(s.loc))
			js.mu.Unlock()
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, js *JobState) {
	js.mu.Lock()
	if js.Status == StatusRunning {
		js.mu.Unlock()
		return
	}
	js.Status = StatusRunning
	js.mu.Unlock()

	started := s.now()
	err := js.Fn(ctx)

	js.mu.Lock()
	js.LastRunAt = &started
	if err != nil {
		js.Status = StatusReject
		js.Message = err.Error()
	} else {
		js.Status = StatusFulfill
		js.Message = ""
	}
	js.mu.Unlock()

	if err != nil {
		s.logger.Warn("cron job failed", zap.String("job", js.Name), zap.Error(err))
	} else {
		s.logger.Debug("cron job done", zap.String("job", js.Name), zap.Duration("took", s.now().Sub(started)))
	}
}

// Run manually triggers a job by name (non-blocking).
func (s *Scheduler) Run(ctx context.Context, name string) error {
	s.mu.RLock()
	js, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	go s.execute(ctx, js)
	return nil
}

// RunSync triggers a job and waits for it to finish.
func (s *Scheduler) RunSync(ctx context.Context, name string) (ListItem, error) {
	s.mu.RLock()
	js, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return ListItem{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	s.execute(ctx, js)
	return js.item(), nil
}

// Get returns the current state of one job.
func (s *Scheduler) Get(name string) (ListItem, error) {
	s.mu.RLock()
	js, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return ListItem{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return js.item(), nil
}

// List returns a summary of all registered jobs sorted by name.
func (s *Scheduler) List() []ListItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]ListItem, 0, len(s.jobs))
	for _, js := range s.jobs {
		items = append(items, js.item())
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

func (js *JobState) item() ListItem {
	js.mu.Lock()
	defer js.mu.Unlock()
	next := js.NextRunAt
	return ListItem{
		Name:        js.Name,
		Description: js.Description,
		Spec:        js.Spec,
		Status:      js.Status,
		Message:     js.Message,
		NextDate:    &next,
		LastRunAt:   js.LastRunAt,
	}
}
