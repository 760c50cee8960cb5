package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrTaskRunning       = errors.New("task is already running")
	ErrInvalidTaskConfig = errors.New("invalid task config")
)

// TaskFunc is the function signature for scheduled tasks.
type TaskFunc func(ctx context.Context) error

// TaskConfig contains configuration for a scheduled task. Exactly one of
// Cron or Interval must be set.
type TaskConfig struct {
	ID          string
	Name        string
	Description string
	Cron        string        // Cron expression: "0 0 * * *" for midnight daily
	Interval    time.Duration // Fixed period between runs
	Func        TaskFunc
	RunOnStart  bool // Execute immediately on startup
}

// TaskInfo contains information about a scheduled task for API responses.
type TaskInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Cron        string     `json:"cron,omitempty"`
	Interval    string     `json:"interval,omitempty"`
	LastRun     *time.Time `json:"lastRun,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	NextRun     *time.Time `json:"nextRun,omitempty"`
	Running     bool       `json:"running"`
}

// Broadcaster publishes task lifecycle events.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// taskEntry holds internal task state.
type taskEntry struct {
	config    TaskConfig
	job       gocron.Job
	lastRun   *time.Time
	lastError string
	running   bool
}

// Scheduler manages background scheduled tasks. Tasks receive a context that
// is cancelled when the scheduler stops.
type Scheduler struct {
	gocron gocron.Scheduler
	logger zerolog.Logger
	hub    Broadcaster
	tasks  map[string]*taskEntry
	mu     sync.RWMutex

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// New creates a new scheduler. hub may be nil.
func New(logger zerolog.Logger, hub Broadcaster) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		gocron: gs,
		logger: logger.With().Str("component", "scheduler").Logger(),
		hub:    hub,
		tasks:  make(map[string]*taskEntry),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// RegisterTask registers a new scheduled task.
func (s *Scheduler) RegisterTask(config TaskConfig) error {
	if config.ID == "" || config.Func == nil {
		return fmt.Errorf("%w: id and func are required", ErrInvalidTaskConfig)
	}
	if config.Name == "" {
		config.Name = config.ID
	}

	var definition gocron.JobDefinition
	switch {
	case config.Cron != "" && config.Interval > 0:
		return fmt.Errorf("%w: task %q sets both cron and interval", ErrInvalidTaskConfig, config.ID)
	case config.Cron != "":
		definition = gocron.CronJob(config.Cron, false)
	case config.Interval > 0:
		definition = gocron.DurationJob(config.Interval)
	default:
		return fmt.Errorf("%w: task %q needs a cron or an interval", ErrInvalidTaskConfig, config.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[config.ID]; exists {
		return fmt.Errorf("task with ID %q already registered", config.ID)
	}

	taskID := config.ID
	job, err := s.gocron.NewJob(
		definition,
		gocron.NewTask(func() {
			s.executeTask(taskID)
		}),
		gocron.WithName(config.Name),
		gocron.WithTags(config.ID),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create job for task %q: %w", config.ID, err)
	}

	s.tasks[config.ID] = &taskEntry{
		config: config,
		job:    job,
	}

	s.logger.Info().
		Str("id", config.ID).
		Str("name", config.Name).
		Str("cron", config.Cron).
		Dur("interval", config.Interval).
		Bool("runOnStart", config.RunOnStart).
		Msg("Registered task")

	return nil
}

// UnregisterTask removes a task. Removing an unknown task is not an error.
// A run already in progress is allowed to finish.
func (s *Scheduler) UnregisterTask(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.tasks[taskID]
	if !exists {
		return nil
	}

	if err := s.gocron.RemoveJob(entry.job.ID()); err != nil {
		return fmt.Errorf("failed to remove job for task %q: %w", taskID, err)
	}
	delete(s.tasks, taskID)

	s.logger.Info().Str("id", taskID).Msg("Unregistered task")
	return nil
}

// executeTask runs a task and updates its state. Overlapping runs of the
// same task are skipped.
func (s *Scheduler) executeTask(taskID string) {
	s.mu.Lock()
	entry, exists := s.tasks[taskID]
	if !exists || entry.running || s.stopped {
		s.mu.Unlock()
		return
	}
	entry.running = true
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	startTime := time.Now()
	s.logger.Info().
		Str("id", taskID).
		Str("name", entry.config.Name).
		Msg("Starting task")
	s.broadcast(EventTaskStarted, TaskEvent{ID: taskID, Name: entry.config.Name})

	err := s.run(entry.config.Func)

	s.mu.Lock()
	entry.running = false
	entry.lastRun = &startTime
	entry.lastError = ""
	if err != nil {
		entry.lastError = err.Error()
	}
	s.mu.Unlock()

	duration := time.Since(startTime)
	event := TaskEvent{ID: taskID, Name: entry.config.Name, DurationMs: int(duration.Milliseconds())}
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("id", taskID).
			Str("name", entry.config.Name).
			Dur("duration", duration).
			Msg("Task failed")
		event.Error = err.Error()
	} else {
		s.logger.Info().
			Str("id", taskID).
			Str("name", entry.config.Name).
			Dur("duration", duration).
			Msg("Task completed")
	}
	s.broadcast(EventTaskCompleted, event)
}

func (s *Scheduler) run(fn TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(s.ctx)
}

// Start starts the scheduler and runs any tasks configured with RunOnStart.
func (s *Scheduler) Start() error {
	s.logger.Info().Msg("Starting scheduler")

	s.gocron.Start()

	s.mu.RLock()
	tasksToRun := make([]string, 0)
	for id, entry := range s.tasks {
		if entry.config.RunOnStart {
			tasksToRun = append(tasksToRun, id)
		}
	}
	s.mu.RUnlock()

	for _, taskID := range tasksToRun {
		go s.executeTask(taskID)
	}

	return nil
}

// Stop cancels running tasks, waits for them to return and shuts gocron down.
func (s *Scheduler) Stop() error {
	s.logger.Info().Msg("Stopping scheduler")
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
	err := s.gocron.Shutdown()
	s.wg.Wait()
	return err
}

// RunNow manually triggers a task to run immediately.
func (s *Scheduler) RunNow(taskID string) error {
	s.mu.RLock()
	entry, exists := s.tasks[taskID]
	running := exists && entry.running
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %q", ErrTaskNotFound, taskID)
	}
	if running {
		return fmt.Errorf("%w: %q", ErrTaskRunning, taskID)
	}

	go s.executeTask(taskID)
	return nil
}

// ListTasks returns information about all registered tasks, sorted by ID.
func (s *Scheduler) ListTasks() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]TaskInfo, 0, len(s.tasks))
	for _, entry := range s.tasks {
		tasks = append(tasks, entry.info())
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

// GetTask returns information about a specific task.
func (s *Scheduler) GetTask(taskID string) (*TaskInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrTaskNotFound, taskID)
	}

	info := entry.info()
	return &info, nil
}

func (e *taskEntry) info() TaskInfo {
	info := TaskInfo{
		ID:          e.config.ID,
		Name:        e.config.Name,
		Description: e.config.Description,
		Cron:        e.config.Cron,
		LastRun:     e.lastRun,
		LastError:   e.lastError,
		Running:     e.running,
	}
	if e.config.Interval > 0 {
		info.Interval = e.config.Interval.String()
	}

	if nextRun, err := e.job.NextRun(); err == nil && !nextRun.IsZero() {
		info.NextRun = &nextRun
	}
	return info
}

func (s *Scheduler) broadcast(eventType string, payload interface{}) {
	if s.hub == nil {
		return
	}
	if err := s.hub.Broadcast(eventType, payload); err != nil {
		s.logger.Debug().Err(err).Str("event", eventType).Msg("failed to broadcast scheduler event")
	}
}
