// Package scheduler runs evaluation passes on fixed intervals.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/eleven-am/warden/internal/logging"
)

// TaskFunc receives a context cancelled when the scheduler stops or the
// task's timeout expires.
type TaskFunc func(ctx context.Context) error

type Task struct {
	Name       string
	Interval   time.Duration
	Timeout    time.Duration
	RunOnStart bool
	Func       TaskFunc
}

type TaskStatus struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	LastRun      time.Time     `json:"lastRun,omitempty"`
	LastDuration time.Duration `json:"lastDuration,omitempty"`
	LastError    string        `json:"lastError,omitempty"`
	RunCount     int64         `json:"runCount"`
	ErrorCount   int64         `json:"errorCount"`
	SkipCount    int64         `json:"skipCount"`
}

type taskEntry struct {
	task    Task
	status  TaskStatus
	running bool
}

// Scheduler runs each task on its own ticker. A tick that arrives while the
// previous run of the same task is still going is skipped.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*taskEntry
	logger  log.FieldLogger
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

func New(logger log.FieldLogger) *Scheduler {
	return &Scheduler{
		tasks:  make(map[string]*taskEntry),
		logger: logging.OrDefault(logger, "scheduler"),
	}
}

func (s *Scheduler) AddTask(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if task.Interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", task.Name)
	}
	if task.Func == nil {
		return fmt.Errorf("task %s: function is required", task.Name)
	}
	if _, exists := s.tasks[task.Name]; exists {
		return fmt.Errorf("task %s already exists", task.Name)
	}
	if s.running {
		return fmt.Errorf("task %s: scheduler already started", task.Name)
	}

	s.tasks[task.Name] = &taskEntry{
		task:   task,
		status: TaskStatus{Name: task.Name, Interval: task.Interval},
	}
	s.logger.WithFields(log.Fields{"task": task.Name, "interval": task.Interval}).Info("task added")
	return nil
}

// Start launches every task. The scheduler stops when ctx is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	for _, entry := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, entry)
	}
	s.logger.WithField("tasks", len(s.tasks)).Info("scheduler started")
}

// Stop cancels running tasks and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]TaskStatus, 0, len(s.tasks))
	for _, entry := range s.tasks {
		statuses = append(statuses, entry.status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})
	return statuses
}

func (s *Scheduler) loop(ctx context.Context, entry *taskEntry) {
	defer s.wg.Done()

	var runs sync.WaitGroup
	defer runs.Wait()

	trigger := func() {
		if !s.claim(entry) {
			return
		}
		runs.Add(1)
		go func() {
			defer runs.Done()
			s.execute(ctx, entry)
		}()
	}

	if entry.task.RunOnStart {
		trigger()
	}

	ticker := time.NewTicker(entry.task.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			trigger()
		}
	}
}

func (s *Scheduler) claim(entry *taskEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.running {
		entry.status.SkipCount++
		s.logger.WithField("task", entry.task.Name).Warn("previous run still in progress, skipping tick")
		return false
	}
	entry.running = true
	return true
}

func (s *Scheduler) execute(ctx context.Context, entry *taskEntry) {
	task := entry.task
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := task.Func(ctx)
	elapsed := time.Since(start)

	s.mu.Lock()
	entry.running = false
	entry.status.LastRun = start
	entry.status.LastDuration = elapsed
	entry.status.RunCount++
	if err != nil {
		entry.status.ErrorCount++
		entry.status.LastError = err.Error()
	} else {
		entry.status.LastError = ""
	}
	s.mu.Unlock()

	logger := s.logger.WithFields(log.Fields{"task": task.Name, "elapsed": elapsed.String()})
	if err != nil {
		logger.WithError(err).Warn("task failed")
		return
	}
	logger.Debug("task finished")
}
