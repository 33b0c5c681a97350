package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks.
type TaskFn func()

// TaskInfo describes a registered task.
type TaskInfo struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitempty"`
	Runs int64     `json:"runs"`
}

type task struct {
	id   cron.EntryID
	spec string
	runs atomic.Int64
}

// Scheduler runs named periodic tasks on a cron engine. A task that is still
// running when its next tick arrives skips that tick.
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	tasks    map[string]*task
	logger   *zap.Logger
	stopOnce sync.Once
}

// New creates and starts a Scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(zapCronLogger{logger.Sugar()})))
	c.Start()
	return &Scheduler{
		cron:   c,
		tasks:  make(map[string]*task),
		logger: logger,
	}
}

// AddCron registers fn under a cron spec ("*/5 * * * *", "@hourly",
// "@every 30s"). If a task with the same name exists, it is replaced.
func (s *Scheduler) AddCron(name, spec string, fn TaskFn) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("scheduler: task %q: %w", name, err)
	}
	s.add(name, spec, schedule, fn)
	return nil
}

// AddTicker registers fn to run every interval. Intervals below one second
// are rounded up to one second.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.add(name, "@every "+interval.String(), cron.Every(interval), fn)
}

func (s *Scheduler) add(name, spec string, schedule cron.Schedule, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tasks[name]; ok {
		s.cron.Remove(old.id)
		delete(s.tasks, name)
	}

	t := &task{spec: spec}
	t.id = s.cron.Schedule(schedule, cron.FuncJob(func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduler task panicked",
					zap.String("task", name),
					zap.Any("recover", r))
			}
		}()
		t.runs.Add(1)
		fn()
	}))
	s.tasks[name] = t
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.String("spec", spec))
}

// Remove unregisters a task by name. Unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[name]; ok {
		s.cron.Remove(t.id)
		delete(s.tasks, name)
	}
}

// Stop stops scheduling and waits for running tasks to return. It is safe to
// call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		<-s.cron.Stop().Done()
	})
}

// ListTasks returns all registered tasks sorted by name.
func (s *Scheduler) ListTasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for name, t := range s.tasks {
		e := s.cron.Entry(t.id)
		out = append(out, TaskInfo{
			Name: name,
			Spec: t.spec,
			Next: e.Next,
			Prev: e.Prev,
			Runs: t.runs.Load(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// zapCronLogger adapts zap to cron.Logger.
type zapCronLogger struct {
	s *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
