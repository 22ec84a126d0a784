package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"catchphish/internal/metrics"
	"catchphish/internal/models"
	"catchphish/internal/validation"
)

var (
	ErrMonitorNotFound = errors.New("monitor not found")
	ErrInvalidInterval = errors.New("invalid monitor interval")
	ErrRegistryClosed  = errors.New("monitor registry is shut down")
	ErrMonitorStopping = errors.New("monitor is still stopping")
)

// A stopping task stays registered until its goroutine exits, so no second
// monitor can run for the same domain in the meantime.
type task struct {
	monitor  *FeedMonitor
	cancel   context.CancelFunc
	done     chan struct{}
	stopping bool
}

// Registry owns the running monitors, at most one per protected domain.
type Registry struct {
	deps            MonitorDeps
	defaultInterval time.Duration
	minInterval     time.Duration

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
}

// NewRegistry creates an empty registry.
func NewRegistry(deps MonitorDeps, defaultInterval, minInterval time.Duration) *Registry {
	return &Registry{
		deps:            deps,
		defaultInterval: defaultInterval,
		minInterval:     minInterval,
		tasks:           make(map[string]*task),
	}
}

// ParseInterval parses a duration string. Empty selects the default.
func (r *Registry) ParseInterval(s string) (time.Duration, error) {
	if s == "" {
		return r.defaultInterval, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInterval, err)
	}
	return d, nil
}

// Start begins monitoring domain. If a monitor already runs for it, the
// existing monitor's status is returned and nothing is started.
func (r *Registry) Start(domain string, interval time.Duration, owner string) (models.StartMonitorResponse, error) {
	protected, err := validation.ExtractDomain(domain)
	if err != nil {
		return models.StartMonitorResponse{}, err
	}
	if interval == 0 {
		interval = r.defaultInterval
	}
	if interval < r.minInterval {
		return models.StartMonitorResponse{}, fmt.Errorf("%w: %v is below the minimum of %v", ErrInvalidInterval, interval, r.minInterval)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return models.StartMonitorResponse{}, ErrRegistryClosed
	}
	if t, ok := r.tasks[protected]; ok {
		if t.stopping {
			return models.StartMonitorResponse{}, ErrMonitorStopping
		}
		return models.StartMonitorResponse{AlreadyRunning: true, Status: t.monitor.Status()}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		monitor: NewFeedMonitor(protected, owner, interval, r.deps),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	r.tasks[protected] = t
	r.updateActiveLocked()

	go func() {
		defer close(t.done)
		t.monitor.Start(ctx)

		r.mu.Lock()
		if r.tasks[protected] == t {
			delete(r.tasks, protected)
			r.updateActiveLocked()
		}
		r.mu.Unlock()
	}()

	return models.StartMonitorResponse{Started: true, Status: t.monitor.Status()}, nil
}

// Stop cancels the monitor for domain and waits until its in-flight report,
// if any, has finished or ctx expires. The domain cannot be monitored again
// until the old task has exited. Stopping a task that is already stopping
// waits for it again.
func (r *Registry) Stop(ctx context.Context, domain string) (models.MonitorStatus, error) {
	protected, ok := validation.NormalizeDomain(domain)
	if !ok {
		return models.MonitorStatus{}, ErrMonitorNotFound
	}

	r.mu.Lock()
	t, ok := r.tasks[protected]
	if ok && !t.stopping {
		t.stopping = true
		r.updateActiveLocked()
	}
	r.mu.Unlock()

	if !ok {
		return models.MonitorStatus{}, ErrMonitorNotFound
	}

	t.cancel()
	select {
	case <-t.done:
	case <-ctx.Done():
		return t.monitor.Status(), ctx.Err()
	}
	return t.monitor.Status(), nil
}

// Get returns the status of the monitor for domain.
func (r *Registry) Get(domain string) (models.MonitorStatus, bool) {
	protected, ok := validation.NormalizeDomain(domain)
	if !ok {
		return models.MonitorStatus{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[protected]
	if !ok || t.stopping {
		return models.MonitorStatus{}, false
	}
	return t.monitor.Status(), true
}

// List returns the status of every running monitor, ordered by domain.
func (r *Registry) List() []models.MonitorStatus {
	r.mu.Lock()
	out := make([]models.MonitorStatus, 0, len(r.tasks))
	for _, t := range r.tasks {
		if !t.stopping {
			out = append(out, t.monitor.Status())
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ProtectedDomain < out[j].ProtectedDomain })
	return out
}

// Shutdown stops every monitor and refuses new ones. It waits for all of
// them to exit or for ctx to expire.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	tasks := make([]*task, 0, len(r.tasks))
	for d, t := range r.tasks {
		tasks = append(tasks, t)
		delete(r.tasks, d)
	}
	metrics.ActiveMonitors.Set(0)
	r.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		select {
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// updateActiveLocked publishes the number of monitors that are not stopping.
// r.mu must be held.
func (r *Registry) updateActiveLocked() {
	n := 0
	for _, t := range r.tasks {
		if !t.stopping {
			n++
		}
	}
	metrics.ActiveMonitors.Set(float64(n))
}
