// Package jobmgr runs named long-lived jobs under a shared parent context
// and tracks which of them are still running.
//
// Typical usage:
//
//	jm := jobmgr.NewManager(ctx, jobmgr.LogReporter)
//
//	_ = jm.StartAsync("metrics", func(ctx context.Context) error {
//	    return serve(ctx)
//	})
//
//	err := jm.Wait() // first job error, if any
package jobmgr

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
)

// StatusReporter receives lifecycle events for jobs.
// Example messages:
//
//	running:discord
//	error:metrics:listen tcp :9090: bind: address already in use
//	done:discord
type StatusReporter func(string)

// LogReporter writes job events to the standard logger. Job failures are
// logged as errors when they happen, not when the manager is drained.
func LogReporter(msg string) {
	if strings.HasPrefix(msg, "error:") {
		log.Println("[ERR] job", msg)
		return
	}
	log.Println("[INFO] job", msg)
}

// Manager orchestrates starting and tracking jobs.
// It is safe for concurrent use.
type Manager struct {
	ctx      context.Context
	mu       sync.Mutex
	jobs     map[string]context.CancelFunc
	wg       sync.WaitGroup
	firstErr error
	Reporter StatusReporter
}

// NewManager creates a Manager whose jobs are cancelled with parent.
// The reporter callback may be nil.
func NewManager(parent context.Context, reporter StatusReporter) *Manager {
	return &Manager{
		ctx:      parent,
		jobs:     make(map[string]context.CancelFunc),
		Reporter: reporter,
	}
}

// StartAsync runs a job in a separate goroutine and returns immediately.
// If a job with the same name is already running, an error is returned.
// Jobs are removed automatically after completion.
func (m *Manager) StartAsync(name string, runner func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[name]; exists {
		return fmt.Errorf("job '%s' is already running", name)
	}

	ctx, cancel := context.WithCancel(m.ctx)
	m.jobs[name] = cancel
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		defer cancel()
		m.report("running:" + name)

		err := runner(ctx)
		if err != nil {
			m.report("error:" + name + ":" + err.Error())
		} else {
			m.report("done:" + name)
		}

		m.mu.Lock()
		delete(m.jobs, name)
		if err != nil && m.firstErr == nil {
			m.firstErr = fmt.Errorf("%s: %w", name, err)
		}
		m.mu.Unlock()
	}()
	return nil
}

// Wait blocks until every job has returned and reports the first error.
func (m *Manager) Wait() error {
	m.wg.Wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.firstErr
}

// List returns the names of active jobs, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Status returns a human-readable summary of active jobs.
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}

func (m *Manager) report(s string) {
	if m.Reporter != nil {
		m.Reporter(s)
	}
}
