// Package monitor is the consumer side of the state channel. A Manager
// watches the state and results directories written by the benchmark
// process, reconstructs typed state from the JSON documents and notifies
// registered callbacks when values actually change.
package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/benchtools/benchwatch/internal/dataset"
	"github.com/benchtools/benchwatch/internal/metrics"
	"github.com/benchtools/benchwatch/internal/statefile"
	"github.com/benchtools/benchwatch/pkg/models"
)

// Kind identifies one observable state document
type Kind string

const (
	KindRunState      Kind = "run_state"
	KindLauncherState Kind = "launcher_state"
	KindCheckpoint    Kind = "checkpoint"
	KindResults       Kind = "results"
)

var allKinds = []Kind{KindRunState, KindLauncherState, KindCheckpoint, KindResults}

// Options tunes the manager. Zero values fall back to defaults.
type Options struct {
	PollInterval            time.Duration // default 500ms
	ReadRetryAttempts       int           // default 3
	ReadRetryBackoff        time.Duration // default 50ms
	ResultsReloadsPerSecond float64       // default 2
}

func (o *Options) applyDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.ReadRetryAttempts <= 0 {
		o.ReadRetryAttempts = 3
	}
	if o.ReadRetryBackoff <= 0 {
		o.ReadRetryBackoff = 50 * time.Millisecond
	}
	if o.ResultsReloadsPerSecond <= 0 {
		o.ResultsReloadsPerSecond = 2
	}
}

// Manager observes the filesystem channel. Filesystem notifications are
// the primary change source and an unconditional poll tick is the
// fallback; both feed one reconciliation goroutine, so diff-and-dispatch
// for a given kind is never run concurrently and callbacks always see
// values in write order. Reconciling deduplicates by comparing parsed
// values, so at-least-once delivery from either source never produces
// duplicate callbacks.
type Manager struct {
	paths  statefile.Paths
	index  *dataset.Index
	logger *slog.Logger
	opts   Options

	watcher        *fsnotify.Watcher
	requests       chan Kind
	resultsLimiter *rate.Limiter

	cbMu                sync.Mutex
	runCallbacks        []func(models.RunState)
	launcherCallbacks   []func(models.LauncherState)
	checkpointCallbacks []func(models.Checkpoint)
	resultsCallbacks    []func([]models.CompletedRunSummary)
	errorCallbacks      []func(Kind, error)

	cacheMu       sync.RWMutex
	runState      *models.RunState
	launcherState *models.LauncherState
	checkpoint    *models.Checkpoint
	results       []models.CompletedRunSummary
	haveResults   bool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a manager rooted at base. The dataset index is used to
// classify results for scoring and must already be loadable; summaries
// are wrong without it.
func New(base string, index *dataset.Index, opts Options, logger *slog.Logger) (*Manager, error) {
	opts.applyDefaults()

	paths := statefile.Paths{Base: base}
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}

	return &Manager{
		paths:          paths,
		index:          index,
		logger:         logger,
		opts:           opts,
		requests:       make(chan Kind, 16),
		resultsLimiter: rate.NewLimiter(rate.Limit(opts.ResultsReloadsPerSecond), 1),
		done:           make(chan struct{}),
	}, nil
}

// Start installs the filesystem watch and begins the reconciliation loop.
// A watch-registration failure is not fatal: the manager degrades to the
// polling fallback alone.
func (m *Manager) Start() error {
	watcher, err := newStateWatcher(m.paths)
	if err != nil {
		m.logger.Warn("Filesystem notifications unavailable, relying on polling only", "error", err)
		watcher = nil
	}
	m.watcher = watcher

	m.wg.Add(1)
	go m.loop()
	return nil
}

// Stop tears down the watch and the poll loop. Idempotent; no background
// activity remains after it returns.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
		if m.watcher != nil {
			m.watcher.Close()
		}
	})
}

// PollNow requests an immediate reconciliation of every state kind.
// Non-blocking; requests collapse into the pending queue.
func (m *Manager) PollNow() {
	for _, k := range allKinds {
		select {
		case m.requests <- k:
		default:
		}
	}
}

// OnRunStateChange registers a callback for run state changes. Callbacks
// run on the reconciliation goroutine in registration order and must
// treat the value as an immutable snapshot.
func (m *Manager) OnRunStateChange(cb func(models.RunState)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.runCallbacks = append(m.runCallbacks, cb)
}

// OnLauncherStateChange registers a callback for launcher state changes
func (m *Manager) OnLauncherStateChange(cb func(models.LauncherState)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.launcherCallbacks = append(m.launcherCallbacks, cb)
}

// OnCheckpointChange registers a callback for checkpoint changes
func (m *Manager) OnCheckpointChange(cb func(models.Checkpoint)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.checkpointCallbacks = append(m.checkpointCallbacks, cb)
}

// OnResultsChange registers a callback receiving the full summary list
// whenever the results directory's contents change.
func (m *Manager) OnResultsChange(cb func([]models.CompletedRunSummary)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.resultsCallbacks = append(m.resultsCallbacks, cb)
}

// OnError registers a callback for malformed documents and read failures.
// The data callbacks keep delivering the last-known-good value.
func (m *Manager) OnError(cb func(Kind, error)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.errorCallbacks = append(m.errorCallbacks, cb)
}

// RunState returns the cached run state, if any
func (m *Manager) RunState() (models.RunState, bool) {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()
	if m.runState == nil {
		return models.RunState{}, false
	}
	return *m.runState, true
}

// LauncherState returns the cached launcher state, if any
func (m *Manager) LauncherState() (models.LauncherState, bool) {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()
	if m.launcherState == nil {
		return models.LauncherState{}, false
	}
	return *m.launcherState, true
}

// Checkpoint returns the cached checkpoint, if any
func (m *Manager) Checkpoint() (models.Checkpoint, bool) {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()
	if m.checkpoint == nil {
		return models.Checkpoint{}, false
	}
	return *m.checkpoint, true
}

// HasCheckpoint reports whether a checkpoint has been observed
func (m *Manager) HasCheckpoint() bool {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()
	return m.checkpoint != nil
}

// ClearCheckpoint removes the checkpoint file and forgets the cached
// value, so a resume prompt does not reappear after being declined.
func (m *Manager) ClearCheckpoint() error {
	if err := os.Remove(m.paths.Checkpoint()); err != nil && !os.IsNotExist(err) {
		return err
	}
	m.cacheMu.Lock()
	m.checkpoint = nil
	m.cacheMu.Unlock()
	return nil
}

// Results returns a copy of the cached summary list
func (m *Manager) Results() []models.CompletedRunSummary {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()
	return append([]models.CompletedRunSummary{}, m.results...)
}

// loop is the single reconciliation path. Watch events, poll ticks and
// manual requests all land here, which serializes every cache mutation
// and callback dispatch.
func (m *Manager) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	var events chan fsnotify.Event
	var errs chan error
	if m.watcher != nil {
		events = m.watcher.Events
		errs = m.watcher.Errors
	}

	// Pick up whatever state already exists before the first event.
	m.reconcileAll()

	for {
		select {
		case <-m.done:
			return

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if kind, ok := routeEvent(m.paths, ev); ok {
				metrics.RecordWatchEvent(string(kind))
				m.reconcile(kind)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			m.logger.Warn("Filesystem watch error", "error", err)

		case <-ticker.C:
			m.reconcileAll()

		case kind := <-m.requests:
			m.reconcile(kind)
		}
	}
}

func (m *Manager) reconcileAll() {
	for _, k := range allKinds {
		m.reconcile(k)
	}
}

func (m *Manager) reconcile(kind Kind) {
	switch kind {
	case KindRunState:
		m.reconcileRunState()
	case KindLauncherState:
		m.reconcileLauncherState()
	case KindCheckpoint:
		m.reconcileCheckpoint()
	case KindResults:
		m.reconcileResults()
	}
}

func (m *Manager) reconcileRunState() {
	var st models.RunState
	if !m.readState(KindRunState, m.paths.RunState(), &st) {
		return
	}
	if err := st.Validate(); err != nil {
		m.reportInvalid(KindRunState, err)
		return
	}

	m.cacheMu.Lock()
	changed := m.runState == nil || !reflect.DeepEqual(*m.runState, st)
	if changed {
		snapshot := st
		m.runState = &snapshot
	}
	m.cacheMu.Unlock()

	if !changed {
		metrics.RecordReconcile(string(KindRunState), "unchanged")
		return
	}
	metrics.RecordReconcile(string(KindRunState), "changed")

	m.cbMu.Lock()
	callbacks := append([]func(models.RunState){}, m.runCallbacks...)
	m.cbMu.Unlock()
	for _, cb := range callbacks {
		cb(st)
	}
	metrics.RecordDispatch(string(KindRunState), len(callbacks))
}

func (m *Manager) reconcileLauncherState() {
	var st models.LauncherState
	if !m.readState(KindLauncherState, m.paths.LauncherState(), &st) {
		return
	}
	if err := st.Validate(); err != nil {
		m.reportInvalid(KindLauncherState, err)
		return
	}

	m.cacheMu.Lock()
	changed := m.launcherState == nil || !reflect.DeepEqual(*m.launcherState, st)
	if changed {
		snapshot := st
		m.launcherState = &snapshot
	}
	m.cacheMu.Unlock()

	if !changed {
		metrics.RecordReconcile(string(KindLauncherState), "unchanged")
		return
	}
	metrics.RecordReconcile(string(KindLauncherState), "changed")

	m.cbMu.Lock()
	callbacks := append([]func(models.LauncherState){}, m.launcherCallbacks...)
	m.cbMu.Unlock()
	for _, cb := range callbacks {
		cb(st)
	}
	metrics.RecordDispatch(string(KindLauncherState), len(callbacks))
}

func (m *Manager) reconcileCheckpoint() {
	var cp models.Checkpoint
	if !m.readState(KindCheckpoint, m.paths.Checkpoint(), &cp) {
		return
	}
	if err := cp.Validate(); err != nil {
		m.reportInvalid(KindCheckpoint, err)
		return
	}

	m.cacheMu.Lock()
	changed := m.checkpoint == nil || !reflect.DeepEqual(*m.checkpoint, cp)
	if changed {
		snapshot := cp
		m.checkpoint = &snapshot
	}
	m.cacheMu.Unlock()

	if !changed {
		metrics.RecordReconcile(string(KindCheckpoint), "unchanged")
		return
	}
	metrics.RecordReconcile(string(KindCheckpoint), "changed")

	m.cbMu.Lock()
	callbacks := append([]func(models.Checkpoint){}, m.checkpointCallbacks...)
	m.cbMu.Unlock()
	for _, cb := range callbacks {
		cb(cp)
	}
	metrics.RecordDispatch(string(KindCheckpoint), len(callbacks))
}

func (m *Manager) reconcileResults() {
	// Rescans are the expensive reconcile path; the limiter keeps a burst
	// of watch events from turning into a burst of directory walks. The
	// next poll tick retries anything skipped here.
	if !m.resultsLimiter.Allow() {
		return
	}

	start := time.Now()
	summaries, err := LoadSummaries(m.paths.ResultsDir(), m.index, m.logger)
	metrics.RecordResultsLoad(time.Since(start))
	if err != nil {
		metrics.RecordReconcile(string(KindResults), "error")
		m.dispatchError(KindResults, err)
		return
	}

	m.cacheMu.Lock()
	changed := !m.haveResults || !reflect.DeepEqual(m.results, summaries)
	if changed {
		m.results = summaries
		m.haveResults = true
	}
	m.cacheMu.Unlock()

	if !changed {
		metrics.RecordReconcile(string(KindResults), "unchanged")
		return
	}
	metrics.RecordReconcile(string(KindResults), "changed")

	m.cbMu.Lock()
	callbacks := append([]func([]models.CompletedRunSummary){}, m.resultsCallbacks...)
	m.cbMu.Unlock()
	for _, cb := range callbacks {
		cb(append([]models.CompletedRunSummary{}, summaries...))
	}
	metrics.RecordDispatch(string(KindResults), len(callbacks))
}

// readState reads one state document with bounded retries. Returns false
// when there is nothing new to process: the file does not exist yet, or
// it could not be read or parsed (in which case the error callbacks fire
// and the last-known-good cache entry survives).
func (m *Manager) readState(kind Kind, path string, v any) bool {
	err := statefile.ReadJSONRetry(path, v, m.opts.ReadRetryAttempts, m.opts.ReadRetryBackoff)
	if err == nil {
		return true
	}
	if os.IsNotExist(err) {
		metrics.RecordReconcile(string(kind), "unchanged")
		return false
	}
	metrics.RecordReconcile(string(kind), "error")
	m.dispatchError(kind, err)
	return false
}

func (m *Manager) reportInvalid(kind Kind, err error) {
	metrics.RecordReconcile(string(kind), "error")
	m.dispatchError(kind, fmt.Errorf("invalid %s document: %w", kind, err))
}

func (m *Manager) dispatchError(kind Kind, err error) {
	m.logger.Warn("State document rejected", "kind", string(kind), "error", err)

	m.cbMu.Lock()
	callbacks := append([]func(Kind, error){}, m.errorCallbacks...)
	m.cbMu.Unlock()
	for _, cb := range callbacks {
		cb(kind, err)
	}
}
