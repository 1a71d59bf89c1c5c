// Package framework assembles the registry, event dispatcher, bundle table
// and component store into the running system: framework-level start/stop,
// bundle management wrappers, and the property store and metrics a host
// embeds it with.
package framework

import (
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/corvus-rt/corvus/bundle"
	"github.com/corvus-rt/corvus/component"
	"github.com/corvus-rt/corvus/corvuserr"
	"github.com/corvus-rt/corvus/event"
	"github.com/corvus-rt/corvus/registry"
)

// State enumerates the framework's own lifecycle position, mirrored onto
// the system bundle (id bundle.SystemBundleID).
type State int

const (
	StateStopped State = iota
	StateStarting
	StateActive
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateActive:
		return "ACTIVE"
	case StateStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// Framework owns every shared collaborator and exposes the whole-system
// lifecycle operations: Start, Stop, and WaitForStop.
type Framework struct {
	mu sync.Mutex

	logger     *zap.Logger
	dispatcher *event.Dispatcher
	reg        *registry.Registry
	table      *bundle.Table
	store      *component.Store
	props      *Properties
	metrics    *Metrics

	state  State
	stopCh chan struct{}

	contexts map[int64]*bundle.Context
}

// New assembles a Framework: loader resolves bundle locations, enumerator
// discovers factory declarations within a bundle's code unit, and cfg seeds
// the property store. A nil logger is replaced with a no-op logger.
func New(cfg *Config, loader bundle.CodeLoader, enumerator component.Enumerator, logger *zap.Logger) *Framework {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = &Config{}
	}

	f := &Framework{
		logger:   logger,
		props:    NewProperties(cfg.Properties, cfg.EnvNames),
		contexts: make(map[int64]*bundle.Context),
		state:    StateStopped,
	}

	f.dispatcher = event.New(logger)
	f.reg = registry.New(f.dispatcher)
	f.table = bundle.New(loader, f.reg, f.dispatcher, f.bundlesMayStart)

	codeUnits := func(id int64) (any, bool) {
		b, ok := f.table.Get(id)
		if !ok {
			return nil, false
		}
		return b.CodeUnit(), true
	}
	f.store = component.New(f.reg, f.dispatcher, enumerator, codeUnits, f.componentsMayValidate, logger)
	f.dispatcher.AddBundleListener(bundle.SystemBundleID, f.store)

	f.metrics = NewMetrics(f)

	symbolicName := cfg.SymbolicName
	if symbolicName == "" {
		symbolicName = "corvus.framework"
	}
	f.table.RegisterSystemBundle(symbolicName)

	return f
}

func (f *Framework) bundlesMayStart() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == StateStarting || f.state == StateActive
}

func (f *Framework) componentsMayValidate() bool {
	return f.bundlesMayStart()
}

// Metrics returns the framework's prometheus collector set.
func (f *Framework) Metrics() *Metrics { return f.metrics }

// Registry returns the shared service registry.
func (f *Framework) Registry() *registry.Registry { return f.reg }

// Dispatcher returns the shared event dispatcher.
func (f *Framework) Dispatcher() *event.Dispatcher { return f.dispatcher }

// ComponentStore returns the shared component container store.
func (f *Framework) ComponentStore() *component.Store { return f.store }

// State returns the framework's current lifecycle state.
func (f *Framework) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// GetProperty resolves a framework property.
func (f *Framework) GetProperty(name string) (string, bool) {
	return f.props.Get(name)
}

// contextFor returns the cached *bundle.Context for id, building one on
// first use.
func (f *Framework) contextFor(id int64) *bundle.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	ctx, ok := f.contexts[id]
	if !ok {
		ctx = bundle.NewContext(id, f.table, f.reg, f.dispatcher, f.props.Get)
		f.contexts[id] = ctx
	}
	return ctx
}

// InstallBundle installs location and returns the new bundle's id.
func (f *Framework) InstallBundle(location string) (int64, error) {
	b, err := f.table.Install(location)
	if err != nil {
		return 0, err
	}
	return b.ID(), nil
}

// BundleState returns the current lifecycle state of the bundle with id,
// including the system bundle (bundle.SystemBundleID), or false if no such
// bundle is installed.
func (f *Framework) BundleState(id int64) (bundle.State, bool) {
	b, ok := f.table.Get(id)
	if !ok {
		return 0, false
	}
	return b.State(), true
}

// StartBundle starts the bundle with id.
func (f *Framework) StartBundle(id int64) error {
	b, ok := f.table.Get(id)
	if !ok {
		return corvuserr.InvalidBundle(id)
	}
	f.metrics.bundleStarts.Inc()
	return f.table.Start(b, f.contextFor(id))
}

// StopBundle stops the bundle with id.
func (f *Framework) StopBundle(id int64) error {
	b, ok := f.table.Get(id)
	if !ok {
		return corvuserr.InvalidBundle(id)
	}
	err := f.table.Stop(b, f.contextFor(id))
	if err != nil {
		f.metrics.bundleStopFails.Inc()
	}
	return err
}

// UpdateBundle reloads the bundle with id.
func (f *Framework) UpdateBundle(id int64) error {
	b, ok := f.table.Get(id)
	if !ok {
		return corvuserr.InvalidBundle(id)
	}
	return f.table.Update(b, f.contextFor(id))
}

// UninstallBundle uninstalls the bundle with id.
func (f *Framework) UninstallBundle(id int64) error {
	b, ok := f.table.Get(id)
	if !ok {
		return corvuserr.InvalidBundle(id)
	}
	err := f.table.Uninstall(b, f.contextFor(id))
	f.mu.Lock()
	delete(f.contexts, id)
	f.mu.Unlock()
	return err
}

// Start transitions the framework from STOPPED through STARTING to ACTIVE:
// it marks every already-installed, non-system bundle startable, then
// starts each in install order, mirroring the system bundle (id 0) through
// the same STARTING/ACTIVE transitions via the bundle table so a bundle
// listener watching bundle 0 sees the framework's own lifecycle. A bundle
// that fails to start is logged and its error aggregated via multierr,
// rolling forward through the rest of the set rather than aborting at the
// first failure, since bundles have no static dependency order to roll back
// along — unless the activator raised a FrameworkError with Stop set, which
// aborts the remaining start loop immediately, unwinds every bundle that
// did start (in reverse), and settles the framework at STOPPED rather than
// completing the transition to ACTIVE.
func (f *Framework) Start() error {
	f.mu.Lock()
	if f.state != StateStopped {
		f.mu.Unlock()
		return nil
	}
	f.state = StateStarting
	f.stopCh = make(chan struct{})
	f.mu.Unlock()

	f.table.TransitionSystemBundle(bundle.Starting, event.Starting)

	var errs error
	var started []int64
	var abortErr error
	for _, id := range f.table.InstallOrder() {
		if id == bundle.SystemBundleID {
			continue
		}
		b, ok := f.table.Get(id)
		if !ok || b.State() != bundle.Resolved {
			continue
		}
		if err := f.StartBundle(id); err != nil {
			f.logger.Warn("bundle start failed", zap.Int64("bundle", id), zap.Error(err))
			errs = multierr.Append(errs, err)
			if corvuserr.IsStopRequest(err) {
				abortErr = err
				break
			}
			continue
		}
		started = append(started, id)
	}

	if abortErr != nil {
		f.logger.Error("activator requested framework stop during start; aborting transition to active", zap.Error(abortErr))
		return f.abortStart(started, errs)
	}

	f.mu.Lock()
	f.state = StateActive
	f.mu.Unlock()
	f.table.TransitionSystemBundle(bundle.Active, event.Started)
	return errs
}

// abortStart unwinds every bundle in started (reverse order) and settles the
// framework at STOPPED, for a Start call aborted by a Stop-flagged
// FrameworkError partway through.
func (f *Framework) abortStart(started []int64, errs error) error {
	f.table.TransitionSystemBundle(bundle.Stopping, event.Stopping)

	for i := len(started) - 1; i >= 0; i-- {
		id := started[i]
		if err := f.StopBundle(id); err != nil {
			f.logger.Warn("bundle stop failed during start abort", zap.Int64("bundle", id), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}

	f.table.TransitionSystemBundle(bundle.Stopped, event.Stopped)
	f.table.SettleSystemBundle(bundle.Resolved)

	f.mu.Lock()
	f.state = StateStopped
	stopCh := f.stopCh
	f.mu.Unlock()
	if stopCh != nil {
		close(stopCh)
	}
	return errs
}

// Stop transitions the framework from ACTIVE to STOPPED, mirroring the
// system bundle (id 0) through the matching STOPPING/STOPPED transitions:
// it notifies every framework-stop listener, then stops every active,
// non-system bundle in reverse install order, aggregating any activator
// error via multierr rather than aborting the unwind partway through.
// WaitForStop callers are released once every bundle has been attempted.
func (f *Framework) Stop() error {
	f.mu.Lock()
	if f.state != StateActive {
		f.mu.Unlock()
		return nil
	}
	f.state = StateStopping
	stopCh := f.stopCh
	f.mu.Unlock()

	f.table.TransitionSystemBundle(bundle.Stopping, event.Stopping)
	f.dispatcher.PublishFrameworkStop()

	order := f.table.InstallOrder()
	var errs error
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		if id == bundle.SystemBundleID {
			continue
		}
		b, ok := f.table.Get(id)
		if !ok || b.State() != bundle.Active {
			continue
		}
		if err := f.StopBundle(id); err != nil {
			f.logger.Warn("bundle stop failed", zap.Int64("bundle", id), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}

	f.table.TransitionSystemBundle(bundle.Stopped, event.Stopped)
	f.table.SettleSystemBundle(bundle.Resolved)

	f.mu.Lock()
	f.state = StateStopped
	f.mu.Unlock()
	if stopCh != nil {
		close(stopCh)
	}
	return errs
}

// WaitForStop blocks until the framework reaches STOPPED or timeout
// elapses, returning true if it stopped in time.
func (f *Framework) WaitForStop(timeout time.Duration) bool {
	f.mu.Lock()
	stopCh := f.stopCh
	state := f.state
	f.mu.Unlock()

	if state == StateStopped {
		return true
	}
	if stopCh == nil {
		return false
	}

	select {
	case <-stopCh:
		return true
	case <-time.After(timeout):
		return false
	}
}
