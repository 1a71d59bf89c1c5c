package bundle

import (
	"sync"

	"github.com/corvus-rt/corvus/corvuserr"
	"github.com/corvus-rt/corvus/event"
	"github.com/corvus-rt/corvus/registry"
)

// SystemBundleID is the framework's own bundle id; it is never a real
// CodeLoader-backed entry in the table and refuses uninstall.
const SystemBundleID int64 = 0

// RunningCheck reports whether the owning framework is in a state that
// permits bundle start (STARTING or ACTIVE). Table has no notion of
// framework state itself — it asks back through this hook, which the
// framework wires to its own state on construction, the same "ids into
// central tables, resolved by the owner" shape DESIGN.md documents for every
// cross-package handle in this module.
type RunningCheck func() bool

// Table owns every installed bundle and its lifecycle transitions. Ids are
// assigned starting at 1; id 0 is reserved for the system bundle, whose
// Bundle value the framework installs directly via RegisterSystemBundle.
//
// The install-order slice keeps a plain `order []int64` alongside the node
// map purely for FIFO iteration — bundles have no static dependency graph
// to topologically sort, only an install order to preserve and reverse on
// stop.
type Table struct {
	mu sync.Mutex

	loader     CodeLoader
	reg        *registry.Registry
	dispatcher *event.Dispatcher
	running    RunningCheck

	nextID  int64
	bundles map[int64]*Bundle
	order   []int64
}

// New creates an empty table backed by loader, reg, and dispatcher.
func New(loader CodeLoader, reg *registry.Registry, dispatcher *event.Dispatcher, running RunningCheck) *Table {
	return &Table{
		loader:     loader,
		reg:        reg,
		dispatcher: dispatcher,
		running:    running,
		bundles:    make(map[int64]*Bundle),
	}
}

// RegisterSystemBundle installs the framework's own entry at id 0 without
// calling the loader, so Get(0) and InstallOrder reflect it like any other
// bundle while Uninstall(0) still refuses.
func (t *Table) RegisterSystemBundle(symbolicName string) *Bundle {
	sys := &Bundle{id: SystemBundleID, symbolicName: symbolicName, state: Resolved}
	t.mu.Lock()
	t.bundles[SystemBundleID] = sys
	t.order = append(t.order, SystemBundleID)
	t.mu.Unlock()
	return sys
}

// TransitionSystemBundle moves the system bundle (id 0) to s and publishes
// the matching BundleEvent, so Framework.Start/Stop drive bundle 0 through
// the same state machine every other bundle uses instead of leaving it
// parked at RESOLVED for its whole life.
func (t *Table) TransitionSystemBundle(s State, kind event.BundleEventKind) {
	b, ok := t.Get(SystemBundleID)
	if !ok {
		return
	}
	b.setState(s)
	t.dispatcher.PublishBundleEvent(event.BundleEvent{Kind: kind, BundleID: SystemBundleID, SymbolicName: b.symbolicName})
}

// SettleSystemBundle sets the system bundle's state to s without publishing
// an event, mirroring the silent STOPPED->RESOLVED settle Stop performs
// once every bundle listener has already observed the STOPPED transition.
func (t *Table) SettleSystemBundle(s State) {
	b, ok := t.Get(SystemBundleID)
	if !ok {
		return
	}
	b.setState(s)
}

// Get returns the bundle with id, or false if none is installed.
func (t *Table) Get(id int64) (*Bundle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.bundles[id]
	return b, ok
}

// FindBySymbolicName returns the installed bundle with that symbolic name.
func (t *Table) FindBySymbolicName(name string) (*Bundle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, b := range t.bundles {
		if b.symbolicName == name {
			return b, true
		}
	}
	return nil, false
}

// All returns every installed bundle in install order.
func (t *Table) All() []*Bundle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Bundle, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.bundles[id])
	}
	return out
}

// InstallOrder returns installed bundle ids oldest-first.
func (t *Table) InstallOrder() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int64(nil), t.order...)
}

// Install resolves location through the CodeLoader and records a new
// RESOLVED bundle. Fails if a bundle with the same symbolic name already
// exists, or if the loader refuses the location.
func (t *Table) Install(location string) (*Bundle, error) {
	codeUnit, name, version, activator, err := t.loader.Load(location)
	if err != nil {
		return nil, corvuserr.LoadFailed(location, err)
	}

	t.mu.Lock()
	for _, b := range t.bundles {
		if b.symbolicName == name {
			t.mu.Unlock()
			return nil, corvuserr.New(corvuserr.CodeInvalidBundle, "a bundle named "+name+" is already installed", nil)
		}
	}
	t.nextID++
	id := t.nextID
	b := &Bundle{
		id:           id,
		location:     location,
		symbolicName: name,
		version:      version,
		codeUnit:     codeUnit,
		activator:    activator,
		state:        Installed,
	}
	t.bundles[id] = b
	t.order = append(t.order, id)
	t.mu.Unlock()

	b.setState(Resolved)
	t.dispatcher.PublishBundleEvent(event.BundleEvent{Kind: event.Installed, BundleID: id, SymbolicName: name})
	return b, nil
}

// Start transitions b from RESOLVED to ACTIVE, running its activator. A
// bundle already ACTIVE or STARTING is a no-op success. On activator
// failure, state rolls back to RESOLVED, every service b registered is
// unregistered, and the error is returned.
func (t *Table) Start(b *Bundle, ctx *Context) error {
	if !t.running() {
		return corvuserr.FrameworkNotRunning()
	}

	b.mu.Lock()
	switch b.state {
	case Active, Starting:
		b.mu.Unlock()
		return nil
	case Resolved:
	default:
		b.mu.Unlock()
		return corvuserr.InvalidBundle(b.id)
	}
	b.state = Starting
	b.mu.Unlock()

	t.dispatcher.PublishBundleEvent(event.BundleEvent{Kind: event.Starting, BundleID: b.id, SymbolicName: b.symbolicName})

	if b.activator != nil {
		if err := b.activator.Start(ctx); err != nil {
			b.setState(Resolved)
			t.reg.ReleaseBundle(b.id)
			return err
		}
	}

	b.setState(Active)
	t.dispatcher.PublishBundleEvent(event.BundleEvent{Kind: event.Started, BundleID: b.id, SymbolicName: b.symbolicName})
	return nil
}

// Stop transitions b from ACTIVE back to RESOLVED. An activator error is
// remembered and re-raised after cleanup runs to completion, never skipping
// it.
func (t *Table) Stop(b *Bundle, ctx *Context) error {
	b.mu.Lock()
	if b.state != Active {
		b.mu.Unlock()
		return nil
	}
	b.state = Stopping
	b.mu.Unlock()

	t.dispatcher.PublishBundleEvent(event.BundleEvent{Kind: event.Stopping, BundleID: b.id, SymbolicName: b.symbolicName})

	var activatorErr error
	if b.activator != nil {
		activatorErr = b.activator.Stop(ctx)
	}

	t.dispatcher.PublishBundleEvent(event.BundleEvent{Kind: event.StoppingPreclean, BundleID: b.id, SymbolicName: b.symbolicName})

	t.reg.ReleaseBundle(b.id)
	t.dispatcher.RemoveListenersForBundle(b.id)

	b.setState(Stopped)
	t.dispatcher.PublishBundleEvent(event.BundleEvent{Kind: event.Stopped, BundleID: b.id, SymbolicName: b.symbolicName})
	b.setState(Resolved)

	return activatorErr
}

// Update is stop (if active) + reload code via the CodeLoader + start (if
// previously active).
func (t *Table) Update(b *Bundle, ctx *Context) error {
	wasActive := b.State() == Active
	if wasActive {
		if err := t.Stop(b, ctx); err != nil {
			return err
		}
	}

	newUnit, err := t.loader.Reload(b.codeUnit)
	if err != nil {
		return corvuserr.LoadFailed(b.location, err)
	}
	b.mu.Lock()
	b.codeUnit = newUnit
	b.mu.Unlock()

	t.dispatcher.PublishBundleEvent(event.BundleEvent{Kind: event.Updated, BundleID: b.id, SymbolicName: b.symbolicName})

	if wasActive {
		return t.Start(b, ctx)
	}
	return nil
}

// Uninstall stops b if active, then removes it from the table. The system
// bundle refuses uninstall.
func (t *Table) Uninstall(b *Bundle, ctx *Context) error {
	if b.id == SystemBundleID {
		return corvuserr.ErrSystemBundleUninstall
	}

	if b.State() == Active {
		if err := t.Stop(b, ctx); err != nil {
			return err
		}
	}

	t.mu.Lock()
	delete(t.bundles, b.id)
	for i, id := range t.order {
		if id == b.id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.mu.Unlock()

	b.setState(Uninstalled)
	t.dispatcher.PublishBundleEvent(event.BundleEvent{Kind: event.Uninstalled, BundleID: b.id, SymbolicName: b.symbolicName})
	return nil
}
