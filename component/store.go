package component

import (
	"sync"

	"go.uber.org/zap"

	"github.com/corvus-rt/corvus/corvuserr"
	"github.com/corvus-rt/corvus/event"
	"github.com/corvus-rt/corvus/registry"
)

// RunningCheck reports whether the owning framework is active enough for
// components to validate, wired by the framework to its own state exactly
// like bundle.RunningCheck.
type RunningCheck func() bool

type factoryEntry struct {
	decl  FactoryDeclaration
	owner int64 // bundle id the factory was registered from
}

// Store reacts to bundle STARTING/STOPPING_PRECLEAN events, registering and
// tearing down factories and their auto-instances, and owns every live
// component instance. It implements event.BundleListener.
type Store struct {
	mu sync.Mutex

	reg        *registry.Registry
	disp       *event.Dispatcher
	logger     *zap.Logger
	enumerator Enumerator
	codeUnit   CodeUnitProvider
	running    RunningCheck

	factories map[string]*factoryEntry
	instances map[string]*Instance
	listeners []Listener
}

// New creates a Store that enumerates factory declarations through enum and
// resolves bundle code units through units.
func New(reg *registry.Registry, disp *event.Dispatcher, enum Enumerator, units CodeUnitProvider, running RunningCheck, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		reg:        reg,
		disp:       disp,
		logger:     logger,
		enumerator: enum,
		codeUnit:   units,
		running:    running,
		factories:  make(map[string]*factoryEntry),
		instances:  make(map[string]*Instance),
	}
}

// HandleBundleEvent implements event.BundleListener: on STARTING it
// enumerates and registers the bundle's factories (and their inline
// auto-instances); on STOPPING_PRECLEAN it kills every instance the bundle's
// factories own and unregisters those factories.
func (s *Store) HandleBundleEvent(evt event.BundleEvent) {
	switch evt.Kind {
	case event.Starting:
		s.onBundleStarting(evt.BundleID)
	case event.StoppingPreclean:
		s.onBundleStoppingPreclean(evt.BundleID)
	}
}

func (s *Store) onBundleStarting(bundleID int64) {
	unit, ok := s.codeUnit(bundleID)
	if !ok {
		return
	}
	decls, err := s.enumerator.Enumerate(unit)
	if err != nil {
		s.logger.Warn("factory enumeration failed", zap.Int64("bundle", bundleID), zap.Error(err))
		return
	}
	for _, decl := range decls {
		if err := s.RegisterFactory(bundleID, decl); err != nil {
			s.logger.Warn("factory registration failed", zap.String("factory", decl.Name), zap.Error(err))
			continue
		}
		for _, auto := range decl.AutoInstances {
			if _, err := s.Instantiate(decl.Name, auto.Name, auto.Properties); err != nil {
				s.logger.Warn("auto-instance failed", zap.String("instance", auto.Name), zap.Error(err))
			}
		}
	}
}

func (s *Store) onBundleStoppingPreclean(bundleID int64) {
	s.mu.Lock()
	var toKill []*Instance
	for _, inst := range s.instances {
		if inst.owner == bundleID {
			toKill = append(toKill, inst)
		}
	}
	var toRemove []string
	for name, fe := range s.factories {
		if fe.owner == bundleID {
			toRemove = append(toRemove, name)
		}
	}
	s.mu.Unlock()

	for _, inst := range toKill {
		inst.Kill()
		s.mu.Lock()
		delete(s.instances, inst.name)
		s.mu.Unlock()
	}
	for _, name := range toRemove {
		_ = s.UnregisterFactory(name)
	}
}

// RegisterFactory records decl on behalf of owner. Fails with
// duplicate-factory if the name is already registered.
func (s *Store) RegisterFactory(owner int64, decl FactoryDeclaration) error {
	s.mu.Lock()
	if _, exists := s.factories[decl.Name]; exists {
		s.mu.Unlock()
		return corvuserr.DuplicateFactory(decl.Name)
	}
	s.factories[decl.Name] = &factoryEntry{decl: decl, owner: owner}
	s.mu.Unlock()

	s.emit(Event{Kind: Registered, FactoryName: decl.Name})
	return nil
}

// UnregisterFactory removes a factory. Instances built from it are expected
// to already have been killed by the caller (STOPPING_PRECLEAN does this).
func (s *Store) UnregisterFactory(name string) error {
	s.mu.Lock()
	if _, exists := s.factories[name]; !exists {
		s.mu.Unlock()
		return corvuserr.New(corvuserr.CodeInvalidProperties, "factory "+name+" is not registered", nil)
	}
	delete(s.factories, name)
	s.mu.Unlock()

	s.emit(Event{Kind: Unregistered, FactoryName: name})
	return nil
}

// Instantiate creates a new component instance named name from factory,
// starts its dependency handlers, and runs the initial check_lifecycle.
// Fails with duplicate-instance if name is already in use.
func (s *Store) Instantiate(factory, name string, props map[string]any) (*Instance, error) {
	s.mu.Lock()
	fe, ok := s.factories[factory]
	if !ok {
		s.mu.Unlock()
		return nil, corvuserr.New(corvuserr.CodeInvalidProperties, "factory "+factory+" is not registered", nil)
	}
	if _, exists := s.instances[name]; exists {
		s.mu.Unlock()
		return nil, corvuserr.DuplicateInstance(name)
	}
	inst := newInstance(s, name, fe.owner, fe.decl, props)
	s.instances[name] = inst
	s.mu.Unlock()

	s.emit(Event{Kind: Instantiated, InstanceName: name})
	inst.start()
	return inst, nil
}

// Invalidate forces an instance to INVALID regardless of its dependency
// state, for explicit operator-driven invalidation.
func (s *Store) Invalidate(name string) error {
	inst, ok := s.getInstance(name)
	if !ok {
		return corvuserr.New(corvuserr.CodeInvalidProperties, "instance "+name+" does not exist", nil)
	}
	inst.mu.Lock()
	if inst.state != StateValid {
		inst.mu.Unlock()
		return nil
	}
	inst.state = StateInvalid
	cb := inst.decl.Callbacks.OnInvalidate
	inst.mu.Unlock()
	if cb != nil {
		cb(inst.obj)
	}
	for _, p := range inst.provided {
		p.unregister(inst.logger)
	}
	s.emit(Event{Kind: Invalidated, InstanceName: name})
	return nil
}

// Kill terminates an instance permanently.
func (s *Store) Kill(name string) error {
	inst, ok := s.getInstance(name)
	if !ok {
		return corvuserr.New(corvuserr.CodeInvalidProperties, "instance "+name+" does not exist", nil)
	}
	inst.Kill()
	s.mu.Lock()
	delete(s.instances, name)
	s.mu.Unlock()
	return nil
}

// Retry re-attempts validation of an ERRONEOUS instance, optionally with
// updated properties.
func (s *Store) Retry(name string, props map[string]any) error {
	inst, ok := s.getInstance(name)
	if !ok {
		return corvuserr.New(corvuserr.CodeInvalidProperties, "instance "+name+" does not exist", nil)
	}
	inst.mu.Lock()
	if inst.state != StateErroneous {
		inst.mu.Unlock()
		return nil
	}
	inst.state = StateInvalid
	for k, v := range props {
		inst.props[k] = v
	}
	inst.mu.Unlock()

	for _, h := range inst.handlers {
		h.tryBinding(s.reg)
	}
	inst.mu.Lock()
	inst.checkLifecycleLocked()
	inst.mu.Unlock()
	return nil
}

func (s *Store) getInstance(name string) (*Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[name]
	return inst, ok
}

// IsRegisteredFactory reports whether name is a registered factory.
func (s *Store) IsRegisteredFactory(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.factories[name]
	return ok
}

// IsRegisteredInstance reports whether name is a live instance.
func (s *Store) IsRegisteredInstance(name string) bool {
	_, ok := s.getInstance(name)
	return ok
}

// GetInstances returns the names of every live instance.
func (s *Store) GetInstances() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.instances))
	for name := range s.instances {
		out = append(out, name)
	}
	return out
}

// WaitingComponent describes one instance stuck short of VALID: its name,
// owning factory, and the requirement field names still unmet.
type WaitingComponent struct {
	Name              string
	Factory           string
	UnmetRequirements []string
}

// GetWaitingComponents returns every instance not currently VALID, along
// with the non-optional requirement fields still unbound on each.
func (s *Store) GetWaitingComponents() []WaitingComponent {
	s.mu.Lock()
	insts := make([]*Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		insts = append(insts, inst)
	}
	s.mu.Unlock()

	var out []WaitingComponent
	for _, inst := range insts {
		if inst.State() == StateValid {
			continue
		}
		out = append(out, WaitingComponent{
			Name:              inst.name,
			Factory:           inst.decl.Name,
			UnmetRequirements: inst.UnmetRequirements(),
		})
	}
	return out
}

// InstanceDetails is a diagnostic snapshot of one instance.
type InstanceDetails struct {
	Name    string
	Factory string
	Bundle  int64
	State   State
}

// GetInstanceDetails returns a diagnostic snapshot of one instance.
func (s *Store) GetInstanceDetails(name string) (InstanceDetails, bool) {
	inst, ok := s.getInstance(name)
	if !ok {
		return InstanceDetails{}, false
	}
	return InstanceDetails{Name: inst.name, Factory: inst.decl.Name, Bundle: inst.owner, State: inst.State()}, true
}

// FactoryDetails is a diagnostic snapshot of one factory.
type FactoryDetails struct {
	Name     string
	Bundle   int64
	Provides [][]string
}

// GetFactoryDetails returns a diagnostic snapshot of one factory.
func (s *Store) GetFactoryDetails(name string) (FactoryDetails, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fe, ok := s.factories[name]
	if !ok {
		return FactoryDetails{}, false
	}
	return FactoryDetails{Name: name, Bundle: fe.owner, Provides: fe.decl.Provides}, true
}

// AddListener registers l for iPOPO-style store events, idempotently.
func (s *Store) AddListener(l Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.listeners {
		if existing == l {
			return false
		}
	}
	s.listeners = append(s.listeners, l)
	return true
}

// RemoveListener unregisters l.
func (s *Store) RemoveListener(l Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// emit delivers evt to every listener, on the calling thread.
func (s *Store) emit(evt Event) {
	s.mu.Lock()
	snapshot := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()
	for _, l := range snapshot {
		l.HandleComponentEvent(evt)
	}
}
