package component

import (
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/corvus-rt/corvus/corvuserr"
	"github.com/corvus-rt/corvus/event"
	"github.com/corvus-rt/corvus/registry"
)

// State enumerates a component instance's lifecycle position.
type State int

const (
	StateInvalid State = iota
	StateValidating
	StateValid
	StateErroneous
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateInvalid:
		return "INVALID"
	case StateValidating:
		return "VALIDATING"
	case StateValid:
		return "VALID"
	case StateErroneous:
		return "ERRONEOUS"
	case StateKilled:
		return "KILLED"
	default:
		return "UNKNOWN"
	}
}

// Instance is one live component: a factory-built object, its dependency
// handlers, its provided-service handlers, and the lock serializing every
// lifecycle transition (check_lifecycle, bind, unbind, kill). The lock is a
// plain sync.Mutex, never held across a call into obj or the dispatcher —
// the same release-before-user-code shape used throughout this module.
type Instance struct {
	mu sync.Mutex

	store *Store
	name  string
	owner int64 // owning bundle id
	decl  FactoryDeclaration
	obj   any

	reg    *registry.Registry
	disp   *event.Dispatcher
	logger *zap.Logger

	props    map[string]any
	state    State
	handlers []*handler
	provided []*providedService
}

func newInstance(store *Store, name string, owner int64, decl FactoryDeclaration, props map[string]any) *Instance {
	merged := make(map[string]any, len(decl.DefaultProperties)+len(props))
	for k, v := range decl.DefaultProperties {
		merged[k] = v
	}
	for k, v := range props {
		merged[k] = v
	}

	inst := &Instance{
		store:  store,
		name:   name,
		owner:  owner,
		decl:   decl,
		obj:    decl.New(),
		reg:    store.reg,
		disp:   store.disp,
		logger: store.logger,
		props:  merged,
		state:  StateInvalid,
	}

	for _, spec := range decl.Provides {
		inst.provided = append(inst.provided, &providedService{specs: spec})
	}
	for _, req := range decl.Requirements {
		inst.handlers = append(inst.handlers, newHandler(inst, req))
	}

	return inst
}

// Name returns the instance's name.
func (inst *Instance) Name() string { return inst.name }

// State returns the instance's current lifecycle state.
func (inst *Instance) State() State {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.state
}

// start subscribes every dependency handler and runs the first
// check_lifecycle, performed once right after construction.
func (inst *Instance) start() {
	for _, h := range inst.handlers {
		h.start(inst.reg, inst.disp)
	}
	inst.mu.Lock()
	inst.checkLifecycleLocked()
	inst.mu.Unlock()
}

// ownsReference reports whether ref is one of this instance's own provided
// registrations, so dependency handlers never bind to their own output.
func (inst *Instance) ownsReference(ref registry.Reference) bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	for _, p := range inst.provided {
		if p.serviceID() != 0 && p.serviceID() == ref.ServiceID() {
			return true
		}
	}
	return false
}

// bind injects svc into the field h.req.FieldName, invokes on-bind, records
// the binding, and re-checks lifecycle.
func (inst *Instance) bind(h *handler, svc any, ref registry.Reference) {
	inst.mu.Lock()
	injectField(inst.obj, h.req.FieldName, svc, h.req.Aggregate)
	h.addBound(ref, svc)

	if inst.decl.Callbacks.OnBind != nil {
		inst.mu.Unlock()
		err := inst.decl.Callbacks.OnBind(inst.obj, h.req.FieldName, svc)
		inst.mu.Lock()
		if err != nil {
			inst.logger.Warn("component on-bind failed", zap.String("instance", inst.name), zap.Error(err))
		}
	}

	inst.store.emit(Event{Kind: Bound, InstanceName: inst.name, FieldName: h.req.FieldName})
	inst.checkLifecycleLocked()
	inst.mu.Unlock()
}

// unbind removes the binding and runs check_lifecycle first (so the instance
// is already invalidated before on-unbind observes it), then on-unbind,
// clears the field, releases the using edge, then retries binding on every
// handler and re-checks lifecycle once more.
func (inst *Instance) unbind(h *handler, ref registry.Reference) {
	inst.mu.Lock()
	svc, _ := h.removeBound(ref)
	inst.checkLifecycleLocked()

	if inst.decl.Callbacks.OnUnbind != nil {
		inst.mu.Unlock()
		err := inst.decl.Callbacks.OnUnbind(inst.obj, h.req.FieldName, svc)
		inst.mu.Lock()
		if err != nil {
			inst.logger.Warn("component on-unbind failed", zap.String("instance", inst.name), zap.Error(err))
		}
	}

	clearField(inst.obj, h.req.FieldName, h.req.Aggregate, svc)
	inst.mu.Unlock()

	_ = inst.reg.Unget(inst.owner, ref)

	inst.store.emit(Event{Kind: Unbound, InstanceName: inst.name, FieldName: h.req.FieldName})

	for _, other := range inst.handlers {
		other.tryBinding(inst.reg)
	}

	inst.mu.Lock()
	inst.checkLifecycleLocked()
	inst.mu.Unlock()
}

// checkLifecycleLocked runs the validate/invalidate transition. Callers
// must hold inst.mu; it releases the lock around any call into user code or
// the store's emit (which in turn calls into listener code) and re-acquires
// it before returning, so the lock is never held across user callbacks.
func (inst *Instance) checkLifecycleLocked() {
	switch inst.state {
	case StateValid:
		if inst.allDepsValid() {
			return
		}
		inst.state = StateInvalid
		cb := inst.decl.Callbacks.OnInvalidate
		inst.mu.Unlock()
		if cb != nil {
			cb(inst.obj)
		}
		inst.mu.Lock()
		for _, p := range inst.provided {
			inst.mu.Unlock()
			p.unregister(inst.logger)
			inst.mu.Lock()
		}
		inst.mu.Unlock()
		inst.store.emit(Event{Kind: Invalidated, InstanceName: inst.name})
		inst.mu.Lock()

	case StateInvalid:
		if !inst.allDepsValid() || !inst.store.running() {
			return
		}
		inst.state = StateValidating
		cb := inst.decl.Callbacks.OnValidate
		inst.mu.Unlock()
		var err error
		if cb != nil {
			err = cb(inst.obj)
		}
		inst.mu.Lock()

		if err == nil {
			inst.state = StateValid
			props := copyMap(inst.props)
			for _, p := range inst.provided {
				inst.mu.Unlock()
				regErr := p.register(inst.reg, inst.owner, inst.obj, props)
				inst.mu.Lock()
				if regErr != nil {
					inst.logger.Warn("provided service registration failed", zap.String("instance", inst.name), zap.Error(regErr))
				}
			}
			inst.mu.Unlock()
			inst.store.emit(Event{Kind: Validated, InstanceName: inst.name})
			inst.mu.Lock()
			return
		}

		if corvuserr.IsStopRequest(err) {
			inst.mu.Unlock()
			inst.Kill()
			inst.mu.Lock()
			return
		}

		inst.state = StateErroneous
		inst.mu.Unlock()
		inst.store.emit(Event{Kind: Invalidated, InstanceName: inst.name})
		inst.mu.Lock()
	}
}

func (inst *Instance) allDepsValid() bool {
	for _, h := range inst.handlers {
		if !h.isValid() {
			return false
		}
	}
	return true
}

// UnmetRequirements returns the field names of every non-optional
// requirement with no current binding.
func (inst *Instance) UnmetRequirements() []string {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	var names []string
	for _, h := range inst.handlers {
		if !h.isValid() {
			names = append(names, h.req.FieldName)
		}
	}
	return names
}

// Kill transitions the instance to KILLED (terminal): calls on-invalidate if
// VALID, stops every handler and issues on-unbind for every binding it
// returns, then unregisters any remaining provided services and emits
// KILLED. A killed instance is unreachable from the store.
func (inst *Instance) Kill() {
	inst.mu.Lock()
	if inst.state == StateKilled {
		inst.mu.Unlock()
		return
	}
	wasValid := inst.state == StateValid
	inst.state = StateKilled
	inst.mu.Unlock()

	if wasValid && inst.decl.Callbacks.OnInvalidate != nil {
		inst.decl.Callbacks.OnInvalidate(inst.obj)
	}

	for _, h := range inst.handlers {
		bindings := h.stop(inst.disp)
		for _, b := range bindings {
			if inst.decl.Callbacks.OnUnbind != nil {
				if err := inst.decl.Callbacks.OnUnbind(inst.obj, h.req.FieldName, b.svc); err != nil {
					inst.logger.Warn("component on-unbind failed during kill", zap.String("instance", inst.name), zap.Error(err))
				}
			}
			_ = inst.reg.Unget(inst.owner, b.ref)
		}
	}

	for _, p := range inst.provided {
		p.unregister(inst.logger)
	}

	inst.store.mu.Lock()
	if inst.store.instances[inst.name] == inst {
		delete(inst.store.instances, inst.name)
	}
	inst.store.mu.Unlock()

	inst.store.emit(Event{Kind: Killed, InstanceName: inst.name})
}

// GetProperty returns the current value of a declared property.
func (inst *Instance) GetProperty(name string) (any, bool) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	v, ok := inst.props[name]
	return v, ok
}

// SetProperty mutates a declared property. If the new value differs from
// the old one, every provided-service handler pushes the change through as
// a MODIFIED service event.
func (inst *Instance) SetProperty(name string, value any) {
	inst.mu.Lock()
	old, existed := inst.props[name]
	if existed && reflect.DeepEqual(old, value) {
		inst.mu.Unlock()
		return
	}
	inst.props[name] = value
	props := copyMap(inst.props)
	provided := append([]*providedService(nil), inst.provided...)
	logger := inst.logger
	inst.mu.Unlock()

	for _, p := range provided {
		p.updateProperties(props, logger)
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// injectField sets obj's field named fieldName to svc, using reflection to
// set a single named struct field directly. For an aggregate requirement,
// the field is expected to be a slice and svc is appended.
func injectField(obj any, fieldName string, svc any, aggregate bool) {
	v := reflect.ValueOf(obj)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return
	}
	f := v.FieldByName(fieldName)
	if !f.IsValid() || !f.CanSet() {
		return
	}

	sv := reflect.ValueOf(svc)
	if aggregate && f.Kind() == reflect.Slice {
		f.Set(reflect.Append(f, sv))
		return
	}
	if sv.Type().AssignableTo(f.Type()) {
		f.Set(sv)
	}
}

// clearField resets obj's field named fieldName to its zero value, or, for
// an aggregate field, removes the element equal to svc.
func clearField(obj any, fieldName string, aggregate bool, svc any) {
	v := reflect.ValueOf(obj)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return
	}
	f := v.FieldByName(fieldName)
	if !f.IsValid() || !f.CanSet() {
		return
	}
	if aggregate && f.Kind() == reflect.Slice {
		for i := 0; i < f.Len(); i++ {
			if f.Index(i).Interface() == svc {
				f.Set(reflect.AppendSlice(f.Slice(0, i), f.Slice(i+1, f.Len())))
				return
			}
		}
		return
	}
	f.Set(reflect.Zero(f.Type()))
}
