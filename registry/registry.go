// Package registry implements the service registry: registration, lookup,
// property updates, and the singleton/service-factory/prototype-factory
// consumption model, with ranking-then-id ordering applied everywhere
// references are listed.
//
// One registry-wide lock guards the structural maps, is always released
// before a call into user code (a Factory's GetService/UngetService, or the
// event dispatcher's listener callbacks), and is re-acquired with a
// double-check afterward: a fast path under the lock, a slow path
// double-checked after releasing it for the factory call.
package registry

import (
	"reflect"
	"sync"

	"github.com/corvus-rt/corvus/corvuserr"
	"github.com/corvus-rt/corvus/event"
	"github.com/corvus-rt/corvus/filter"
)

// Kind discriminates how a registration produces the object a consumer
// receives — a single variant field on the record rather than three record
// types.
type Kind int

const (
	KindSingleton Kind = iota
	KindServiceFactory
	KindPrototypeFactory
)

// Factory is implemented by the object passed to Register when kind is not
// KindSingleton. GetService is invoked once per consuming bundle for
// KindServiceFactory (the result is cached per bundle) and once per Get call
// for KindPrototypeFactory. UngetService runs when the corresponding edge is
// released.
type Factory interface {
	GetService(consumer int64) (any, error)
	UngetService(consumer int64, service any)
}

const (
	keyObjectClass    = "objectClass"
	keyServiceID       = "service.id"
	keyServiceRanking = "service.ranking"
)

type recordState int

const (
	stateActive recordState = iota
	stateUnregistering
	stateRemoved
)

type record struct {
	id     int64
	owner  int64
	specs  []string
	props  map[string]any
	kind   Kind
	state  recordState

	singleton any
	factory   Factory

	perBundleCache map[int64]any
	perCallByID    map[uint64]int64 // prototype handle id -> consumer bundle
	perCallSvc     map[uint64]any

	usingEdges map[int64]int // consumer bundle -> outstanding Get count
}

func (rec *record) rankingLocked() int {
	if v, ok := rec.props[keyServiceRanking].(int); ok {
		return v
	}
	return 0
}

// Registry holds every live service record in the framework.
type Registry struct {
	mu         sync.Mutex
	dispatcher *event.Dispatcher

	nextServiceID int64
	nextHandleID  uint64

	records  map[int64]*record
	byBundle map[int64]map[int64]bool
}

// New creates an empty registry that publishes through d.
func New(d *event.Dispatcher) *Registry {
	return &Registry{
		dispatcher: d,
		records:    make(map[int64]*record),
		byBundle:   make(map[int64]map[int64]bool),
	}
}

// Register publishes svc under specs on behalf of owner, assigning a fresh
// service id and taking a copy of props with reserved keys overridden. For
// kind != KindSingleton, svc must implement Factory.
func (r *Registry) Register(owner int64, specs []string, svc any, props map[string]any, kind Kind) (*Registration, error) {
	if len(specs) == 0 {
		return nil, corvuserr.InvalidProperties("service must declare at least one interface name")
	}
	if kind != KindSingleton {
		if _, ok := svc.(Factory); !ok {
			return nil, corvuserr.InvalidProperties("non-singleton registration must implement registry.Factory")
		}
	}

	r.mu.Lock()
	r.nextServiceID++
	id := r.nextServiceID

	p := copyProps(props)
	p[keyObjectClass] = append([]string(nil), specs...)
	p[keyServiceID] = id
	if _, ok := props[keyServiceRanking]; ok {
		if rank, ok := toInt(props[keyServiceRanking]); ok {
			p[keyServiceRanking] = rank
		} else {
			p[keyServiceRanking] = 0
		}
	} else {
		p[keyServiceRanking] = 0
	}

	rec := &record{
		id:             id,
		owner:          owner,
		specs:          append([]string(nil), specs...),
		props:          p,
		kind:           kind,
		state:          stateActive,
		perBundleCache: make(map[int64]any),
		perCallByID:    make(map[uint64]int64),
		perCallSvc:     make(map[uint64]any),
		usingEdges:     make(map[int64]int),
	}
	if kind == KindSingleton {
		rec.singleton = svc
	} else {
		rec.factory = svc.(Factory)
	}

	r.records[id] = rec
	if r.byBundle[owner] == nil {
		r.byBundle[owner] = make(map[int64]bool)
	}
	r.byBundle[owner][id] = true
	r.mu.Unlock()

	r.publish(event.Registered, rec, nil)

	return &Registration{reg: r, id: id}, nil
}

// unregister performs the two-phase removal: the record is taken out of the
// findable index and marked unregistering before the UNREGISTERING event is
// delivered (so new consumers cannot acquire it, but listeners processing
// that very event still can), then fully removed and every outstanding edge
// released afterward.
func (r *Registry) unregister(id int64) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok || rec.state != stateActive {
		r.mu.Unlock()
		return corvuserr.InvalidRegistration(id)
	}
	rec.state = stateUnregistering
	delete(r.byBundle[rec.owner], id)
	r.mu.Unlock()

	r.publish(event.Unregistering, rec, nil)

	r.mu.Lock()
	rec.state = stateRemoved
	delete(r.records, id)
	consumers := make(map[int64]int, len(rec.usingEdges))
	for c, n := range rec.usingEdges {
		consumers[c] = n
	}
	handles := make(map[uint64]int64, len(rec.perCallByID))
	for h, c := range rec.perCallByID {
		handles[h] = c
	}
	r.mu.Unlock()

	if rec.kind != KindSingleton {
		for consumer := range consumers {
			r.mu.Lock()
			svc, hadCache := rec.perBundleCache[consumer]
			delete(rec.perBundleCache, consumer)
			r.mu.Unlock()
			if hadCache {
				rec.factory.UngetService(consumer, svc)
			}
		}
		for handle, consumer := range handles {
			r.mu.Lock()
			svc := rec.perCallSvc[handle]
			delete(rec.perCallSvc, handle)
			delete(rec.perCallByID, handle)
			r.mu.Unlock()
			rec.factory.UngetService(consumer, svc)
		}
	}

	return nil
}

// UpdateProperties strips reserved keys from newProps, merges them in, and
// emits MODIFIED (or nothing, if the result equals the previous properties).
func (r *Registry) updateProperties(id int64, newProps map[string]any) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok || rec.state != stateActive {
		r.mu.Unlock()
		return corvuserr.InvalidRegistration(id)
	}

	prev := cloneProps(rec.props)

	merged := cloneProps(rec.props)
	for k, v := range newProps {
		if isReservedKey(k) {
			continue
		}
		merged[k] = v
	}

	if propsEqual(prev, merged) {
		r.mu.Unlock()
		return nil
	}
	rec.props = merged
	r.mu.Unlock()

	r.publish(event.Modified, rec, prev)
	return nil
}

// Get resolves svc for a singleton or service-factory reference, recording a
// using-bundle edge for consumer. Use GetPrototype for prototype-factory
// references.
func (r *Registry) Get(consumer int64, ref Reference) (any, error) {
	r.mu.Lock()
	rec, ok := r.records[ref.id]
	if !ok || rec.state == stateRemoved {
		r.mu.Unlock()
		return nil, corvuserr.InvalidReference(ref.id)
	}
	kind := rec.kind

	if kind == KindSingleton {
		rec.usingEdges[consumer]++
		svc := rec.singleton
		r.mu.Unlock()
		return svc, nil
	}

	if kind == KindPrototypeFactory {
		r.mu.Unlock()
		return nil, corvuserr.InvalidProperties("use GetPrototype for a prototype-factory reference")
	}

	// KindServiceFactory: return the per-consumer cached instance if present.
	if svc, cached := rec.perBundleCache[consumer]; cached {
		rec.usingEdges[consumer]++
		r.mu.Unlock()
		return svc, nil
	}
	r.mu.Unlock()

	svc, err := rec.factory.GetService(consumer)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if existing, already := rec.perBundleCache[consumer]; already {
		// Another goroutine produced one first; keep theirs, release ours.
		r.mu.Unlock()
		rec.factory.UngetService(consumer, svc)
		r.mu.Lock()
		rec.usingEdges[consumer]++
		svc = existing
		r.mu.Unlock()
		return svc, nil
	}
	rec.perBundleCache[consumer] = svc
	rec.usingEdges[consumer]++
	r.mu.Unlock()

	return svc, nil
}

// PrototypeHandle is the consumer-side handle returned by GetPrototype. It
// must be released with Unget once the consumer is done with the instance.
type PrototypeHandle struct {
	Service any

	reg      *Registry
	recID    int64
	handleID uint64
	consumer int64
}

// Unget releases this specific prototype instance, invoking the factory's
// UngetService callback.
func (h *PrototypeHandle) Unget() {
	h.reg.mu.Lock()
	rec, ok := h.reg.records[h.recID]
	if !ok {
		h.reg.mu.Unlock()
		return
	}
	delete(rec.perCallSvc, h.handleID)
	delete(rec.perCallByID, h.handleID)
	if n := rec.usingEdges[h.consumer]; n > 1 {
		rec.usingEdges[h.consumer] = n - 1
	} else {
		delete(rec.usingEdges, h.consumer)
	}
	h.reg.mu.Unlock()

	rec.factory.UngetService(h.consumer, h.Service)
}

// GetPrototype produces a fresh instance for a prototype-factory reference.
func (r *Registry) GetPrototype(consumer int64, ref Reference) (*PrototypeHandle, error) {
	r.mu.Lock()
	rec, ok := r.records[ref.id]
	if !ok || rec.state == stateRemoved {
		r.mu.Unlock()
		return nil, corvuserr.InvalidReference(ref.id)
	}
	if rec.kind != KindPrototypeFactory {
		r.mu.Unlock()
		return nil, corvuserr.InvalidProperties("GetPrototype requires a prototype-factory reference")
	}
	r.mu.Unlock()

	svc, err := rec.factory.GetService(consumer)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.nextHandleID++
	handleID := r.nextHandleID
	rec.perCallSvc[handleID] = svc
	rec.perCallByID[handleID] = consumer
	rec.usingEdges[consumer]++
	r.mu.Unlock()

	return &PrototypeHandle{Service: svc, reg: r, recID: rec.id, handleID: handleID, consumer: consumer}, nil
}

// Unget releases one using-bundle edge acquired through Get. For
// service-factory references, the factory's release callback runs when the
// last edge for consumer is removed.
func (r *Registry) Unget(consumer int64, ref Reference) error {
	r.mu.Lock()
	rec, ok := r.records[ref.id]
	if !ok {
		r.mu.Unlock()
		return corvuserr.InvalidReference(ref.id)
	}

	n, held := rec.usingEdges[consumer]
	if !held || n == 0 {
		r.mu.Unlock()
		return nil
	}

	if n > 1 {
		rec.usingEdges[consumer] = n - 1
		r.mu.Unlock()
		return nil
	}

	delete(rec.usingEdges, consumer)
	var svc any
	var release bool
	if rec.kind == KindServiceFactory {
		if cached, ok := rec.perBundleCache[consumer]; ok {
			svc = cached
			release = true
			delete(rec.perBundleCache, consumer)
		}
	}
	r.mu.Unlock()

	if release {
		rec.factory.UngetService(consumer, svc)
	}
	return nil
}

// ReleaseBundle releases every using-edge consumer holds and unregisters
// every service consumer owns, matching the cleanup a bundle's stop requires.
func (r *Registry) ReleaseBundle(consumer int64) {
	r.mu.Lock()
	owned := make([]int64, 0, len(r.byBundle[consumer]))
	for id := range r.byBundle[consumer] {
		owned = append(owned, id)
	}
	consuming := make(map[int64]int)
	for id, rec := range r.records {
		if n, held := rec.usingEdges[consumer]; held {
			consuming[id] = n
		}
	}
	r.mu.Unlock()

	for id, n := range consuming {
		for ; n > 0; n-- {
			_ = r.Unget(consumer, Reference{reg: r, id: id})
		}
	}
	for _, id := range owned {
		_ = r.unregister(id)
	}
}

func (r *Registry) publish(kind event.ServiceEventKind, rec *record, prevProps map[string]any) {
	r.mu.Lock()
	props := cloneProps(rec.props)
	specs := append([]string(nil), rec.specs...)
	r.mu.Unlock()

	evt := event.ServiceEvent{
		Kind:               kind,
		ServiceID:          rec.id,
		ObjectClass:        specs,
		Properties:         props,
		PreviousProperties: prevProps,
		Ref:                Reference{reg: r, id: rec.id},
	}
	r.dispatcher.PublishServiceEvent(evt)

	if kind == event.Modified {
		r.checkEndMatch(rec, prevProps, props)
	}
}

// checkEndMatch is folded into event.Dispatcher.PublishServiceEvent's own
// per-listener resolution (see event.resolveDelivery); Registry.publish calls
// this hook after every Modified delivery only, and it is currently a no-op
// placeholder for future per-registry telemetry.
func (r *Registry) checkEndMatch(_ *record, _, _ map[string]any) {}

func isReservedKey(k string) bool {
	return k == keyObjectClass || k == keyServiceID || k == keyServiceRanking
}

// copyProps clones p with reserved keys stripped, for merging untrusted
// caller-supplied properties before the reserved keys are (re)applied.
func copyProps(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		if isReservedKey(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// cloneProps clones p verbatim, reserved keys included, for reading or
// overlaying onto an already-stored record's full current properties.
func cloneProps(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// propsEqual compares two property maps for equality. reflect.DeepEqual,
// not !=, because objectClass (and any caller-supplied property) may hold
// an uncomparable dynamic type such as []string.
func propsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok || !reflect.DeepEqual(bv, v) {
			return false
		}
	}
	return true
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

// EffectiveFilter combines spec's objectClass membership test with f,
// yielding the one notion of "effective filter" (objectClass=spec AND
// sub-filter) every FindAll/FindOne query and every dependency handler's
// live service-event subscription must apply. Exported so callers outside
// this package (the component container's dependency handlers) scope their
// event subscriptions by the same rule FindAll applies synchronously,
// instead of subscribing on the sub-filter alone.
func EffectiveFilter(spec string, f *filter.Filter) *filter.Filter {
	if spec == "" {
		return f
	}
	return filter.CombineAnd(filter.MustParse("(objectClass="+filter.Escape(spec)+")"), f)
}
