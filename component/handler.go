package component

import (
	"reflect"

	"github.com/corvus-rt/corvus/event"
	"github.com/corvus-rt/corvus/filter"
	"github.com/corvus-rt/corvus/registry"
)

// binding pairs a bound reference with the service object acquired for it.
type binding struct {
	ref registry.Reference
	svc any
}

// handler is the dependency handler shared by the simple (aggregate=false)
// and aggregate (aggregate=true) cases: one type with a branch at the two
// points behavior actually differs, rather than two parallel
// implementations of an interface — the two variants differ only in how
// many bindings they hold and what departure does to the instance, which
// HandleServiceEvent and tryBinding below branch on directly.
type handler struct {
	instance     *Instance
	req          Requirement
	subFilter    *filter.Filter // req.SubFilter alone, for FindAll(spec, ...)
	listenFilter *filter.Filter // objectClass=Spec AND subFilter, for the live event subscription

	bound []binding
}

func newHandler(inst *Instance, req Requirement) *handler {
	sub := effectiveSubFilter(req.SubFilter)
	return &handler{
		instance:     inst,
		req:          req,
		subFilter:    sub,
		listenFilter: registry.EffectiveFilter(req.Spec, sub),
	}
}

func effectiveSubFilter(s string) *filter.Filter {
	if s == "" {
		return nil
	}
	return filter.MustParse(s)
}

// isValid reports whether this handler currently satisfies its requirement:
// optional requirements are always satisfied, others need at least one
// binding.
func (h *handler) isValid() bool {
	return h.req.Optional || len(h.bound) > 0
}

// start subscribes a service listener using the requirement's effective
// filter (objectClass=Spec AND sub-filter) and performs the initial
// synchronous scan.
func (h *handler) start(reg *registry.Registry, disp *event.Dispatcher) {
	disp.AddServiceListener(h.instance.owner, h, h.listenFilter)
	h.tryBinding(reg)
}

// stop unsubscribes and returns every binding currently held, so the
// instance can run unbind callbacks during teardown.
func (h *handler) stop(disp *event.Dispatcher) []binding {
	disp.RemoveServiceListener(h.instance.owner, h)
	snapshot := h.bound
	h.bound = nil
	return snapshot
}

// tryBinding performs a synchronous scan of the registry and binds any
// matching reference not yet bound: the simple handler stops after its
// first successful bind, the aggregate handler keeps scanning.
func (h *handler) tryBinding(reg *registry.Registry) {
	candidates := reg.FindAll(h.req.Spec, h.subFilter)
	for _, ref := range candidates {
		if h.instance.ownsReference(ref) {
			continue // never bind to a service this very instance provides
		}
		if h.isBound(ref) {
			continue
		}
		if !h.req.Aggregate && len(h.bound) > 0 {
			break
		}

		svc, err := reg.Get(h.instance.owner, ref)
		if err != nil {
			continue // reference vanished between FindAll and Get; skip it
		}
		h.instance.bind(h, svc, ref)

		if !h.req.Aggregate {
			break
		}
	}
}

// containsSpec reports whether objectClass names spec, guarding
// HandleServiceEvent against binding to an unrelated interface should
// listenFilter ever be built incorrectly.
func containsSpec(objectClass []string, spec string) bool {
	for _, c := range objectClass {
		if c == spec {
			return true
		}
	}
	return false
}

func (h *handler) isBound(ref registry.Reference) bool {
	for _, b := range h.bound {
		if b.ref.ServiceID() == ref.ServiceID() {
			return true
		}
	}
	return false
}

func (h *handler) addBound(ref registry.Reference, svc any) {
	h.bound = append(h.bound, binding{ref: ref, svc: svc})
}

func (h *handler) removeBound(ref registry.Reference) (any, bool) {
	for i, b := range h.bound {
		if b.ref.ServiceID() == ref.ServiceID() {
			h.bound = append(h.bound[:i], h.bound[i+1:]...)
			return b.svc, true
		}
	}
	return nil, false
}

// HandleServiceEvent implements event.ServiceListener. Events for a
// reference the handler's own instance currently provides are ignored, to
// avoid self-binding.
func (h *handler) HandleServiceEvent(evt event.ServiceEvent) {
	ref, ok := evt.Ref.(registry.Reference)
	if !ok {
		return
	}
	if h.instance.ownsReference(ref) {
		return
	}
	if !containsSpec(evt.ObjectClass, h.req.Spec) {
		return
	}

	switch evt.Kind {
	case event.Registered:
		h.onArrival(ref)
	case event.Modified:
		if !h.isBound(ref) {
			h.onArrival(ref)
		}
	case event.Unregistering, event.ModifiedEndMatch:
		h.onDeparture(ref)
	}
}

func (h *handler) onArrival(ref registry.Reference) {
	if h.isBound(ref) {
		return
	}
	if !h.req.Aggregate && len(h.bound) > 0 {
		return
	}
	svc, err := h.instance.reg.Get(h.instance.owner, ref)
	if err != nil {
		return
	}
	// The REGISTERED event for the instance's own provided service arrives
	// before its registration handle is recorded, so ownsReference cannot
	// see it yet; recognise it by the service object instead.
	if t := reflect.TypeOf(svc); t != nil && t == reflect.TypeOf(h.instance.obj) && t.Comparable() && svc == h.instance.obj {
		_ = h.instance.reg.Unget(h.instance.owner, ref)
		return
	}
	h.instance.bind(h, svc, ref)
}

func (h *handler) onDeparture(ref registry.Reference) {
	if !h.isBound(ref) {
		return
	}
	// instance.unbind runs check_lifecycle, the on-unbind callback, then
	// itself retries binding on every handler and re-checks lifecycle — see
	// Instance.unbind.
	h.instance.unbind(h, ref)
}
