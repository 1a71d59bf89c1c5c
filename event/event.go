// Package event delivers bundle, service, and framework-stop events to
// listeners, applies per-listener LDAP filters to service events (including
// the MODIFIED_ENDMATCH promotion rule), and runs event-listener hooks
// before normal dispatch. Listener lists are snapshotted before iteration so
// a listener may register or unregister listeners during delivery without
// corrupting traversal.
package event

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/corvus-rt/corvus/filter"
)

// BundleEventKind enumerates the lifecycle transitions a bundle listener
// observes.
type BundleEventKind int

const (
	Installed BundleEventKind = iota
	Starting
	Started
	Stopping
	StoppingPreclean
	Stopped
	Updated
	Uninstalled
)

func (k BundleEventKind) String() string {
	switch k {
	case Installed:
		return "INSTALLED"
	case Starting:
		return "STARTING"
	case Started:
		return "STARTED"
	case Stopping:
		return "STOPPING"
	case StoppingPreclean:
		return "STOPPING_PRECLEAN"
	case Stopped:
		return "STOPPED"
	case Updated:
		return "UPDATED"
	case Uninstalled:
		return "UNINSTALLED"
	default:
		return "UNKNOWN"
	}
}

// BundleEvent is delivered to bundle listeners.
type BundleEvent struct {
	Kind         BundleEventKind
	BundleID     int64
	SymbolicName string
}

// ServiceEventKind enumerates the registry transitions a service listener
// observes.
type ServiceEventKind int

const (
	Registered ServiceEventKind = iota
	Modified
	Unregistering
	ModifiedEndMatch
)

func (k ServiceEventKind) String() string {
	switch k {
	case Registered:
		return "REGISTERED"
	case Modified:
		return "MODIFIED"
	case Unregistering:
		return "UNREGISTERING"
	case ModifiedEndMatch:
		return "MODIFIED_ENDMATCH"
	default:
		return "UNKNOWN"
	}
}

// ServiceEvent is delivered to service listeners. PreviousProperties is only
// populated for a Modified publish and drives the MODIFIED_ENDMATCH
// promotion rule; it is nil for Registered/Unregistering. Ref carries
// whatever opaque reference handle the registry wants a listener to be able
// to retrieve the service object from — boxed as any to avoid an import
// cycle between event and registry.
type ServiceEvent struct {
	Kind               ServiceEventKind
	ServiceID          int64
	ObjectClass        []string
	Properties         map[string]any
	PreviousProperties map[string]any
	Ref                any
}

// BundleListener receives bundle lifecycle events.
type BundleListener interface {
	HandleBundleEvent(BundleEvent)
}

// ServiceListener receives service registry events.
type ServiceListener interface {
	HandleServiceEvent(ServiceEvent)
}

// StopListener is notified once when the framework begins stopping.
type StopListener interface {
	HandleFrameworkStop()
}

// EventListenerHook may rewrite the per-bundle listener lists for a service
// event before normal dispatch runs, to suppress delivery to chosen
// listeners. A hook never sees or mutates the entry for its own owning
// bundle, so it cannot blind itself.
type EventListenerHook interface {
	FilterServiceEvent(evt ServiceEvent, listenersByBundle map[int64][]int)
}

type bundleListenerEntry struct {
	owner int64
	fn    BundleListener
}

type serviceListenerEntry struct {
	owner  int64
	fn     ServiceListener
	filter *filter.Filter
}

type stopListenerEntry struct {
	owner int64
	fn    StopListener
}

type hookEntry struct {
	owner int64
	hook  EventListenerHook
}

// Dispatcher owns every listener and hook list in the framework.
type Dispatcher struct {
	logger *zap.Logger

	bundleListeners  []bundleListenerEntry
	serviceListeners []serviceListenerEntry
	stopListeners    []stopListenerEntry
	hooks            []hookEntry
}

// New creates a Dispatcher. A nil logger is replaced with a no-op logger.
func New(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger}
}

// AddBundleListener registers fn on behalf of owner. Returns false if fn is
// already registered for that owner (idempotent add).
func (d *Dispatcher) AddBundleListener(owner int64, fn BundleListener) bool {
	for _, e := range d.bundleListeners {
		if e.owner == owner && e.fn == fn {
			return false
		}
	}
	d.bundleListeners = append(d.bundleListeners, bundleListenerEntry{owner, fn})
	return true
}

// RemoveBundleListener unregisters fn. Returns false if it was not
// registered.
func (d *Dispatcher) RemoveBundleListener(owner int64, fn BundleListener) bool {
	for i, e := range d.bundleListeners {
		if e.owner == owner && e.fn == fn {
			d.bundleListeners = append(d.bundleListeners[:i], d.bundleListeners[i+1:]...)
			return true
		}
	}
	return false
}

// AddServiceListener registers fn with an optional filter. A malformed
// filter is the caller's responsibility to reject before calling this: the
// dispatcher only ever stores an already-parsed filter.
func (d *Dispatcher) AddServiceListener(owner int64, fn ServiceListener, f *filter.Filter) bool {
	for _, e := range d.serviceListeners {
		if e.owner == owner && e.fn == fn {
			return false
		}
	}
	d.serviceListeners = append(d.serviceListeners, serviceListenerEntry{owner, fn, f})
	return true
}

// RemoveServiceListener unregisters fn. Returns false if it was not
// registered.
func (d *Dispatcher) RemoveServiceListener(owner int64, fn ServiceListener) bool {
	for i, e := range d.serviceListeners {
		if e.owner == owner && e.fn == fn {
			d.serviceListeners = append(d.serviceListeners[:i], d.serviceListeners[i+1:]...)
			return true
		}
	}
	return false
}

// AddFrameworkStopListener registers fn. Returns false if already present.
func (d *Dispatcher) AddFrameworkStopListener(owner int64, fn StopListener) bool {
	for _, e := range d.stopListeners {
		if e.owner == owner && e.fn == fn {
			return false
		}
	}
	d.stopListeners = append(d.stopListeners, stopListenerEntry{owner, fn})
	return true
}

// RemoveFrameworkStopListener unregisters fn. Returns false if absent.
func (d *Dispatcher) RemoveFrameworkStopListener(owner int64, fn StopListener) bool {
	for i, e := range d.stopListeners {
		if e.owner == owner && e.fn == fn {
			d.stopListeners = append(d.stopListeners[:i], d.stopListeners[i+1:]...)
			return true
		}
	}
	return false
}

// AddEventListenerHook registers hook on behalf of owner.
func (d *Dispatcher) AddEventListenerHook(owner int64, hook EventListenerHook) bool {
	for _, e := range d.hooks {
		if e.owner == owner && e.hook == hook {
			return false
		}
	}
	d.hooks = append(d.hooks, hookEntry{owner, hook})
	return true
}

// RemoveEventListenerHook unregisters hook.
func (d *Dispatcher) RemoveEventListenerHook(owner int64, hook EventListenerHook) bool {
	for i, e := range d.hooks {
		if e.owner == owner && e.hook == hook {
			d.hooks = append(d.hooks[:i], d.hooks[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveListenersForBundle drops every listener and hook owned by bundle,
// en bloc — called when that bundle stops.
func (d *Dispatcher) RemoveListenersForBundle(owner int64) {
	d.bundleListeners = filterOutOwner(d.bundleListeners, owner)
	d.serviceListeners = filterOutOwner(d.serviceListeners, owner)
	d.stopListeners = filterOutOwner(d.stopListeners, owner)
	d.hooks = filterOutOwner(d.hooks, owner)
}

func filterOutOwner[T interface{ ownerID() int64 }](entries []T, owner int64) []T {
	kept := entries[:0:0]
	for _, e := range entries {
		if e.ownerID() != owner {
			kept = append(kept, e)
		}
	}
	return kept
}

func (e bundleListenerEntry) ownerID() int64  { return e.owner }
func (e serviceListenerEntry) ownerID() int64 { return e.owner }
func (e stopListenerEntry) ownerID() int64    { return e.owner }
func (e hookEntry) ownerID() int64            { return e.owner }

// PublishBundleEvent snapshots the bundle listener list and delivers evt to
// each. A panicking or otherwise misbehaving listener is logged and
// skipped; delivery continues to the rest.
func (d *Dispatcher) PublishBundleEvent(evt BundleEvent) {
	snapshot := append([]bundleListenerEntry(nil), d.bundleListeners...)
	for _, e := range snapshot {
		d.safeCall(func() { e.fn.HandleBundleEvent(evt) }, "bundle", e.owner)
	}
}

// PublishFrameworkStop delivers the framework-stopping notification once to
// every registered stop listener.
func (d *Dispatcher) PublishFrameworkStop() {
	snapshot := append([]stopListenerEntry(nil), d.stopListeners...)
	for _, e := range snapshot {
		d.safeCall(func() { e.fn.HandleFrameworkStop() }, "framework-stop", e.owner)
	}
}

// PublishServiceEvent runs registered hooks, then delivers evt to every
// service listener whose filter matches, applying the MODIFIED_ENDMATCH
// promotion rule for Modified publishes: a listener whose filter matched
// PreviousProperties but no longer matches Properties sees ModifiedEndMatch
// instead of Modified; one that matches neither sees nothing.
func (d *Dispatcher) PublishServiceEvent(evt ServiceEvent) {
	listeners := append([]serviceListenerEntry(nil), d.serviceListeners...)
	d.runHooks(evt, listeners)

	for _, e := range listeners {
		if e.fn == nil {
			continue // suppressed by an event-listener hook
		}
		kind, deliver := resolveDelivery(evt, e.filter)
		if !deliver {
			continue
		}
		delivered := evt
		delivered.Kind = kind
		d.safeCall(func() { e.fn.HandleServiceEvent(delivered) }, "service", e.owner)
	}
}

// resolveDelivery decides, for one listener's filter, whether and with what
// kind a service event should be delivered.
func resolveDelivery(evt ServiceEvent, f *filter.Filter) (ServiceEventKind, bool) {
	if evt.Kind != Modified {
		return evt.Kind, f.Matches(evt.Properties)
	}
	if f.Matches(evt.Properties) {
		return Modified, true
	}
	if f.Matches(evt.PreviousProperties) {
		return ModifiedEndMatch, true
	}
	return Modified, false
}

// runHooks builds the per-bundle index hooks expect, lets each hook mutate
// which listener indices survive, and removes suppressed ones from
// listeners in place. A hook never sees or can suppress its own owning
// bundle's entries.
func (d *Dispatcher) runHooks(evt ServiceEvent, listeners []serviceListenerEntry) {
	if len(d.hooks) == 0 {
		return
	}

	hooksSnapshot := append([]hookEntry(nil), d.hooks...)
	for _, h := range hooksSnapshot {
		byBundle := make(map[int64][]int)
		for i, l := range listeners {
			if l.owner == h.owner {
				continue // a hook never filters its own bundle's listeners
			}
			byBundle[l.owner] = append(byBundle[l.owner], i)
		}

		before := make(map[int64]map[int]bool, len(byBundle))
		for owner, idxs := range byBundle {
			set := make(map[int]bool, len(idxs))
			for _, i := range idxs {
				set[i] = true
			}
			before[owner] = set
		}

		d.safeCall(func() { h.hook.FilterServiceEvent(evt, byBundle) }, "hook", h.owner)

		// Any index a hook dropped from its bundle's slice is suppressed.
		suppressed := make(map[int]bool)
		for owner, beforeSet := range before {
			afterSet := make(map[int]bool, len(byBundle[owner]))
			for _, i := range byBundle[owner] {
				afterSet[i] = true
			}
			for i := range beforeSet {
				if !afterSet[i] {
					suppressed[i] = true
				}
			}
		}
		for i := range suppressed {
			listeners[i].fn = nil
		}
	}
}

// safeCall invokes fn, recovering from and logging any panic so delivery
// continues to the remaining listeners.
func (d *Dispatcher) safeCall(fn func(), kind string, owner int64) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("listener panicked",
				zap.String("event.kind", kind),
				zap.Int64("bundle", owner),
				zap.Any("recover", fmt.Sprint(r)),
			)
		}
	}()
	fn()
}
