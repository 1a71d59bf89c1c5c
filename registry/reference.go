package registry

import "sort"

// Reference is the consumer-side handle to a service record: an opaque,
// comparable value a bundle holds onto, queries properties through, and
// passes back to Get/Unget/GetPrototype. Two References are equal exactly
// when they name the same registration.
type Reference struct {
	reg *Registry
	id  int64
}

// ServiceID returns the reserved service.id property.
func (ref Reference) ServiceID() int64 { return ref.id }

// Properties returns a defensive copy of the record's current properties,
// including the reserved objectClass/service.id/service.ranking keys.
func (ref Reference) Properties() map[string]any {
	ref.reg.mu.Lock()
	defer ref.reg.mu.Unlock()
	rec, ok := ref.reg.records[ref.id]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(rec.props))
	for k, v := range rec.props {
		out[k] = v
	}
	return out
}

// ObjectClass returns the interface names the service was registered under.
func (ref Reference) ObjectClass() []string {
	ref.reg.mu.Lock()
	defer ref.reg.mu.Unlock()
	rec, ok := ref.reg.records[ref.id]
	if !ok {
		return nil
	}
	return append([]string(nil), rec.specs...)
}

// Ranking returns the reserved service.ranking property.
func (ref Reference) Ranking() int {
	ref.reg.mu.Lock()
	defer ref.reg.mu.Unlock()
	rec, ok := ref.reg.records[ref.id]
	if !ok {
		return 0
	}
	return rec.rankingLocked()
}

// Bundle returns the id of the bundle that owns this registration.
func (ref Reference) Bundle() int64 {
	ref.reg.mu.Lock()
	defer ref.reg.mu.Unlock()
	rec, ok := ref.reg.records[ref.id]
	if !ok {
		return 0
	}
	return rec.owner
}

// IsValid reports whether the registration is still findable (not removed).
func (ref Reference) IsValid() bool {
	ref.reg.mu.Lock()
	defer ref.reg.mu.Unlock()
	rec, ok := ref.reg.records[ref.id]
	return ok && rec.state != stateRemoved
}

// Registration is the owner-side handle returned by Register.
type Registration struct {
	reg *Registry
	id  int64
}

// Reference returns the consumer-side handle for this same record.
func (r *Registration) Reference() Reference {
	return Reference{reg: r.reg, id: r.id}
}

// Unregister removes the registration, per the two-phase UNREGISTERING
// protocol documented on Registry.unregister.
func (r *Registration) Unregister() error {
	return r.reg.unregister(r.id)
}

// UpdateProperties merges newProps into the registration's current
// properties, silently discarding any reserved key, and emits MODIFIED (or
// nothing at all, if the merge is a no-op).
func (r *Registration) UpdateProperties(newProps map[string]any) error {
	return r.reg.updateProperties(r.id, newProps)
}

// Less orders two references by descending service.ranking then ascending
// service.id, the ordering every FindAll/FindOne result and every
// notification list is sorted by.
func Less(a, b Reference) bool {
	ra, rb := a.Ranking(), b.Ranking()
	if ra != rb {
		return ra > rb
	}
	return a.ServiceID() < b.ServiceID()
}

// sortRefs sorts refs in place by Less.
func sortRefs(refs []Reference) {
	sort.Slice(refs, func(i, j int) bool { return Less(refs[i], refs[j]) })
}
