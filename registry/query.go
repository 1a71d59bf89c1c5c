package registry

import "github.com/corvus-rt/corvus/filter"

// FindAll returns every active reference whose objectClass contains spec (or
// every active reference, if spec is empty) and whose properties satisfy f,
// ordered by Less. A reference mid-UNREGISTERING is never returned here even
// though Get still resolves it for listeners in flight.
func (r *Registry) FindAll(spec string, f *filter.Filter) []Reference {
	eff := EffectiveFilter(spec, f)

	r.mu.Lock()
	var matched []Reference
	for id, rec := range r.records {
		if rec.state != stateActive {
			continue
		}
		if eff.Matches(rec.props) {
			matched = append(matched, Reference{reg: r, id: id})
		}
	}
	r.mu.Unlock()

	sortRefs(matched)
	return matched
}

// FindOne returns the highest-ranked active reference matching spec and f,
// or the zero Reference and false if none match.
func (r *Registry) FindOne(spec string, f *filter.Filter) (Reference, bool) {
	all := r.FindAll(spec, f)
	if len(all) == 0 {
		return Reference{}, false
	}
	return all[0], true
}

// RecordInfo is a point-in-time diagnostic snapshot of one registration, for
// inspection tooling and tests.
type RecordInfo struct {
	ServiceID   int64
	Bundle      int64
	ObjectClass []string
	Properties  map[string]any
	Kind        Kind
	Consumers   []int64
}

// Inspect returns a diagnostic snapshot of every registration not yet
// removed, including one mid-UNREGISTERING, in no particular order.
func (r *Registry) Inspect() []RecordInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RecordInfo, 0, len(r.records))
	for _, rec := range r.records {
		if rec.state == stateRemoved {
			continue
		}
		consumers := make([]int64, 0, len(rec.usingEdges))
		for c := range rec.usingEdges {
			consumers = append(consumers, c)
		}
		out = append(out, RecordInfo{
			ServiceID:   rec.id,
			Bundle:      rec.owner,
			ObjectClass: append([]string(nil), rec.specs...),
			Properties:  copyProps(rec.props),
			Kind:        rec.kind,
			Consumers:   consumers,
		})
	}
	return out
}

// InspectOne returns the diagnostic snapshot for a single service id.
func (r *Registry) InspectOne(serviceID int64) (RecordInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[serviceID]
	if !ok || rec.state == stateRemoved {
		return RecordInfo{}, false
	}
	consumers := make([]int64, 0, len(rec.usingEdges))
	for c := range rec.usingEdges {
		consumers = append(consumers, c)
	}
	return RecordInfo{
		ServiceID:   rec.id,
		Bundle:      rec.owner,
		ObjectClass: append([]string(nil), rec.specs...),
		Properties:  copyProps(rec.props),
		Kind:        rec.kind,
		Consumers:   consumers,
	}, true
}
