package registry

// RegisterOption configures a registration's initial properties, a
// functional-options shape in place of a bare map literal at every call
// site.
type RegisterOption func(map[string]any)

// WithRanking sets the reserved service.ranking property.
func WithRanking(rank int) RegisterOption {
	return func(p map[string]any) { p[keyServiceRanking] = rank }
}

// WithProperty sets a single property.
func WithProperty(key string, value any) RegisterOption {
	return func(p map[string]any) { p[key] = value }
}

// WithProperties merges an entire property map.
func WithProperties(props map[string]any) RegisterOption {
	return func(p map[string]any) {
		for k, v := range props {
			p[k] = v
		}
	}
}

// mergeOptions applies opts in order over an empty property map, later
// options winning on key conflicts.
func mergeOptions(opts []RegisterOption) map[string]any {
	p := make(map[string]any, len(opts))
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RegisterOpts is Register with functional options in place of a raw
// property map, for callers that want WithRanking/WithProperty ergonomics.
func (r *Registry) RegisterOpts(owner int64, specs []string, svc any, kind Kind, opts ...RegisterOption) (*Registration, error) {
	return r.Register(owner, specs, svc, mergeOptions(opts), kind)
}
