// Package component implements the component container: factory
// declarations, dependency handlers, the provided-service handler, and the
// component instance lifecycle state machine (check_lifecycle, bind/unbind,
// kill, property reflection).
package component

// Requirement describes one field a component factory wants bound to a
// matching service. Spec is the single interface name the field requires;
// SubFilter (possibly empty) is ANDed with the objectClass match.
type Requirement struct {
	FieldName string
	Spec      string
	SubFilter string
	Aggregate bool
	Optional  bool
}

// Callbacks is the lifecycle callback table a factory declaration supplies
// explicitly: the CodeLoader's Enumerator hands the store one of these per
// factory, rather than the runtime discovering annotated methods by
// inspecting the user type. Every field is optional; a nil callback is
// simply skipped.
type Callbacks struct {
	OnValidate   func(obj any) error
	OnInvalidate func(obj any)
	OnBind       func(obj any, fieldName string, svc any) error
	OnUnbind     func(obj any, fieldName string, svc any) error
}

// AutoInstance is an inline instance a factory declaration asks to be
// created immediately after the factory itself is registered.
type AutoInstance struct {
	Name       string
	Properties map[string]any
}

// FactoryDeclaration enumerates everything the store needs to register a
// factory and instantiate components from it: provided interface sets,
// requirements, default properties, the field↔property reflection table,
// and the lifecycle callback table.
type FactoryDeclaration struct {
	Name              string
	Provides          [][]string
	Requirements      []Requirement
	DefaultProperties map[string]any
	// PropertyFields maps a declared property name to a struct field name on
	// the instance object. Nothing reads it: Instance.GetProperty and
	// SetProperty work on the instance's property map only and never set or
	// read a struct field.
	PropertyFields map[string]string
	// New constructs a fresh, zeroed instance object. Required fields are
	// injected by reflection once dependencies bind.
	New       func() any
	Callbacks Callbacks
	// AutoInstances are created immediately once this factory registers.
	AutoInstances []AutoInstance
}

// Enumerator inspects a CodeLoader code unit and returns the factory
// declarations it contains, instead of discovering them by scanning the
// user type for annotated methods: a CodeLoader implementation owns how
// code unit -> []FactoryDeclaration actually happens.
type Enumerator interface {
	Enumerate(codeUnit any) ([]FactoryDeclaration, error)
}

// CodeUnitProvider resolves a bundle id to the code unit the store should
// hand to Enumerator, wired by the framework to its bundle table.
type CodeUnitProvider func(bundleID int64) (codeUnit any, ok bool)

// EventKind enumerates the iPOPO-style lifecycle events the store emits.
type EventKind int

const (
	Registered EventKind = iota
	Unregistered
	Instantiated
	Validated
	Invalidated
	Bound
	Unbound
	Killed
)

func (k EventKind) String() string {
	switch k {
	case Registered:
		return "REGISTERED"
	case Unregistered:
		return "UNREGISTERED"
	case Instantiated:
		return "INSTANTIATED"
	case Validated:
		return "VALIDATED"
	case Invalidated:
		return "INVALIDATED"
	case Bound:
		return "BOUND"
	case Unbound:
		return "UNBOUND"
	case Killed:
		return "KILLED"
	default:
		return "UNKNOWN"
	}
}

// Event is delivered to every registered Listener, on the calling thread.
type Event struct {
	Kind         EventKind
	FactoryName  string
	InstanceName string
	FieldName    string // populated for Bound/Unbound
}

// Listener receives component store events.
type Listener interface {
	HandleComponentEvent(Event)
}
