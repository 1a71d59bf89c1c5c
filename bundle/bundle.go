// Package bundle implements the bundle table and lifecycle state machine:
// install/start/stop/update/uninstall, the per-bundle BundleContext
// capability, and the CodeLoader collaborator interface the framework
// defers all code resolution to.
package bundle

import "sync"

// State enumerates a bundle's lifecycle position.
type State int

const (
	Installed State = iota
	Resolved
	Starting
	Active
	Stopping
	StoppingPreclean
	Stopped
	Uninstalled
)

func (s State) String() string {
	switch s {
	case Installed:
		return "INSTALLED"
	case Resolved:
		return "RESOLVED"
	case Starting:
		return "STARTING"
	case Active:
		return "ACTIVE"
	case Stopping:
		return "STOPPING"
	case StoppingPreclean:
		return "STOPPING_PRECLEAN"
	case Stopped:
		return "STOPPED"
	case Uninstalled:
		return "UNINSTALLED"
	default:
		return "UNKNOWN"
	}
}

// Activator is the code a bundle runs at start/stop. The activator returned
// by CodeLoader.Load implements this directly or is nil, for bundles with no
// lifecycle code.
type Activator interface {
	Start(ctx *Context) error
	Stop(ctx *Context) error
}

// CodeLoader is the required collaborator the framework defers all code
// location/resolution to. The implementer chooses how code is actually
// loaded (dynamic load, static registration, in-memory table); the bundle
// table does not care.
type CodeLoader interface {
	// Load resolves location to a code unit, its symbolic name, a version
	// string, and an optional activator.
	Load(location string) (codeUnit any, symbolicName string, version string, activator Activator, err error)
	// Reload re-resolves an existing code unit, for bundle.update.
	Reload(codeUnit any) (any, error)
}

// Bundle is one entry in the Table. The system bundle (id 0) represents the
// framework itself and has no activator of its own.
type Bundle struct {
	mu sync.Mutex

	id           int64
	location     string
	symbolicName string
	version      string
	state        State
	codeUnit     any
	activator    Activator
}

func (b *Bundle) ID() int64            { return b.id }
func (b *Bundle) SymbolicName() string { return b.symbolicName }
func (b *Bundle) Location() string     { return b.location }
func (b *Bundle) Version() string      { return b.version }
func (b *Bundle) CodeUnit() any        { return b.codeUnit }

// Headers is a read-only snapshot of a bundle's identifying manifest fields,
// for inspection tooling that wants a value rather than the live *Bundle.
type Headers struct {
	SymbolicName string
	Version      string
	Location     string
}

// Headers returns a point-in-time copy of b's manifest fields.
func (b *Bundle) Headers() Headers {
	return Headers{SymbolicName: b.symbolicName, Version: b.version, Location: b.location}
}

func (b *Bundle) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bundle) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}
