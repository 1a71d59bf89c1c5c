package bundle

import (
	"github.com/google/uuid"

	"github.com/corvus-rt/corvus/corvuserr"
)

// MemUnit is an in-memory code unit: a symbolic name, version, activator,
// and an opaque payload the component store's Enumerator inspects to
// produce factory declarations.
type MemUnit struct {
	SymbolicName string
	Version      string
	Activator    Activator
	Payload      any
}

// MemLoader is a reference CodeLoader backed by an in-memory registry of
// units keyed by location, for tests and for hosts that assemble bundles
// from Go values instead of dynamically loaded code. Every unit it mints is
// tagged with a generated id so Reload can distinguish successive versions
// of the same logical unit even when the caller supplies no version string.
type MemLoader struct {
	units map[string]*MemUnit
}

// NewMemLoader creates an empty loader.
func NewMemLoader() *MemLoader {
	return &MemLoader{units: make(map[string]*MemUnit)}
}

// Register makes unit loadable at location. If unit.Version is empty, a
// fresh generated id is assigned so the unit still carries a distinct
// version across re-registration at the same location (as update does via
// Reload).
func (l *MemLoader) Register(location string, unit *MemUnit) {
	if unit.Version == "" {
		unit.Version = uuid.NewString()
	}
	l.units[location] = unit
}

func (l *MemLoader) Load(location string) (any, string, string, Activator, error) {
	unit, ok := l.units[location]
	if !ok {
		return nil, "", "", nil, corvuserr.LoadFailed(location, nil)
	}
	return unit, unit.SymbolicName, unit.Version, unit.Activator, nil
}

func (l *MemLoader) Reload(codeUnit any) (any, error) {
	unit, ok := codeUnit.(*MemUnit)
	if !ok {
		return nil, corvuserr.New(corvuserr.CodeLoadFailed, "code unit is not a *MemUnit", nil)
	}
	reloaded, ok := l.units[locationOf(l, unit)]
	if !ok {
		return nil, corvuserr.New(corvuserr.CodeLoadFailed, "unit is no longer registered", nil)
	}
	return reloaded, nil
}

func locationOf(l *MemLoader, unit *MemUnit) string {
	for loc, u := range l.units {
		if u == unit {
			return loc
		}
	}
	return ""
}
