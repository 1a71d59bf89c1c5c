package bundle

import (
	"github.com/corvus-rt/corvus/event"
	"github.com/corvus-rt/corvus/filter"
	"github.com/corvus-rt/corvus/registry"
)

// Context is the only object bundle code is given: a thin, per-bundle
// accounted wrapper over the table, registry, and dispatcher.
type Context struct {
	bundleID int64
	table    *Table
	reg      *registry.Registry
	disp     *event.Dispatcher
	props    PropertyGetter
}

// PropertyGetter resolves a framework property by name, wired to the
// framework's property store.
type PropertyGetter func(name string) (string, bool)

// NewContext creates the capability object for bundleID.
func NewContext(bundleID int64, t *Table, reg *registry.Registry, disp *event.Dispatcher, props PropertyGetter) *Context {
	return &Context{bundleID: bundleID, table: t, reg: reg, disp: disp, props: props}
}

// BundleID returns the owning bundle's id.
func (c *Context) BundleID() int64 { return c.bundleID }

// GetBundle returns the bundle with id, or this context's own bundle if id
// is nil.
func (c *Context) GetBundle(id *int64) (*Bundle, bool) {
	if id == nil {
		return c.table.Get(c.bundleID)
	}
	return c.table.Get(*id)
}

// InstallBundle installs location and returns the new bundle.
func (c *Context) InstallBundle(location string) (*Bundle, error) {
	return c.table.Install(location)
}

// RegisterService registers obj under specs on behalf of this bundle.
func (c *Context) RegisterService(specs []string, obj any, props map[string]any, kind registry.Kind) (*registry.Registration, error) {
	return c.reg.Register(c.bundleID, specs, obj, props, kind)
}

// GetServiceReference returns the highest-ranked reference matching spec
// and f.
func (c *Context) GetServiceReference(spec string, f *filter.Filter) (registry.Reference, bool) {
	return c.reg.FindOne(spec, f)
}

// GetAllServiceReferences returns every reference matching spec and f.
func (c *Context) GetAllServiceReferences(spec string, f *filter.Filter) []registry.Reference {
	return c.reg.FindAll(spec, f)
}

// GetService resolves ref and accounts the using edge on this bundle.
func (c *Context) GetService(ref registry.Reference) (any, error) {
	return c.reg.Get(c.bundleID, ref)
}

// GetServiceObjects returns a handle to a fresh prototype-factory instance.
func (c *Context) GetServiceObjects(ref registry.Reference) (*registry.PrototypeHandle, error) {
	return c.reg.GetPrototype(c.bundleID, ref)
}

// UngetService releases one using edge this bundle holds on ref.
func (c *Context) UngetService(ref registry.Reference) error {
	return c.reg.Unget(c.bundleID, ref)
}

// AddBundleListener registers fn, idempotently.
func (c *Context) AddBundleListener(fn event.BundleListener) bool {
	return c.disp.AddBundleListener(c.bundleID, fn)
}

// RemoveBundleListener unregisters fn.
func (c *Context) RemoveBundleListener(fn event.BundleListener) bool {
	return c.disp.RemoveBundleListener(c.bundleID, fn)
}

// AddServiceListener registers fn with an optional filter, idempotently. A
// malformed filter string fails registration before ever reaching the
// dispatcher.
func (c *Context) AddServiceListener(fn event.ServiceListener, filterString string) (bool, error) {
	f, err := filter.Parse(filterString)
	if err != nil {
		return false, err
	}
	return c.disp.AddServiceListener(c.bundleID, fn, f), nil
}

// RemoveServiceListener unregisters fn.
func (c *Context) RemoveServiceListener(fn event.ServiceListener) bool {
	return c.disp.RemoveServiceListener(c.bundleID, fn)
}

// AddFrameworkStopListener registers fn, idempotently.
func (c *Context) AddFrameworkStopListener(fn event.StopListener) bool {
	return c.disp.AddFrameworkStopListener(c.bundleID, fn)
}

// RemoveFrameworkStopListener unregisters fn.
func (c *Context) RemoveFrameworkStopListener(fn event.StopListener) bool {
	return c.disp.RemoveFrameworkStopListener(c.bundleID, fn)
}

// GetProperty resolves a framework property.
func (c *Context) GetProperty(name string) (string, bool) {
	if c.props == nil {
		return "", false
	}
	return c.props(name)
}
