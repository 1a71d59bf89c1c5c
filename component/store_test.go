package component_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvus-rt/corvus/component"
	"github.com/corvus-rt/corvus/event"
	"github.com/corvus-rt/corvus/registry"
)

type echo struct{ tag string }

func (e *echo) GetService(int64) (any, error) { return e, nil }
func (e *echo) UngetService(int64, any)       {}

type consumer struct {
	Dep any
}

func echoFactoryDecl(name string, fieldName string, validated, invalidated *int) component.FactoryDeclaration {
	return component.FactoryDeclaration{
		Name:         name,
		Requirements: []component.Requirement{{FieldName: fieldName, Spec: "IEcho"}},
		New:          func() any { return &consumer{} },
		Callbacks: component.Callbacks{
			OnValidate:   func(any) error { *validated++; return nil },
			OnInvalidate: func(any) { *invalidated++ },
		},
	}
}

type staticEnumerator struct {
	decls []component.FactoryDeclaration
}

func (s staticEnumerator) Enumerate(any) ([]component.FactoryDeclaration, error) {
	return s.decls, nil
}

func newStore(t *testing.T, enum component.Enumerator, running bool) (*component.Store, *registry.Registry, *event.Dispatcher) {
	t.Helper()
	d := event.New(nil)
	r := registry.New(d)
	units := func(int64) (any, bool) { return struct{}{}, true }
	s := component.New(r, d, enum, units, func() bool { return running }, nil)
	return s, r, d
}

func TestInstantiate_BindsExistingServiceAndValidates(t *testing.T) {
	store, reg, _ := newStore(t, staticEnumerator{}, true)
	var validated, invalidated int
	decl := echoFactoryDecl("echo.factory", "Dep", &validated, &invalidated)

	require.NoError(t, store.RegisterFactory(1, decl))

	_, err := reg.Register(2, []string{"IEcho"}, &echo{tag: "svc"}, nil, registry.KindSingleton)
	require.NoError(t, err)

	inst, err := store.Instantiate("echo.factory", "echo.instance", nil)
	require.NoError(t, err)
	assert.Equal(t, component.StateValid, inst.State())
	assert.Equal(t, 1, validated)
	assert.Equal(t, 0, invalidated)
}

func TestInstantiate_StaysInvalidWithNoMatchingService(t *testing.T) {
	store, _, _ := newStore(t, staticEnumerator{}, true)
	var validated, invalidated int
	decl := echoFactoryDecl("echo.factory", "Dep", &validated, &invalidated)
	require.NoError(t, store.RegisterFactory(1, decl))

	inst, err := store.Instantiate("echo.factory", "echo.instance", nil)
	require.NoError(t, err)
	assert.Equal(t, component.StateInvalid, inst.State())
	assert.Equal(t, 0, validated)
}

func TestDependencyDeparture_InvalidatesThenRebindsOnArrival(t *testing.T) {
	store, reg, _ := newStore(t, staticEnumerator{}, true)
	var validated, invalidated int
	decl := echoFactoryDecl("echo.factory", "Dep", &validated, &invalidated)
	require.NoError(t, store.RegisterFactory(1, decl))

	regHandle, err := reg.Register(2, []string{"IEcho"}, &echo{tag: "first"}, nil, registry.KindSingleton)
	require.NoError(t, err)

	inst, err := store.Instantiate("echo.factory", "echo.instance", nil)
	require.NoError(t, err)
	require.Equal(t, component.StateValid, inst.State())

	require.NoError(t, regHandle.Unregister())
	assert.Equal(t, component.StateInvalid, inst.State())
	assert.Equal(t, 1, invalidated)

	_, err = reg.Register(2, []string{"IEcho"}, &echo{tag: "second"}, nil, registry.KindSingleton)
	require.NoError(t, err)
	assert.Equal(t, component.StateValid, inst.State())
	assert.Equal(t, 2, validated)
}

func TestRegisterFactory_DuplicateNameFails(t *testing.T) {
	store, _, _ := newStore(t, staticEnumerator{}, true)
	var v1, i1 int
	decl := echoFactoryDecl("dup", "Dep", &v1, &i1)
	require.NoError(t, store.RegisterFactory(1, decl))
	err := store.RegisterFactory(1, decl)
	assert.Error(t, err)
}

func TestInstantiate_DuplicateInstanceNameFails(t *testing.T) {
	store, _, _ := newStore(t, staticEnumerator{}, true)
	var v1, i1 int
	decl := echoFactoryDecl("f", "Dep", &v1, &i1)
	require.NoError(t, store.RegisterFactory(1, decl))

	_, err := store.Instantiate("f", "inst", nil)
	require.NoError(t, err)
	_, err = store.Instantiate("f", "inst", nil)
	assert.Error(t, err)
}

func TestHandleBundleEvent_StartingEnumeratesAndAutoInstantiates(t *testing.T) {
	var validated, invalidated int
	decl := echoFactoryDecl("auto.factory", "Dep", &validated, &invalidated)
	decl.AutoInstances = []component.AutoInstance{{Name: "auto.instance"}}

	store, _, _ := newStore(t, staticEnumerator{decls: []component.FactoryDeclaration{decl}}, true)

	store.HandleBundleEvent(event.BundleEvent{Kind: event.Starting, BundleID: 7})

	assert.True(t, store.IsRegisteredFactory("auto.factory"))
	assert.True(t, store.IsRegisteredInstance("auto.instance"))
}

func TestHandleBundleEvent_StoppingPrecleanKillsOwnedInstances(t *testing.T) {
	var validated, invalidated int
	decl := echoFactoryDecl("owned.factory", "Dep", &validated, &invalidated)
	decl.AutoInstances = []component.AutoInstance{{Name: "owned.instance"}}

	store, _, _ := newStore(t, staticEnumerator{decls: []component.FactoryDeclaration{decl}}, true)
	store.HandleBundleEvent(event.BundleEvent{Kind: event.Starting, BundleID: 9})
	require.True(t, store.IsRegisteredInstance("owned.instance"))

	store.HandleBundleEvent(event.BundleEvent{Kind: event.StoppingPreclean, BundleID: 9})

	assert.False(t, store.IsRegisteredInstance("owned.instance"))
	assert.False(t, store.IsRegisteredFactory("owned.factory"))
}

func TestGetWaitingComponents_ListsUnvalidatedInstances(t *testing.T) {
	var validated, invalidated int
	decl := echoFactoryDecl("f", "Dep", &validated, &invalidated)
	store, _, _ := newStore(t, staticEnumerator{}, true)
	require.NoError(t, store.RegisterFactory(1, decl))

	_, err := store.Instantiate("f", "waiting", nil)
	require.NoError(t, err)

	waiting := store.GetWaitingComponents()
	require.Len(t, waiting, 1)
	assert.Equal(t, "waiting", waiting[0].Name)
	assert.Equal(t, "f", waiting[0].Factory)
	assert.Equal(t, []string{"Dep"}, waiting[0].UnmetRequirements)
}

func TestKill_RemovesInstanceAndUnregistersProvidedService(t *testing.T) {
	store, reg, _ := newStore(t, staticEnumerator{}, true)
	decl := component.FactoryDeclaration{
		Name:     "provider.factory",
		Provides: [][]string{{"IEcho"}},
		New:      func() any { return &consumer{} },
	}
	require.NoError(t, store.RegisterFactory(1, decl))

	_, err := store.Instantiate("provider.factory", "provider.instance", nil)
	require.NoError(t, err)

	require.Len(t, reg.FindAll("IEcho", nil), 1)
	require.NoError(t, store.Kill("provider.instance"))
	assert.False(t, store.IsRegisteredInstance("provider.instance"))
	assert.Empty(t, reg.FindAll("IEcho", nil))
}
