package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvus-rt/corvus/event"
	"github.com/corvus-rt/corvus/filter"
	"github.com/corvus-rt/corvus/registry"
)

func newRegistry() *registry.Registry {
	return registry.New(event.New(nil))
}

type echo struct{ value string }

func TestRegister_AssignsReservedProperties(t *testing.T) {
	r := newRegistry()
	reg, err := r.Register(1, []string{"IEcho"}, &echo{"hi"}, nil, registry.KindSingleton)
	require.NoError(t, err)

	ref := reg.Reference()
	assert.Equal(t, []string{"IEcho"}, ref.ObjectClass())
	assert.Equal(t, int64(1), ref.Bundle())
	assert.Equal(t, 0, ref.Ranking())
	assert.NotZero(t, ref.ServiceID())
}

func TestRegister_RejectsEmptySpecs(t *testing.T) {
	r := newRegistry()
	_, err := r.Register(1, nil, &echo{}, nil, registry.KindSingleton)
	assert.Error(t, err)
}

func TestFindAll_OrdersByRankingThenID(t *testing.T) {
	r := newRegistry()
	low, _ := r.Register(1, []string{"IEcho"}, &echo{"low"}, map[string]any{"service.ranking": 0}, registry.KindSingleton)
	high, _ := r.Register(1, []string{"IEcho"}, &echo{"high"}, map[string]any{"service.ranking": 10}, registry.KindSingleton)
	mid, _ := r.Register(1, []string{"IEcho"}, &echo{"mid"}, map[string]any{"service.ranking": 10}, registry.KindSingleton)

	refs := r.FindAll("IEcho", nil)
	require.Len(t, refs, 3)
	assert.Equal(t, high.Reference().ServiceID(), refs[0].ServiceID())
	assert.Equal(t, mid.Reference().ServiceID(), refs[1].ServiceID())
	assert.Equal(t, low.Reference().ServiceID(), refs[2].ServiceID())
}

func TestFindAll_FiltersByObjectClassAndFilter(t *testing.T) {
	r := newRegistry()
	_, _ = r.Register(1, []string{"IEcho"}, &echo{}, map[string]any{"region": "east"}, registry.KindSingleton)
	want, _ := r.Register(1, []string{"IEcho"}, &echo{}, map[string]any{"region": "west"}, registry.KindSingleton)
	_, _ = r.Register(1, []string{"IOther"}, &echo{}, map[string]any{"region": "west"}, registry.KindSingleton)

	refs := r.FindAll("IEcho", filter.MustParse("(region=west)"))
	require.Len(t, refs, 1)
	assert.Equal(t, want.Reference().ServiceID(), refs[0].ServiceID())
}

func TestUnregister_RemovesFromFindAndGet(t *testing.T) {
	r := newRegistry()
	reg, _ := r.Register(1, []string{"IEcho"}, &echo{}, nil, registry.KindSingleton)

	require.NoError(t, reg.Unregister())
	assert.Empty(t, r.FindAll("IEcho", nil))
	assert.False(t, reg.Reference().IsValid())

	_, err := r.Get(2, reg.Reference())
	assert.Error(t, err)
}

func TestUpdateProperties_MergesAndStripsReserved(t *testing.T) {
	r := newRegistry()
	reg, _ := r.Register(1, []string{"IEcho"}, &echo{}, nil, registry.KindSingleton)

	err := reg.UpdateProperties(map[string]any{"k": "v", "service.id": 999})
	require.NoError(t, err)

	props := reg.Reference().Properties()
	assert.Equal(t, "v", props["k"])
	assert.Equal(t, reg.Reference().ServiceID(), props["service.id"])
}

func TestGet_SingletonSharesSameInstance(t *testing.T) {
	r := newRegistry()
	svc := &echo{"shared"}
	reg, _ := r.Register(1, []string{"IEcho"}, svc, nil, registry.KindSingleton)

	a, err := r.Get(2, reg.Reference())
	require.NoError(t, err)
	b, err := r.Get(3, reg.Reference())
	require.NoError(t, err)
	assert.Same(t, svc, a)
	assert.Same(t, svc, b)
}

type countingFactory struct {
	calls  int
	ungets int
}

func (f *countingFactory) GetService(consumer int64) (any, error) {
	f.calls++
	return &echo{"instance"}, nil
}

func (f *countingFactory) UngetService(consumer int64, service any) {
	f.ungets++
}

func TestGet_ServiceFactoryCachedPerConsumer(t *testing.T) {
	r := newRegistry()
	factory := &countingFactory{}
	reg, err := r.Register(1, []string{"IEcho"}, factory, nil, registry.KindServiceFactory)
	require.NoError(t, err)

	a1, err := r.Get(2, reg.Reference())
	require.NoError(t, err)
	a2, err := r.Get(2, reg.Reference())
	require.NoError(t, err)
	assert.Same(t, a1, a2)
	assert.Equal(t, 1, factory.calls)

	b1, err := r.Get(3, reg.Reference())
	require.NoError(t, err)
	assert.NotSame(t, a1, b1)
	assert.Equal(t, 2, factory.calls)
}

func TestUnget_ReleasesFactoryOnLastEdge(t *testing.T) {
	r := newRegistry()
	factory := &countingFactory{}
	reg, _ := r.Register(1, []string{"IEcho"}, factory, nil, registry.KindServiceFactory)

	_, err := r.Get(2, reg.Reference())
	require.NoError(t, err)
	_, err = r.Get(2, reg.Reference())
	require.NoError(t, err)
	assert.Equal(t, 1, factory.calls)
	assert.Equal(t, 0, factory.ungets)

	require.NoError(t, r.Unget(2, reg.Reference()))
	assert.Equal(t, 0, factory.ungets, "one edge remains")

	require.NoError(t, r.Unget(2, reg.Reference()))
	assert.Equal(t, 1, factory.ungets, "last edge released")
}

func TestGetPrototype_ProducesFreshInstancePerCall(t *testing.T) {
	r := newRegistry()
	factory := &countingFactory{}
	reg, _ := r.Register(1, []string{"IEcho"}, factory, nil, registry.KindPrototypeFactory)

	h1, err := r.GetPrototype(2, reg.Reference())
	require.NoError(t, err)
	h2, err := r.GetPrototype(2, reg.Reference())
	require.NoError(t, err)
	assert.NotSame(t, h1.Service, h2.Service)
	assert.Equal(t, 2, factory.calls)

	h1.Unget()
	assert.Equal(t, 1, factory.ungets)
	h2.Unget()
	assert.Equal(t, 2, factory.ungets)
}

func TestReleaseBundle_UnregistersOwnedAndUngetsConsumed(t *testing.T) {
	r := newRegistry()
	owned, _ := r.Register(10, []string{"IEcho"}, &echo{}, nil, registry.KindSingleton)
	factory := &countingFactory{}
	consumedReg, _ := r.Register(20, []string{"IEcho"}, factory, nil, registry.KindServiceFactory)

	_, err := r.Get(10, consumedReg.Reference())
	require.NoError(t, err)

	r.ReleaseBundle(10)

	assert.False(t, owned.Reference().IsValid())
	assert.Equal(t, 1, factory.ungets)
}

func TestTypedKey_GetAndFindOne(t *testing.T) {
	r := newRegistry()
	key := registry.NewServiceKey[*echo]("IEcho")
	svc := &echo{"typed"}
	reg, _ := r.Register(1, []string{key.Spec()}, svc, nil, registry.KindSingleton)

	got, err := registry.GetTyped[*echo](r, 2, reg.Reference())
	require.NoError(t, err)
	assert.Same(t, svc, got)

	found, ref, err := registry.FindOneTyped[*echo](r, 2, key, nil)
	require.NoError(t, err)
	assert.Same(t, svc, found)
	assert.Equal(t, reg.Reference().ServiceID(), ref.ServiceID())
}
