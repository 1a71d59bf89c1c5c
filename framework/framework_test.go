package framework_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvus-rt/corvus/bundle"
	"github.com/corvus-rt/corvus/component"
	"github.com/corvus-rt/corvus/corvuserr"
	"github.com/corvus-rt/corvus/framework"
	"github.com/corvus-rt/corvus/registry"
)

type nopEnumerator struct{}

func (nopEnumerator) Enumerate(any) ([]component.FactoryDeclaration, error) { return nil, nil }

type echoActivator struct {
	startErr error
	stopErr  error
	started  bool
	stopped  bool
}

func (a *echoActivator) Start(ctx *bundle.Context) error {
	a.started = true
	if a.startErr != nil {
		return a.startErr
	}
	_, err := ctx.RegisterService([]string{"IEcho"}, "svc", nil, registry.KindSingleton)
	return err
}

func (a *echoActivator) Stop(ctx *bundle.Context) error {
	a.stopped = true
	return a.stopErr
}

func newFramework(loader *bundle.MemLoader) *framework.Framework {
	return framework.New(&framework.Config{SymbolicName: "test.framework"}, loader, nopEnumerator{}, nil)
}

func TestStart_ActivatesInstalledBundles(t *testing.T) {
	loader := bundle.NewMemLoader()
	a1, a2 := &echoActivator{}, &echoActivator{}
	loader.Register("mem://one", &bundle.MemUnit{SymbolicName: "one", Activator: a1})
	loader.Register("mem://two", &bundle.MemUnit{SymbolicName: "two", Activator: a2})

	f := newFramework(loader)
	id1, err := f.InstallBundle("mem://one")
	require.NoError(t, err)
	id2, err := f.InstallBundle("mem://two")
	require.NoError(t, err)

	require.NoError(t, f.Start())
	assert.Equal(t, framework.StateActive, f.State())
	assert.True(t, a1.started)
	assert.True(t, a2.started)

	refs := f.Registry().FindAll("IEcho", nil)
	assert.Len(t, refs, 2)

	require.NoError(t, f.StopBundle(id1))
	require.NoError(t, f.StopBundle(id2))
}

func TestStop_StopsActiveBundles(t *testing.T) {
	loader := bundle.NewMemLoader()
	a1, a2 := &echoActivator{}, &echoActivator{}
	loader.Register("mem://one", &bundle.MemUnit{SymbolicName: "one", Activator: a1})
	loader.Register("mem://two", &bundle.MemUnit{SymbolicName: "two", Activator: a2})

	f := newFramework(loader)
	_, err := f.InstallBundle("mem://one")
	require.NoError(t, err)
	_, err = f.InstallBundle("mem://two")
	require.NoError(t, err)
	require.NoError(t, f.Start())

	require.NoError(t, f.Stop())
	assert.Equal(t, framework.StateStopped, f.State())
	assert.True(t, a1.stopped)
	assert.True(t, a2.stopped)
	assert.Empty(t, f.Registry().FindAll("IEcho", nil))
}

func TestWaitForStop_ReturnsTrueAfterStop(t *testing.T) {
	loader := bundle.NewMemLoader()
	f := newFramework(loader)
	require.NoError(t, f.Start())

	done := make(chan bool, 1)
	go func() { done <- f.WaitForStop(time.Second) }()

	require.NoError(t, f.Stop())
	assert.True(t, <-done)
}

func TestWaitForStop_TimesOutWhileActive(t *testing.T) {
	loader := bundle.NewMemLoader()
	f := newFramework(loader)
	require.NoError(t, f.Start())

	assert.False(t, f.WaitForStop(10*time.Millisecond))
}

func TestStart_MirrorsSystemBundleThroughActive(t *testing.T) {
	loader := bundle.NewMemLoader()
	f := newFramework(loader)

	state, ok := f.BundleState(bundle.SystemBundleID)
	require.True(t, ok)
	assert.Equal(t, bundle.Resolved, state)

	require.NoError(t, f.Start())
	state, ok = f.BundleState(bundle.SystemBundleID)
	require.True(t, ok)
	assert.Equal(t, bundle.Active, state)

	require.NoError(t, f.Stop())
	state, ok = f.BundleState(bundle.SystemBundleID)
	require.True(t, ok)
	assert.Equal(t, bundle.Resolved, state)
}

func TestStart_AbortsOnFrameworkStopRequest(t *testing.T) {
	loader := bundle.NewMemLoader()
	a1 := &echoActivator{}
	a2 := &echoActivator{startErr: corvuserr.FrameworkError("refusing to start", nil, true)}
	loader.Register("mem://one", &bundle.MemUnit{SymbolicName: "one", Activator: a1})
	loader.Register("mem://two", &bundle.MemUnit{SymbolicName: "two", Activator: a2})

	f := newFramework(loader)
	_, err := f.InstallBundle("mem://one")
	require.NoError(t, err)
	_, err = f.InstallBundle("mem://two")
	require.NoError(t, err)

	err = f.Start()
	require.Error(t, err)
	assert.Equal(t, framework.StateStopped, f.State())

	state, ok := f.BundleState(bundle.SystemBundleID)
	require.True(t, ok)
	assert.Equal(t, bundle.Resolved, state)

	assert.True(t, a1.started)
	assert.True(t, a1.stopped, "the bundle that did start must be unwound")
	assert.Empty(t, f.Registry().FindAll("IEcho", nil))
}

func TestInstallBundles_StopsAtFirstFailure(t *testing.T) {
	loader := bundle.NewMemLoader()
	loader.Register("mem://good", &bundle.MemUnit{SymbolicName: "good"})

	f := newFramework(loader)
	ids, err := f.InstallBundles(
		framework.BundleSpec{Location: "mem://good"},
		framework.BundleSpec{Location: "mem://missing"},
	)
	require.Error(t, err)
	assert.Len(t, ids, 1)
}
