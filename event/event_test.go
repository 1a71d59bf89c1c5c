package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvus-rt/corvus/event"
	"github.com/corvus-rt/corvus/filter"
)

type recordingServiceListener struct {
	events []event.ServiceEvent
}

func (l *recordingServiceListener) HandleServiceEvent(evt event.ServiceEvent) {
	l.events = append(l.events, evt)
}

type recordingBundleListener struct {
	kinds []event.BundleEventKind
}

func (l *recordingBundleListener) HandleBundleEvent(evt event.BundleEvent) {
	l.kinds = append(l.kinds, evt.Kind)
}

func TestServiceListener_FilterMatch(t *testing.T) {
	d := event.New(nil)
	l := &recordingServiceListener{}
	f := filter.MustParse("(test=true)")

	require.True(t, d.AddServiceListener(1, l, f))

	d.PublishServiceEvent(event.ServiceEvent{Kind: event.Registered, Properties: map[string]any{"test": true}})
	d.PublishServiceEvent(event.ServiceEvent{Kind: event.Registered, Properties: map[string]any{"test": false}})

	require.Len(t, l.events, 1)
	assert.Equal(t, event.Registered, l.events[0].Kind)
}

func TestModifiedEndMatchPromotion(t *testing.T) {
	d := event.New(nil)
	l := &recordingServiceListener{}
	f := filter.MustParse("(k=1)")
	require.True(t, d.AddServiceListener(1, l, f))

	d.PublishServiceEvent(event.ServiceEvent{Kind: event.Registered, Properties: map[string]any{"k": "1"}})
	d.PublishServiceEvent(event.ServiceEvent{
		Kind:               event.Modified,
		Properties:         map[string]any{"k": "2"},
		PreviousProperties: map[string]any{"k": "1"},
	})
	d.PublishServiceEvent(event.ServiceEvent{
		Kind:               event.Modified,
		Properties:         map[string]any{"k": "1"},
		PreviousProperties: map[string]any{"k": "2"},
	})

	require.Len(t, l.events, 3)
	assert.Equal(t, event.Registered, l.events[0].Kind)
	assert.Equal(t, event.ModifiedEndMatch, l.events[1].Kind)
	assert.Equal(t, event.Modified, l.events[2].Kind)
}

func TestAddListener_IdempotentDuplicate(t *testing.T) {
	d := event.New(nil)
	l := &recordingBundleListener{}

	assert.True(t, d.AddBundleListener(1, l))
	assert.False(t, d.AddBundleListener(1, l))
	assert.True(t, d.RemoveBundleListener(1, l))
	assert.False(t, d.RemoveBundleListener(1, l))
}

func TestRemoveListenersForBundle(t *testing.T) {
	d := event.New(nil)
	l := &recordingBundleListener{}
	require.True(t, d.AddBundleListener(7, l))

	d.RemoveListenersForBundle(7)
	d.PublishBundleEvent(event.BundleEvent{Kind: event.Started, BundleID: 7})

	assert.Empty(t, l.kinds)
}

type suppressingHook struct{ target int64 }

func (h *suppressingHook) FilterServiceEvent(_ event.ServiceEvent, listenersByBundle map[int64][]int) {
	delete(listenersByBundle, h.target)
}

func TestEventListenerHook_SuppressesDelivery(t *testing.T) {
	d := event.New(nil)
	victim := &recordingServiceListener{}
	survivor := &recordingServiceListener{}

	require.True(t, d.AddServiceListener(2, victim, nil))
	require.True(t, d.AddServiceListener(3, survivor, nil))
	require.True(t, d.AddEventListenerHook(1, &suppressingHook{target: 2}))

	d.PublishServiceEvent(event.ServiceEvent{Kind: event.Registered, Properties: map[string]any{}})

	assert.Empty(t, victim.events)
	assert.Len(t, survivor.events, 1)
}

func TestEventListenerHook_NeverSeesOwnBundle(t *testing.T) {
	d := event.New(nil)
	self := &recordingServiceListener{}
	require.True(t, d.AddServiceListener(1, self, nil))
	require.True(t, d.AddEventListenerHook(1, &suppressingHook{target: 1}))

	d.PublishServiceEvent(event.ServiceEvent{Kind: event.Registered, Properties: map[string]any{}})

	assert.Len(t, self.events, 1)
}

type countingStopListener struct{ calls int }

func (l *countingStopListener) HandleFrameworkStop() { l.calls++ }

func TestStopListener_DeliveredOnce(t *testing.T) {
	d := event.New(nil)
	l := &countingStopListener{}
	require.True(t, d.AddFrameworkStopListener(1, l))

	d.PublishFrameworkStop()
	assert.Equal(t, 1, l.calls)
}
