package niri

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amiya-sh/amiya/events"
)

type fakeSource struct {
	workspaces []Workspace
	err        error
}

func (f *fakeSource) Workspaces(ctx context.Context) ([]Workspace, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.workspaces, nil
}

func newTestPoller(t *testing.T, source workspaceSource) (*Poller, *events.Subscriber) {
	t.Helper()
	bus := events.New(discardLogger(), 16)
	sub := bus.Subscribe()
	t.Cleanup(bus.Close)
	return NewPoller(discardLogger(), bus, source, time.Minute), sub
}

func drainEvents(sub *events.Subscriber) []events.Event {
	var out []events.Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPollerPublishesWorkspaces(t *testing.T) {
	source := &fakeSource{workspaces: []Workspace{
		{ID: 100, Idx: 1, Name: "web", IsActive: true, IsFocused: true},
		{ID: 101, Idx: 2, Name: "code"},
	}}
	poller, sub := newTestPoller(t, source)

	poller.poll(context.Background())

	evs := drainEvents(sub)
	require.Len(t, evs, 2)

	updated, ok := evs[0].(events.WorkspacesUpdated)
	require.True(t, ok)
	// Idx becomes the public ID; the compositor's internal id is not stable.
	require.Equal(t, []events.WorkspaceInfo{
		{ID: 1, Name: "web", Active: true, Focused: true},
		{ID: 2, Name: "code"},
	}, updated.Workspaces)

	require.Equal(t, events.WorkspaceChanged{ID: 1}, evs[1])
}

func TestPollerFocusChangeDetection(t *testing.T) {
	source := &fakeSource{workspaces: []Workspace{
		{Idx: 1, IsFocused: true},
		{Idx: 2},
	}}
	poller, sub := newTestPoller(t, source)
	ctx := context.Background()

	poller.poll(ctx)
	require.Len(t, drainEvents(sub), 2)

	// Same focus: only the periodic update.
	poller.poll(ctx)
	evs := drainEvents(sub)
	require.Len(t, evs, 1)
	_, ok := evs[0].(events.WorkspacesUpdated)
	require.True(t, ok)

	// Focus moved: update plus WorkspaceChanged.
	source.workspaces = []Workspace{
		{Idx: 1},
		{Idx: 2, IsFocused: true},
	}
	poller.poll(ctx)
	evs = drainEvents(sub)
	require.Len(t, evs, 2)
	require.Equal(t, events.WorkspaceChanged{ID: 2}, evs[1])
}

func TestPollerQueryFailure(t *testing.T) {
	poller, sub := newTestPoller(t, &fakeSource{err: errors.New("socket gone")})

	poller.poll(context.Background())
	require.Empty(t, drainEvents(sub))
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	source := &fakeSource{workspaces: []Workspace{{Idx: 1, IsFocused: true}}}
	bus := events.New(discardLogger(), 16)
	sub := bus.Subscribe()
	t.Cleanup(bus.Close)
	poller := NewPoller(discardLogger(), bus, source, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	// The immediate first poll delivers before any tick.
	select {
	case ev := <-sub.Events():
		_, ok := ev.(events.WorkspacesUpdated)
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("no event from first poll")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
