package events

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestBus(capacity int) *Bus {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, capacity)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := newTestBus(4)
	require.Equal(t, 0, bus.SubscriberCount())

	// Must be a silent no-op.
	bus.Publish(VolumeChanged{Level: 75, Muted: false})
	require.EqualValues(t, 0, bus.Dropped())
}

func TestSubscriberSeesOnlyFutureEvents(t *testing.T) {
	bus := newTestBus(8)

	for i := 0; i < 5; i++ {
		bus.Publish(BrightnessChanged{Level: float64(i)})
	}

	sub := bus.Subscribe()
	defer sub.Close()

	select {
	case evt := <-sub.Events():
		t.Fatalf("expected no buffered events, got %v", evt)
	default:
	}

	bus.Publish(VolumeChanged{Level: 50, Muted: true})

	evt := <-sub.Events()
	vc, ok := evt.(VolumeChanged)
	require.True(t, ok, "expected VolumeChanged, got %T", evt)
	require.Equal(t, 50.0, vc.Level)
	require.True(t, vc.Muted)
}

func TestDeliveryOrderPerSubscriber(t *testing.T) {
	bus := newTestBus(16)
	sub := bus.Subscribe()
	defer sub.Close()

	for i := 0; i < 10; i++ {
		bus.Publish(CPUUsageChanged{Usage: float64(i)})
	}

	for i := 0; i < 10; i++ {
		evt := <-sub.Events()
		require.Equal(t, float64(i), evt.(CPUUsageChanged).Usage)
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	bus := newTestBus(3)
	sub := bus.Subscribe()
	defer sub.Close()

	// Never receiving: only the newest capacity events survive.
	for i := 0; i < 10; i++ {
		bus.Publish(CPUUsageChanged{Usage: float64(i)})
	}

	require.EqualValues(t, 7, bus.Dropped())

	got := []float64{}
	for i := 0; i < 3; i++ {
		evt := <-sub.Events()
		got = append(got, evt.(CPUUsageChanged).Usage)
	}
	require.Equal(t, []float64{7, 8, 9}, got)
}

func TestMultipleSubscribers(t *testing.T) {
	bus := newTestBus(4)
	sub1 := bus.Subscribe()
	defer sub1.Close()
	sub2 := bus.Subscribe()
	defer sub2.Close()

	require.Equal(t, 2, bus.SubscriberCount())

	bus.Publish(WorkspaceChanged{ID: 2})

	require.Equal(t, WorkspaceChanged{ID: 2}, <-sub1.Events())
	require.Equal(t, WorkspaceChanged{ID: 2}, <-sub2.Events())
}

func TestSubscriberClose(t *testing.T) {
	bus := newTestBus(4)
	sub := bus.Subscribe()
	require.Equal(t, 1, bus.SubscriberCount())

	sub.Close()
	sub.Close() // idempotent
	require.Equal(t, 0, bus.SubscriberCount())

	_, open := <-sub.Events()
	require.False(t, open)

	// Publishing after the subscriber left must not panic.
	bus.Publish(TemperatureChanged{Celsius: 42})
}

func TestBusClose(t *testing.T) {
	bus := newTestBus(4)
	sub := bus.Subscribe()

	bus.Close()
	bus.Close() // idempotent

	_, open := <-sub.Events()
	require.False(t, open)
	require.Equal(t, 0, bus.SubscriberCount())

	bus.Publish(VolumeChanged{Level: 10})

	late := bus.Subscribe()
	_, open = <-late.Events()
	require.False(t, open)
}

func TestCapacityFallback(t *testing.T) {
	bus := newTestBus(0)
	require.Equal(t, DefaultCapacity, bus.capacity)
}
