package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amiya-sh/amiya/events"
)

type fakeBattery struct {
	info BatteryInfo
	err  error
}

func (f *fakeBattery) ReadInfo(ctx context.Context) (BatteryInfo, error) {
	if f.err != nil {
		return BatteryInfo{}, f.err
	}
	return f.info, nil
}

func TestBatteryDefaults(t *testing.T) {
	bus, _ := newTestBus(t)
	battery := NewBatteryControl(discardLogger(), bus)

	info := battery.Info()
	require.Equal(t, "unknown", info.State)
	require.False(t, info.Present)
	require.False(t, battery.IsAvailable())
}

func TestBatteryRefreshPublishes(t *testing.T) {
	bus, sub := newTestBus(t)
	battery := NewBatteryControl(discardLogger(), bus)
	battery.source = &fakeBattery{info: BatteryInfo{
		Percentage: 83.5,
		State:      "charging",
		TimeToFull: 45 * time.Minute,
		Present:    true,
	}}

	require.NoError(t, battery.Refresh(context.Background()))

	info := battery.Info()
	require.Equal(t, 83.5, info.Percentage)
	require.True(t, info.Charging())

	ev := requireSingleEvent(t, sub)
	require.Equal(t, events.BatteryChanged{Percentage: 83.5, State: "charging", Charging: true}, ev)
}

func TestBatteryRefreshFailureKeepsCache(t *testing.T) {
	bus, sub := newTestBus(t)
	battery := NewBatteryControl(discardLogger(), bus)

	good := &fakeBattery{info: BatteryInfo{Percentage: 60, State: "discharging", Present: true}}
	battery.source = good
	battery.status = StatusConnected
	require.NoError(t, battery.Refresh(context.Background()))
	drainEvents(sub)

	battery.source = &fakeBattery{err: errors.New("upower gone")}
	err := battery.Refresh(context.Background())
	require.Error(t, err)

	var be *Error
	require.ErrorAs(t, err, &be)
	require.Equal(t, KindExecution, be.Kind)

	// Last good snapshot survives, no event, adapter degraded.
	require.Equal(t, 60.0, battery.Info().Percentage)
	require.Empty(t, drainEvents(sub))
	require.False(t, battery.IsAvailable())
}

func TestBatteryRefreshWithoutSource(t *testing.T) {
	bus, _ := newTestBus(t)
	battery := NewBatteryControl(discardLogger(), bus)

	err := battery.Refresh(context.Background())
	require.True(t, IsUnavailable(err))
}

func TestBatteryStateName(t *testing.T) {
	tests := []struct {
		state uint32
		want  string
	}{
		{state: 0, want: "unknown"},
		{state: 1, want: "charging"},
		{state: 2, want: "discharging"},
		{state: 3, want: "empty"},
		{state: 4, want: "fully-charged"},
		{state: 5, want: "pending-charge"},
		{state: 6, want: "pending-discharge"},
		{state: 99, want: "unknown"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, batteryStateName(tt.state))
	}
}

func TestBatteryCharging(t *testing.T) {
	require.True(t, BatteryInfo{State: "charging"}.Charging())
	require.True(t, BatteryInfo{State: "fully-charged"}.Charging())
	require.False(t, BatteryInfo{State: "discharging"}.Charging())
	require.False(t, BatteryInfo{State: "unknown"}.Charging())
}
