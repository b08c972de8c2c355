package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amiya-sh/amiya/events"
)

type fakeBacklight struct {
	level    float64
	writes   int
	writeErr error
}

func (f *fakeBacklight) Name() string                  { return "fake_backlight" }
func (f *fakeBacklight) ReadPercent() (float64, error) { return f.level, nil }
func (f *fakeBacklight) WritePercent(level float64) error {
	f.writes++
	if f.writeErr != nil {
		return f.writeErr
	}
	f.level = level
	return nil
}

func TestBacklightDefaults(t *testing.T) {
	bus, _ := newTestBus(t)
	bl := NewBacklightControl(discardLogger(), bus)

	require.Equal(t, 50.0, bl.Brightness())
	require.False(t, bl.IsAvailable())
}

func TestBacklightSetBrightness(t *testing.T) {
	tests := []struct {
		name  string
		level float64
		want  float64
	}{
		{name: "in range", level: 80, want: 80},
		{name: "above max", level: 120, want: 100},
		{name: "below min", level: -5, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus, sub := newTestBus(t)
			bl := NewBacklightControl(discardLogger(), bus)
			dev := &fakeBacklight{}
			bl.device = dev

			require.NoError(t, bl.SetBrightness(context.Background(), tt.level))
			require.Equal(t, tt.want, bl.Brightness())
			require.Equal(t, tt.want, dev.level)

			ev := requireSingleEvent(t, sub)
			require.Equal(t, events.BrightnessChanged{Level: tt.want}, ev)
		})
	}
}

func TestBacklightIncreaseDecreaseSymmetry(t *testing.T) {
	bus, sub := newTestBus(t)
	bl := NewBacklightControl(discardLogger(), bus)
	ctx := context.Background()

	before := bl.Brightness()
	require.NoError(t, bl.IncreaseBrightness(ctx, 10))
	require.Equal(t, before+10, bl.Brightness())
	require.NoError(t, bl.DecreaseBrightness(ctx, 10))
	require.Equal(t, before, bl.Brightness())

	require.Len(t, drainEvents(sub), 2)
}

func TestBacklightWriteFailureStillSucceeds(t *testing.T) {
	bus, sub := newTestBus(t)
	bl := NewBacklightControl(discardLogger(), bus)
	bl.device = &fakeBacklight{writeErr: errors.New("permission denied")}

	require.NoError(t, bl.SetBrightness(context.Background(), 25))
	require.Equal(t, 25.0, bl.Brightness())
	ev := requireSingleEvent(t, sub)
	require.Equal(t, events.BrightnessChanged{Level: 25.0}, ev)
}

func TestBacklightWithoutDeviceUsesCache(t *testing.T) {
	bus, sub := newTestBus(t)
	bl := NewBacklightControl(discardLogger(), bus)

	require.NoError(t, bl.SetBrightness(context.Background(), 60))
	require.Equal(t, 60.0, bl.Brightness())
	requireSingleEvent(t, sub)
}

func writeSysfsDevice(t *testing.T, root, name string, current, max int) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "brightness"), []byte("  "+strconv.Itoa(current)+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "max_brightness"), []byte(strconv.Itoa(max)+"\n"), 0o644))
}

func TestBacklightDiscoveryPrefersKnownDevices(t *testing.T) {
	root := t.TempDir()
	writeSysfsDevice(t, root, "zz_panel", 10, 100)
	writeSysfsDevice(t, root, "intel_backlight", 48000, 96000)

	bus, _ := newTestBus(t)
	bl := NewBacklightControl(discardLogger(), bus)
	bl.root = root

	require.NoError(t, bl.Connect(context.Background()))
	require.True(t, bl.IsAvailable())
	// Cache seeded from the device: 48000/96000 = 50%.
	require.Equal(t, 50.0, bl.Brightness())
	require.Equal(t, "intel_backlight", bl.device.(*sysfsBacklight).name)
}

func TestBacklightDiscoveryFallsBackToAnyDevice(t *testing.T) {
	root := t.TempDir()
	writeSysfsDevice(t, root, "panel0", 75, 100)

	bus, _ := newTestBus(t)
	bl := NewBacklightControl(discardLogger(), bus)
	bl.root = root

	require.NoError(t, bl.Connect(context.Background()))
	require.Equal(t, 75.0, bl.Brightness())
}

func TestBacklightDiscoveryEmpty(t *testing.T) {
	bus, _ := newTestBus(t)
	bl := NewBacklightControl(discardLogger(), bus)
	bl.root = t.TempDir()

	err := bl.Connect(context.Background())
	require.Error(t, err)
	require.True(t, IsUnavailable(err))
	require.False(t, bl.IsAvailable())
}

func TestSysfsBacklightRoundTrip(t *testing.T) {
	root := t.TempDir()
	writeSysfsDevice(t, root, "panel0", 50, 200)

	dev := &sysfsBacklight{name: "panel0", dir: filepath.Join(root, "panel0")}

	level, err := dev.ReadPercent()
	require.NoError(t, err)
	require.Equal(t, 25.0, level)

	require.NoError(t, dev.WritePercent(50))
	level, err = dev.ReadPercent()
	require.NoError(t, err)
	require.Equal(t, 50.0, level)
}
