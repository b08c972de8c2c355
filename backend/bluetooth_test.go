package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amiya-sh/amiya/events"
)

type fakeBluetooth struct {
	powered     bool
	devices     []events.BluetoothDeviceInfo
	failSet     bool
	connects    []string
	disconnects []string
	pairs       []string
	scanning    bool
}

func (f *fakeBluetooth) Powered(ctx context.Context) (bool, error) { return f.powered, nil }

func (f *fakeBluetooth) SetPowered(ctx context.Context, enabled bool) error {
	if f.failSet {
		return errors.New("adapter gone")
	}
	f.powered = enabled
	return nil
}

func (f *fakeBluetooth) StartDiscovery(ctx context.Context) error {
	f.scanning = true
	return nil
}

func (f *fakeBluetooth) StopDiscovery(ctx context.Context) error {
	f.scanning = false
	return nil
}

func (f *fakeBluetooth) Devices(ctx context.Context) ([]events.BluetoothDeviceInfo, error) {
	return f.devices, nil
}

func (f *fakeBluetooth) ConnectDevice(ctx context.Context, address string) error {
	f.connects = append(f.connects, address)
	return nil
}

func (f *fakeBluetooth) DisconnectDevice(ctx context.Context, address string) error {
	f.disconnects = append(f.disconnects, address)
	return nil
}

func (f *fakeBluetooth) PairDevice(ctx context.Context, address string) error {
	f.pairs = append(f.pairs, address)
	return nil
}

func newTestBluetooth(t *testing.T, service bluetoothService) (*BluetoothControl, *events.Subscriber) {
	t.Helper()
	bus, sub := newTestBus(t)
	bt := NewBluetoothControl(discardLogger(), bus)
	bt.service = service
	bt.status = StatusConnected
	return bt, sub
}

func TestBluetoothDefaults(t *testing.T) {
	bus, _ := newTestBus(t)
	bt := NewBluetoothControl(discardLogger(), bus)

	require.False(t, bt.Powered())
	require.Empty(t, bt.Devices())
	require.False(t, bt.IsAvailable())
}

func TestBluetoothSetPowered(t *testing.T) {
	fake := &fakeBluetooth{}
	bt, sub := newTestBluetooth(t, fake)

	require.NoError(t, bt.SetPowered(context.Background(), true))
	require.True(t, bt.Powered())
	require.True(t, fake.powered)

	ev := requireSingleEvent(t, sub)
	require.Equal(t, events.BluetoothStateChanged{Enabled: true}, ev)
}

func TestBluetoothSetPoweredFailureStillSucceeds(t *testing.T) {
	bt, sub := newTestBluetooth(t, &fakeBluetooth{failSet: true})

	require.NoError(t, bt.SetPowered(context.Background(), true))
	require.True(t, bt.Powered())
	requireSingleEvent(t, sub)
	require.False(t, bt.IsAvailable())
}

func TestBluetoothSetPoweredWithoutService(t *testing.T) {
	bus, sub := newTestBus(t)
	bt := NewBluetoothControl(discardLogger(), bus)

	require.NoError(t, bt.SetPowered(context.Background(), true))
	require.True(t, bt.Powered())
	requireSingleEvent(t, sub)
}

func TestBluetoothRefreshDevices(t *testing.T) {
	devices := []events.BluetoothDeviceInfo{
		{Address: "AA:BB:CC:DD:EE:01", Name: "Headphones", Paired: true},
		{Address: "AA:BB:CC:DD:EE:02", Name: "Keyboard"},
	}
	bt, sub := newTestBluetooth(t, &fakeBluetooth{devices: devices})

	require.NoError(t, bt.RefreshDevices(context.Background()))
	require.Equal(t, devices, bt.Devices())

	ev := requireSingleEvent(t, sub)
	require.Equal(t, events.BluetoothDevicesUpdated{Devices: devices}, ev)
}

func TestBluetoothConnectDevice(t *testing.T) {
	fake := &fakeBluetooth{devices: []events.BluetoothDeviceInfo{
		{Address: "AA:BB:CC:DD:EE:01", Name: "Headphones", Paired: true},
	}}
	bt, sub := newTestBluetooth(t, fake)
	require.NoError(t, bt.RefreshDevices(context.Background()))
	drainEvents(sub)

	require.NoError(t, bt.ConnectDevice(context.Background(), "AA:BB:CC:DD:EE:01"))

	require.Equal(t, []string{"AA:BB:CC:DD:EE:01"}, fake.connects)
	require.True(t, bt.Devices()[0].Connected)

	ev := requireSingleEvent(t, sub)
	require.Equal(t, events.BluetoothDeviceConnected{Address: "AA:BB:CC:DD:EE:01", Name: "Headphones"}, ev)
}

func TestBluetoothDisconnectDevice(t *testing.T) {
	fake := &fakeBluetooth{devices: []events.BluetoothDeviceInfo{
		{Address: "AA:BB:CC:DD:EE:01", Name: "Headphones", Connected: true},
	}}
	bt, sub := newTestBluetooth(t, fake)
	require.NoError(t, bt.RefreshDevices(context.Background()))
	drainEvents(sub)

	require.NoError(t, bt.DisconnectDevice(context.Background(), "AA:BB:CC:DD:EE:01"))

	require.False(t, bt.Devices()[0].Connected)
	ev := requireSingleEvent(t, sub)
	require.Equal(t, events.BluetoothDeviceDisconnected{Address: "AA:BB:CC:DD:EE:01"}, ev)
}

func TestBluetoothPairDevice(t *testing.T) {
	fake := &fakeBluetooth{devices: []events.BluetoothDeviceInfo{
		{Address: "AA:BB:CC:DD:EE:02", Name: "Keyboard"},
	}}
	bt, sub := newTestBluetooth(t, fake)
	require.NoError(t, bt.RefreshDevices(context.Background()))
	drainEvents(sub)

	require.NoError(t, bt.PairDevice(context.Background(), "AA:BB:CC:DD:EE:02"))

	require.Equal(t, []string{"AA:BB:CC:DD:EE:02"}, fake.pairs)
	require.True(t, bt.Devices()[0].Paired)

	ev := requireSingleEvent(t, sub)
	updated, ok := ev.(events.BluetoothDevicesUpdated)
	require.True(t, ok)
	require.True(t, updated.Devices[0].Paired)
}

func TestBluetoothScan(t *testing.T) {
	fake := &fakeBluetooth{}
	bt, sub := newTestBluetooth(t, fake)

	require.NoError(t, bt.StartScan(context.Background()))
	require.True(t, fake.scanning)

	require.NoError(t, bt.StopScan(context.Background()))
	require.False(t, fake.scanning)
	requireSingleEvent(t, sub)
}

func TestBluetoothScanWithoutService(t *testing.T) {
	bus, _ := newTestBus(t)
	bt := NewBluetoothControl(discardLogger(), bus)

	require.True(t, IsUnavailable(bt.StartScan(context.Background())))
	require.True(t, IsUnavailable(bt.RefreshDevices(context.Background())))
}
