package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/amiya-sh/amiya/events"
)

const (
	bluezService    = "org.bluez"
	bluezAdapterIfc = "org.bluez.Adapter1"
	bluezDeviceIfc  = "org.bluez.Device1"
)

// Adapters are probed in order; machines rarely have more than one.
var bluezAdapterPaths = []dbus.ObjectPath{
	"/org/bluez/hci0",
	"/org/bluez/hci1",
	"/org/bluez/hci2",
}

// bluetoothService abstracts one BlueZ adapter and its devices.
type bluetoothService interface {
	Powered(ctx context.Context) (bool, error)
	SetPowered(ctx context.Context, enabled bool) error
	StartDiscovery(ctx context.Context) error
	StopDiscovery(ctx context.Context) error
	Devices(ctx context.Context) ([]events.BluetoothDeviceInfo, error)
	ConnectDevice(ctx context.Context, address string) error
	DisconnectDevice(ctx context.Context, address string) error
	PairDevice(ctx context.Context, address string) error
}

// BluetoothControl manages the BlueZ adapter. The cache starts powered-off
// with no devices and stays serviceable without a connection.
type BluetoothControl struct {
	logger *slog.Logger
	bus    *events.Bus

	mu      sync.Mutex
	status  Status
	conn    *dbus.Conn
	service bluetoothService
	powered bool
	devices []events.BluetoothDeviceInfo
}

// NewBluetoothControl constructs the adapter. Construction never fails.
func NewBluetoothControl(logger *slog.Logger, bus *events.Bus) *BluetoothControl {
	return &BluetoothControl{
		logger: logger.With("adapter", "bluetooth"),
		bus:    bus,
	}
}

// Connect finds the first BlueZ adapter and seeds the cache. Idempotent.
func (b *BluetoothControl) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.status == StatusConnected {
		b.mu.Unlock()
		return nil
	}
	b.status = StatusConnecting
	b.mu.Unlock()

	conn, err := dialSystemBus(ctx)
	if err != nil {
		b.setUnconnected()
		return newError(KindConnection, "bluetooth connect", err)
	}

	path, err := findBluezAdapter(conn)
	if err != nil {
		conn.Close()
		b.setUnconnected()
		return newError(KindUnavailable, "bluetooth connect", err)
	}

	service := &bluezAdapter{conn: conn, path: path}
	powered, err := service.Powered(ctx)
	if err != nil {
		conn.Close()
		b.setUnconnected()
		return newError(KindProtocol, "bluetooth connect", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.service = service
	b.powered = powered
	b.status = StatusConnected
	b.mu.Unlock()
	b.logger.Debug("using bluetooth adapter", "path", string(path), "powered", powered)

	if err := b.RefreshDevices(ctx); err != nil {
		b.logger.Debug("initial device listing failed", "error", err)
	}
	return nil
}

// IsAvailable reports whether a BlueZ adapter is connected.
func (b *BluetoothControl) IsAvailable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status == StatusConnected
}

// Powered returns the cached adapter power state.
func (b *BluetoothControl) Powered() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.powered
}

// Devices returns the cached device list.
func (b *BluetoothControl) Devices() []events.BluetoothDeviceInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.BluetoothDeviceInfo, len(b.devices))
	copy(out, b.devices)
	return out
}

// SetPowered updates the adapter power state and publishes a single
// BluetoothStateChanged event. External failure is logged, never returned.
func (b *BluetoothControl) SetPowered(ctx context.Context, enabled bool) error {
	b.mu.Lock()
	b.powered = enabled
	service := b.service
	b.mu.Unlock()

	if service != nil {
		if err := service.SetPowered(ctx, enabled); err != nil {
			b.logger.Warn("failed to set adapter power", "enabled", enabled, "error", err)
			b.setUnconnected()
		}
	}
	b.bus.Publish(events.BluetoothStateChanged{Enabled: enabled})
	return nil
}

// StartScan begins device discovery.
func (b *BluetoothControl) StartScan(ctx context.Context) error {
	service := b.currentService()
	if service == nil {
		return newError(KindUnavailable, "bluetooth scan", nil)
	}
	if err := service.StartDiscovery(ctx); err != nil {
		return newError(KindExecution, "bluetooth scan", err)
	}
	return nil
}

// StopScan ends device discovery and publishes the refreshed device list.
func (b *BluetoothControl) StopScan(ctx context.Context) error {
	service := b.currentService()
	if service == nil {
		return newError(KindUnavailable, "bluetooth scan", nil)
	}
	if err := service.StopDiscovery(ctx); err != nil {
		return newError(KindExecution, "bluetooth scan", err)
	}
	return b.RefreshDevices(ctx)
}

// RefreshDevices re-reads the device list and publishes a single
// BluetoothDevicesUpdated event.
func (b *BluetoothControl) RefreshDevices(ctx context.Context) error {
	service := b.currentService()
	if service == nil {
		return newError(KindUnavailable, "bluetooth devices", nil)
	}

	devices, err := service.Devices(ctx)
	if err != nil {
		b.setUnconnected()
		return newError(KindExecution, "bluetooth devices", err)
	}

	b.mu.Lock()
	b.devices = devices
	b.mu.Unlock()

	b.bus.Publish(events.BluetoothDevicesUpdated{Devices: devices})
	return nil
}

// ConnectDevice connects the device at address, marks it connected in the
// cache and publishes a single BluetoothDeviceConnected event. External
// failure is logged, never returned.
func (b *BluetoothControl) ConnectDevice(ctx context.Context, address string) error {
	b.mu.Lock()
	name := ""
	for i := range b.devices {
		if b.devices[i].Address == address {
			b.devices[i].Connected = true
			name = b.devices[i].Name
		}
	}
	service := b.service
	b.mu.Unlock()

	if service != nil {
		if err := service.ConnectDevice(ctx, address); err != nil {
			b.logger.Warn("failed to connect device", "address", address, "error", err)
		}
	}
	b.bus.Publish(events.BluetoothDeviceConnected{Address: address, Name: name})
	return nil
}

// DisconnectDevice disconnects the device at address, marks it in the
// cache and publishes a single BluetoothDeviceDisconnected event.
func (b *BluetoothControl) DisconnectDevice(ctx context.Context, address string) error {
	b.mu.Lock()
	for i := range b.devices {
		if b.devices[i].Address == address {
			b.devices[i].Connected = false
		}
	}
	service := b.service
	b.mu.Unlock()

	if service != nil {
		if err := service.DisconnectDevice(ctx, address); err != nil {
			b.logger.Warn("failed to disconnect device", "address", address, "error", err)
		}
	}
	b.bus.Publish(events.BluetoothDeviceDisconnected{Address: address})
	return nil
}

// PairDevice pairs the device at address, marks it paired in the cache and
// publishes a single BluetoothDevicesUpdated event.
func (b *BluetoothControl) PairDevice(ctx context.Context, address string) error {
	b.mu.Lock()
	for i := range b.devices {
		if b.devices[i].Address == address {
			b.devices[i].Paired = true
		}
	}
	service := b.service
	devices := make([]events.BluetoothDeviceInfo, len(b.devices))
	copy(devices, b.devices)
	b.mu.Unlock()

	if service != nil {
		if err := service.PairDevice(ctx, address); err != nil {
			b.logger.Warn("failed to pair device", "address", address, "error", err)
		}
	}
	b.bus.Publish(events.BluetoothDevicesUpdated{Devices: devices})
	return nil
}

// Close releases the system bus connection.
func (b *BluetoothControl) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.service = nil
	b.status = StatusUnconnected
}

func (b *BluetoothControl) currentService() bluetoothService {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.service
}

func (b *BluetoothControl) setUnconnected() {
	b.mu.Lock()
	b.status = StatusUnconnected
	b.mu.Unlock()
}

func findBluezAdapter(conn *dbus.Conn) (dbus.ObjectPath, error) {
	for _, path := range bluezAdapterPaths {
		obj := conn.Object(bluezService, path)
		if _, err := obj.GetProperty(bluezAdapterIfc + ".Powered"); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no bluetooth adapter found")
}

type bluezAdapter struct {
	conn *dbus.Conn
	path dbus.ObjectPath
}

func (a *bluezAdapter) Powered(ctx context.Context) (bool, error) {
	var powered bool
	obj := a.conn.Object(bluezService, a.path)
	if err := getProperty(obj, bluezAdapterIfc+".Powered", &powered); err != nil {
		return false, fmt.Errorf("failed to read Powered: %w", err)
	}
	return powered, nil
}

func (a *bluezAdapter) SetPowered(ctx context.Context, enabled bool) error {
	obj := a.conn.Object(bluezService, a.path)
	return obj.SetProperty(bluezAdapterIfc+".Powered", dbus.MakeVariant(enabled))
}

func (a *bluezAdapter) StartDiscovery(ctx context.Context) error {
	obj := a.conn.Object(bluezService, a.path)
	return obj.CallWithContext(ctx, bluezAdapterIfc+".StartDiscovery", 0).Err
}

func (a *bluezAdapter) StopDiscovery(ctx context.Context) error {
	obj := a.conn.Object(bluezService, a.path)
	return obj.CallWithContext(ctx, bluezAdapterIfc+".StopDiscovery", 0).Err
}

func (a *bluezAdapter) Devices(ctx context.Context) ([]events.BluetoothDeviceInfo, error) {
	var managed map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	root := a.conn.Object(bluezService, "/")
	err := root.CallWithContext(ctx, "org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).Store(&managed)
	if err != nil {
		return nil, fmt.Errorf("failed to list managed objects: %w", err)
	}

	var devices []events.BluetoothDeviceInfo
	for _, ifaces := range managed {
		props, ok := ifaces[bluezDeviceIfc]
		if !ok {
			continue
		}
		var dev events.BluetoothDeviceInfo
		if v, ok := props["Address"]; ok {
			v.Store(&dev.Address)
		}
		if v, ok := props["Alias"]; ok {
			v.Store(&dev.Name)
		}
		if v, ok := props["Connected"]; ok {
			v.Store(&dev.Connected)
		}
		if v, ok := props["Paired"]; ok {
			v.Store(&dev.Paired)
		}
		if dev.Address != "" {
			devices = append(devices, dev)
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Address < devices[j].Address })
	return devices, nil
}

func (a *bluezAdapter) ConnectDevice(ctx context.Context, address string) error {
	obj := a.conn.Object(bluezService, a.devicePath(address))
	return obj.CallWithContext(ctx, bluezDeviceIfc+".Connect", 0).Err
}

func (a *bluezAdapter) DisconnectDevice(ctx context.Context, address string) error {
	obj := a.conn.Object(bluezService, a.devicePath(address))
	return obj.CallWithContext(ctx, bluezDeviceIfc+".Disconnect", 0).Err
}

func (a *bluezAdapter) PairDevice(ctx context.Context, address string) error {
	obj := a.conn.Object(bluezService, a.devicePath(address))
	return obj.CallWithContext(ctx, bluezDeviceIfc+".Pair", 0).Err
}

// BlueZ device paths replace colons in the address with underscores.
func (a *bluezAdapter) devicePath(address string) dbus.ObjectPath {
	escaped := make([]byte, 0, len(address))
	for i := 0; i < len(address); i++ {
		if address[i] == ':' {
			escaped = append(escaped, '_')
		} else {
			escaped = append(escaped, address[i])
		}
	}
	return dbus.ObjectPath(string(a.path) + "/dev_" + string(escaped))
}
