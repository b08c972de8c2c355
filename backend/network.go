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
	nmService     = "org.freedesktop.NetworkManager"
	nmPath        = "/org/freedesktop/NetworkManager"
	nmDeviceIfc   = "org.freedesktop.NetworkManager.Device"
	nmWirelessIfc = "org.freedesktop.NetworkManager.Device.Wireless"
	nmAPIfc       = "org.freedesktop.NetworkManager.AccessPoint"

	// NM_DEVICE_TYPE_WIFI
	nmDeviceTypeWifi = uint32(2)
)

// wifiService abstracts the NetworkManager wireless device.
type wifiService interface {
	WirelessEnabled(ctx context.Context) (bool, error)
	SetWirelessEnabled(ctx context.Context, enabled bool) error
	RequestScan(ctx context.Context) error
	AccessPoints(ctx context.Context) ([]events.WifiNetworkInfo, error)
	ConnectNetwork(ctx context.Context, ssid, password string) error
	Disconnect(ctx context.Context) error
}

// NetworkControl manages wifi through NetworkManager. The cache starts
// disabled with no known networks.
type NetworkControl struct {
	logger *slog.Logger
	bus    *events.Bus

	mu       sync.Mutex
	status   Status
	conn     *dbus.Conn
	service  wifiService
	enabled  bool
	networks []events.WifiNetworkInfo
}

// NewNetworkControl constructs the adapter. Construction never fails.
func NewNetworkControl(logger *slog.Logger, bus *events.Bus) *NetworkControl {
	return &NetworkControl{
		logger: logger.With("adapter", "network"),
		bus:    bus,
	}
}

// Connect finds the wifi device on NetworkManager and seeds the cache.
// Idempotent; hosts without wifi yield an Unavailable error.
func (n *NetworkControl) Connect(ctx context.Context) error {
	n.mu.Lock()
	if n.status == StatusConnected {
		n.mu.Unlock()
		return nil
	}
	n.status = StatusConnecting
	n.mu.Unlock()

	conn, err := dialSystemBus(ctx)
	if err != nil {
		n.setUnconnected()
		return newError(KindConnection, "network connect", err)
	}

	device, err := findWifiDevice(ctx, conn)
	if err != nil {
		conn.Close()
		n.setUnconnected()
		return newError(KindUnavailable, "network connect", err)
	}

	service := &nmWifi{conn: conn, device: device}
	enabled, err := service.WirelessEnabled(ctx)
	if err != nil {
		conn.Close()
		n.setUnconnected()
		return newError(KindProtocol, "network connect", err)
	}

	n.mu.Lock()
	n.conn = conn
	n.service = service
	n.enabled = enabled
	n.status = StatusConnected
	n.mu.Unlock()
	n.logger.Debug("using wifi device", "path", string(device), "enabled", enabled)
	return nil
}

// IsAvailable reports whether a wifi device is connected.
func (n *NetworkControl) IsAvailable() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status == StatusConnected
}

// WifiEnabled returns the cached wireless state.
func (n *NetworkControl) WifiEnabled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.enabled
}

// Networks returns the cached network list.
func (n *NetworkControl) Networks() []events.WifiNetworkInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]events.WifiNetworkInfo, len(n.networks))
	copy(out, n.networks)
	return out
}

// SetWifiEnabled updates the wireless state and publishes a single
// WifiStateChanged event. External failure is logged, never returned.
func (n *NetworkControl) SetWifiEnabled(ctx context.Context, enabled bool) error {
	n.mu.Lock()
	n.enabled = enabled
	service := n.service
	n.mu.Unlock()

	if service != nil {
		if err := service.SetWirelessEnabled(ctx, enabled); err != nil {
			n.logger.Warn("failed to set wireless state", "enabled", enabled, "error", err)
			n.setUnconnected()
		}
	}
	n.bus.Publish(events.WifiStateChanged{Enabled: enabled})
	return nil
}

// Scan triggers a scan, re-reads the access points and publishes a single
// WifiNetworksUpdated event.
func (n *NetworkControl) Scan(ctx context.Context) error {
	service := n.currentService()
	if service == nil {
		return newError(KindUnavailable, "network scan", nil)
	}

	if err := service.RequestScan(ctx); err != nil {
		n.logger.Debug("scan request failed", "error", err)
	}

	networks, err := service.AccessPoints(ctx)
	if err != nil {
		n.setUnconnected()
		return newError(KindExecution, "network scan", err)
	}

	n.mu.Lock()
	n.networks = networks
	n.mu.Unlock()

	n.bus.Publish(events.WifiNetworksUpdated{Networks: networks})
	return nil
}

// ConnectNetwork joins the network named ssid, marks it connected in the
// cache and publishes a single WifiNetworkConnected event. External
// failure is logged, never returned.
func (n *NetworkControl) ConnectNetwork(ctx context.Context, ssid, password string) error {
	n.mu.Lock()
	for i := range n.networks {
		n.networks[i].Connected = n.networks[i].SSID == ssid
	}
	service := n.service
	n.mu.Unlock()

	if service != nil {
		if err := service.ConnectNetwork(ctx, ssid, password); err != nil {
			n.logger.Warn("failed to connect network", "ssid", ssid, "error", err)
		}
	}
	n.bus.Publish(events.WifiNetworkConnected{SSID: ssid})
	return nil
}

// Disconnect drops the current network and publishes a single
// WifiNetworkDisconnected event.
func (n *NetworkControl) Disconnect(ctx context.Context) error {
	n.mu.Lock()
	for i := range n.networks {
		n.networks[i].Connected = false
	}
	service := n.service
	n.mu.Unlock()

	if service != nil {
		if err := service.Disconnect(ctx); err != nil {
			n.logger.Warn("failed to disconnect", "error", err)
		}
	}
	n.bus.Publish(events.WifiNetworkDisconnected{})
	return nil
}

// Close releases the system bus connection.
func (n *NetworkControl) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	n.service = nil
	n.status = StatusUnconnected
}

func (n *NetworkControl) currentService() wifiService {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.service
}

func (n *NetworkControl) setUnconnected() {
	n.mu.Lock()
	n.status = StatusUnconnected
	n.mu.Unlock()
}

func findWifiDevice(ctx context.Context, conn *dbus.Conn) (dbus.ObjectPath, error) {
	var paths []dbus.ObjectPath
	obj := conn.Object(nmService, nmPath)
	if err := obj.CallWithContext(ctx, nmService+".GetDevices", 0).Store(&paths); err != nil {
		return "", fmt.Errorf("failed to list network devices: %w", err)
	}

	for _, path := range paths {
		var devType uint32
		dev := conn.Object(nmService, path)
		if err := getProperty(dev, nmDeviceIfc+".DeviceType", &devType); err != nil {
			continue
		}
		if devType == nmDeviceTypeWifi {
			return path, nil
		}
	}
	return "", fmt.Errorf("no wifi device found among %d network devices", len(paths))
}

type nmWifi struct {
	conn   *dbus.Conn
	device dbus.ObjectPath
}

func (w *nmWifi) WirelessEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	obj := w.conn.Object(nmService, nmPath)
	if err := getProperty(obj, nmService+".WirelessEnabled", &enabled); err != nil {
		return false, fmt.Errorf("failed to read WirelessEnabled: %w", err)
	}
	return enabled, nil
}

func (w *nmWifi) SetWirelessEnabled(ctx context.Context, enabled bool) error {
	obj := w.conn.Object(nmService, nmPath)
	return obj.SetProperty(nmService+".WirelessEnabled", dbus.MakeVariant(enabled))
}

func (w *nmWifi) RequestScan(ctx context.Context) error {
	obj := w.conn.Object(nmService, w.device)
	return obj.CallWithContext(ctx, nmWirelessIfc+".RequestScan", 0, map[string]dbus.Variant{}).Err
}

func (w *nmWifi) AccessPoints(ctx context.Context) ([]events.WifiNetworkInfo, error) {
	dev := w.conn.Object(nmService, w.device)

	var apPaths []dbus.ObjectPath
	err := dev.CallWithContext(ctx, nmWirelessIfc+".GetAllAccessPoints", 0).Store(&apPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to list access points: %w", err)
	}

	var active dbus.ObjectPath
	if v, err := dev.GetProperty(nmWirelessIfc + ".ActiveAccessPoint"); err == nil {
		v.Store(&active)
	}

	// Strongest signal per SSID wins; hidden networks are skipped.
	bySSID := make(map[string]events.WifiNetworkInfo)
	for _, path := range apPaths {
		ap := w.conn.Object(nmService, path)

		var rawSSID []byte
		if err := getProperty(ap, nmAPIfc+".Ssid", &rawSSID); err != nil || len(rawSSID) == 0 {
			continue
		}
		ssid := string(rawSSID)

		var strength uint8
		getProperty(ap, nmAPIfc+".Strength", &strength)

		var flags, wpaFlags, rsnFlags uint32
		getProperty(ap, nmAPIfc+".Flags", &flags)
		getProperty(ap, nmAPIfc+".WpaFlags", &wpaFlags)
		getProperty(ap, nmAPIfc+".RsnFlags", &rsnFlags)

		info := events.WifiNetworkInfo{
			SSID:      ssid,
			Signal:    strength,
			Secured:   flags&0x1 != 0 || wpaFlags != 0 || rsnFlags != 0,
			Connected: path == active,
		}
		if existing, ok := bySSID[ssid]; !ok || info.Signal > existing.Signal || info.Connected {
			bySSID[ssid] = info
		}
	}

	networks := make([]events.WifiNetworkInfo, 0, len(bySSID))
	for _, info := range bySSID {
		networks = append(networks, info)
	}
	sort.Slice(networks, func(i, j int) bool {
		if networks[i].Connected != networks[j].Connected {
			return networks[i].Connected
		}
		if networks[i].Signal != networks[j].Signal {
			return networks[i].Signal > networks[j].Signal
		}
		return networks[i].SSID < networks[j].SSID
	})
	return networks, nil
}

func (w *nmWifi) ConnectNetwork(ctx context.Context, ssid, password string) error {
	settings := map[string]map[string]dbus.Variant{
		"connection": {
			"id":   dbus.MakeVariant(ssid),
			"type": dbus.MakeVariant("802-11-wireless"),
		},
		"802-11-wireless": {
			"ssid": dbus.MakeVariant([]byte(ssid)),
			"mode": dbus.MakeVariant("infrastructure"),
		},
	}
	if password != "" {
		settings["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(password),
		}
	}

	obj := w.conn.Object(nmService, nmPath)
	call := obj.CallWithContext(ctx, nmService+".AddAndActivateConnection", 0,
		settings, w.device, dbus.ObjectPath("/"))
	return call.Err
}

func (w *nmWifi) Disconnect(ctx context.Context) error {
	obj := w.conn.Object(nmService, w.device)
	return obj.CallWithContext(ctx, nmDeviceIfc+".Disconnect", 0).Err
}
