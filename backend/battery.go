package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/amiya-sh/amiya/events"
)

const (
	upowerService   = "org.freedesktop.UPower"
	upowerPath      = "/org/freedesktop/UPower"
	upowerDeviceIfc = "org.freedesktop.UPower.Device"

	// UPower device type for batteries.
	upowerTypeBattery = uint32(2)
)

// BatteryInfo is the cached battery snapshot.
type BatteryInfo struct {
	Percentage  float64
	State       string
	TimeToEmpty time.Duration
	TimeToFull  time.Duration
	Present     bool
}

// Charging reports whether the battery is taking charge.
func (i BatteryInfo) Charging() bool {
	return i.State == "charging" || i.State == "fully-charged"
}

// powerSource abstracts the battery device readout.
type powerSource interface {
	ReadInfo(ctx context.Context) (BatteryInfo, error)
}

// BatteryControl reads battery state from UPower. Desktops without a
// battery keep the neutral not-present cache.
type BatteryControl struct {
	logger *slog.Logger
	bus    *events.Bus

	mu     sync.Mutex
	status Status
	conn   *dbus.Conn
	source powerSource
	info   BatteryInfo
}

// NewBatteryControl constructs the adapter. Construction never fails.
func NewBatteryControl(logger *slog.Logger, bus *events.Bus) *BatteryControl {
	return &BatteryControl{
		logger: logger.With("adapter", "battery"),
		bus:    bus,
		info:   BatteryInfo{State: "unknown"},
	}
}

// Connect finds the first battery device on UPower. Idempotent; a host
// without a battery yields an Unavailable error and a cache-only adapter.
func (b *BatteryControl) Connect(ctx context.Context) error {
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
		return newError(KindConnection, "battery connect", err)
	}

	path, err := findBatteryDevice(ctx, conn)
	if err != nil {
		conn.Close()
		b.setUnconnected()
		return newError(KindUnavailable, "battery connect", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.source = &upowerSource{conn: conn, path: path}
	b.status = StatusConnected
	b.mu.Unlock()
	b.logger.Debug("using battery device", "path", string(path))
	return nil
}

// IsAvailable reports whether a battery device is connected.
func (b *BatteryControl) IsAvailable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status == StatusConnected
}

// Info returns the cached battery snapshot.
func (b *BatteryControl) Info() BatteryInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.info
}

// Refresh re-reads the battery and publishes a BatteryChanged event. A
// read failure keeps the previous cache and drops the connection so the
// next Connect retries.
func (b *BatteryControl) Refresh(ctx context.Context) error {
	b.mu.Lock()
	source := b.source
	b.mu.Unlock()
	if source == nil {
		return newError(KindUnavailable, "battery refresh", nil)
	}

	info, err := source.ReadInfo(ctx)
	if err != nil {
		b.setUnconnected()
		return newError(KindExecution, "battery refresh", err)
	}

	b.mu.Lock()
	b.info = info
	b.mu.Unlock()

	b.bus.Publish(events.BatteryChanged{
		Percentage: info.Percentage,
		State:      info.State,
		Charging:   info.Charging(),
	})
	return nil
}

// Close releases the system bus connection.
func (b *BatteryControl) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.source = nil
	b.status = StatusUnconnected
}

func (b *BatteryControl) setUnconnected() {
	b.mu.Lock()
	b.status = StatusUnconnected
	b.mu.Unlock()
}

func findBatteryDevice(ctx context.Context, conn *dbus.Conn) (dbus.ObjectPath, error) {
	var paths []dbus.ObjectPath
	obj := conn.Object(upowerService, upowerPath)
	if err := obj.CallWithContext(ctx, upowerService+".EnumerateDevices", 0).Store(&paths); err != nil {
		return "", fmt.Errorf("failed to enumerate power devices: %w", err)
	}

	for _, path := range paths {
		var devType uint32
		dev := conn.Object(upowerService, path)
		if err := getProperty(dev, upowerDeviceIfc+".Type", &devType); err != nil {
			continue
		}
		if devType == upowerTypeBattery {
			return path, nil
		}
	}
	return "", fmt.Errorf("no battery device found among %d power devices", len(paths))
}

type upowerSource struct {
	conn *dbus.Conn
	path dbus.ObjectPath
}

func (u *upowerSource) ReadInfo(ctx context.Context) (BatteryInfo, error) {
	dev := u.conn.Object(upowerService, u.path)

	var info BatteryInfo
	var state uint32
	var toEmpty, toFull int64

	if err := getProperty(dev, upowerDeviceIfc+".Percentage", &info.Percentage); err != nil {
		return BatteryInfo{}, fmt.Errorf("failed to read Percentage: %w", err)
	}
	if err := getProperty(dev, upowerDeviceIfc+".State", &state); err != nil {
		return BatteryInfo{}, fmt.Errorf("failed to read State: %w", err)
	}
	if err := getProperty(dev, upowerDeviceIfc+".TimeToEmpty", &toEmpty); err != nil {
		return BatteryInfo{}, fmt.Errorf("failed to read TimeToEmpty: %w", err)
	}
	if err := getProperty(dev, upowerDeviceIfc+".TimeToFull", &toFull); err != nil {
		return BatteryInfo{}, fmt.Errorf("failed to read TimeToFull: %w", err)
	}
	if err := getProperty(dev, upowerDeviceIfc+".IsPresent", &info.Present); err != nil {
		return BatteryInfo{}, fmt.Errorf("failed to read IsPresent: %w", err)
	}

	info.State = batteryStateName(state)
	info.TimeToEmpty = time.Duration(toEmpty) * time.Second
	info.TimeToFull = time.Duration(toFull) * time.Second
	return info, nil
}

// UPower state enum, per the org.freedesktop.UPower.Device docs.
func batteryStateName(state uint32) string {
	switch state {
	case 1:
		return "charging"
	case 2:
		return "discharging"
	case 3:
		return "empty"
	case 4:
		return "fully-charged"
	case 5:
		return "pending-charge"
	case 6:
		return "pending-discharge"
	default:
		return "unknown"
	}
}
