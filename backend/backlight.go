package backend

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/amiya-sh/amiya/events"
)

const sysfsBacklightRoot = "/sys/class/backlight"

// Preferred controllers, checked in order before falling back to whatever
// the kernel exposes first.
var preferredBacklights = []string{
	"intel_backlight",
	"amdgpu_bl0",
	"radeon_bl0",
	"acpi_video0",
}

// backlightDevice abstracts one sysfs backlight controller.
type backlightDevice interface {
	Name() string
	ReadPercent() (float64, error)
	WritePercent(level float64) error
}

// BacklightControl manages display brightness through sysfs. Hosts without
// a backlight controller keep a cache-only adapter at a neutral 50%.
type BacklightControl struct {
	logger *slog.Logger
	bus    *events.Bus
	root   string

	mu         sync.Mutex
	status     Status
	device     backlightDevice
	brightness float64
}

// NewBacklightControl constructs the adapter. Construction never fails;
// device discovery happens in Connect.
func NewBacklightControl(logger *slog.Logger, bus *events.Bus) *BacklightControl {
	return &BacklightControl{
		logger:     logger.With("adapter", "backlight"),
		bus:        bus,
		root:       sysfsBacklightRoot,
		brightness: 50.0,
	}
}

// Connect discovers the backlight device and seeds the cache with its
// current brightness. An absent device is not an error for later reads.
func (b *BacklightControl) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.status == StatusConnected {
		b.mu.Unlock()
		return nil
	}
	b.status = StatusConnecting
	root := b.root
	b.mu.Unlock()

	dev, err := discoverBacklight(root)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.status = StatusUnconnected
		return newError(KindUnavailable, "backlight connect", err)
	}

	b.device = dev
	b.status = StatusConnected
	if level, err := dev.ReadPercent(); err == nil {
		b.brightness = level
	} else {
		b.logger.Warn("failed to read initial brightness", "device", dev.Name(), "error", err)
	}
	b.logger.Debug("using backlight device", "device", dev.Name())
	return nil
}

// IsAvailable reports whether a backlight device was found.
func (b *BacklightControl) IsAvailable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.device != nil
}

// Brightness returns the cached brightness level.
func (b *BacklightControl) Brightness() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.brightness
}

// SetBrightness sets the brightness, clamped to [0, 100], and publishes a
// single BrightnessChanged event. Sysfs write failures are logged, never
// returned.
func (b *BacklightControl) SetBrightness(ctx context.Context, level float64) error {
	level = clampPercent(level)

	b.mu.Lock()
	b.brightness = level
	dev := b.device
	b.mu.Unlock()

	if dev != nil {
		if err := dev.WritePercent(level); err != nil {
			b.logger.Warn("failed to write brightness", "device", dev.Name(), "level", level, "error", err)
		}
	}
	b.bus.Publish(events.BrightnessChanged{Level: level})
	return nil
}

// IncreaseBrightness raises the brightness by step percentage points.
func (b *BacklightControl) IncreaseBrightness(ctx context.Context, step float64) error {
	return b.SetBrightness(ctx, b.Brightness()+step)
}

// DecreaseBrightness lowers the brightness by step percentage points.
func (b *BacklightControl) DecreaseBrightness(ctx context.Context, step float64) error {
	return b.SetBrightness(ctx, b.Brightness()-step)
}

func discoverBacklight(root string) (backlightDevice, error) {
	for _, name := range preferredBacklights {
		dir := filepath.Join(root, name)
		if _, err := os.Stat(filepath.Join(dir, "max_brightness")); err == nil {
			return &sysfsBacklight{name: name, dir: dir}, nil
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("no backlight devices under %s: %w", root, err)
	}
	for _, entry := range entries {
		dir := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, "max_brightness")); err == nil {
			return &sysfsBacklight{name: entry.Name(), dir: dir}, nil
		}
	}
	return nil, fmt.Errorf("no backlight devices under %s", root)
}

type sysfsBacklight struct {
	name string
	dir  string
}

func (s *sysfsBacklight) Name() string { return s.name }

func (s *sysfsBacklight) ReadPercent() (float64, error) {
	current, err := s.readValue("brightness")
	if err != nil {
		return 0, err
	}
	max, err := s.readValue("max_brightness")
	if err != nil {
		return 0, err
	}
	if max == 0 {
		return 0, fmt.Errorf("max_brightness is zero for %s", s.name)
	}
	return float64(current) / float64(max) * 100.0, nil
}

func (s *sysfsBacklight) WritePercent(level float64) error {
	max, err := s.readValue("max_brightness")
	if err != nil {
		return err
	}
	raw := int64(math.Round(level / 100.0 * float64(max)))
	path := filepath.Join(s.dir, "brightness")
	return os.WriteFile(path, []byte(strconv.FormatInt(raw, 10)), 0o644)
}

func (s *sysfsBacklight) readValue(file string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, file))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}
