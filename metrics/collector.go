// Package metrics exposes Prometheus metrics fed from the event bus.
package metrics

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/amiya-sh/amiya/events"
)

// Collector subscribes to the event bus and exposes Prometheus metrics.
type Collector struct {
	logger *slog.Logger
	sub    *events.Subscriber

	eventCounter  *prometheus.CounterVec
	droppedTotal  prometheus.CounterFunc
	volumeGauge   prometheus.Gauge
	mutedGauge    prometheus.Gauge
	brightGauge   prometheus.Gauge
	cpuGauge      prometheus.Gauge
	memGauge      prometheus.Gauge
	tempGauge     prometheus.Gauge
	batteryGauge  prometheus.Gauge
	chargingGauge prometheus.Gauge
	wifiGauge     prometheus.Gauge
	btGauge       prometheus.Gauge
	wsGauge       prometheus.Gauge

	shutdownOnce sync.Once
	worker       sync.WaitGroup
}

// CommandCounter builds the counter the command server increments per
// handled command.
func CommandCounter(reg prometheus.Registerer) *prometheus.CounterVec {
	return promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "amiya_commands_total",
		Help: "Total commands handled by the control socket",
	}, []string{"command", "outcome"})
}

// NewCollector subscribes to bus and keeps the gauges current until
// Close.
func NewCollector(logger *slog.Logger, bus *events.Bus, reg prometheus.Registerer) (*Collector, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	gauge := func(name, help string) prometheus.Gauge {
		return promauto.With(reg).NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}

	c := &Collector{
		logger: logger.With("component", "metrics"),
		sub:    bus.Subscribe(),
		eventCounter: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "amiya_events_total",
			Help: "Total events published on the bus by type",
		}, []string{"type"}),
		droppedTotal: promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
			Name: "amiya_event_bus_dropped_total",
			Help: "Events dropped due to slow subscribers",
		}, func() float64 { return float64(bus.Dropped()) }),
		volumeGauge:   gauge("amiya_volume_level", "Cached volume level in percent"),
		mutedGauge:    gauge("amiya_volume_muted", "1 when audio is muted"),
		brightGauge:   gauge("amiya_brightness_level", "Cached brightness level in percent"),
		cpuGauge:      gauge("amiya_cpu_usage_percent", "CPU usage in percent"),
		memGauge:      gauge("amiya_memory_usage_percent", "Memory usage in percent"),
		tempGauge:     gauge("amiya_temperature_celsius", "CPU temperature in celsius"),
		batteryGauge:  gauge("amiya_battery_percent", "Battery charge in percent"),
		chargingGauge: gauge("amiya_battery_charging", "1 when the battery is charging"),
		wifiGauge:     gauge("amiya_wifi_enabled", "1 when wifi is enabled"),
		btGauge:       gauge("amiya_bluetooth_enabled", "1 when bluetooth is enabled"),
		wsGauge:       gauge("amiya_workspaces", "Number of compositor workspaces"),
	}

	c.worker.Add(1)
	go c.consume()

	c.logger.Info("metrics collector started")
	return c, nil
}

// Close stops the collector and detaches from the bus.
func (c *Collector) Close() {
	c.shutdownOnce.Do(func() {
		c.sub.Close()
		c.worker.Wait()
		c.logger.Info("metrics collector stopped")
	})
}

func (c *Collector) consume() {
	defer c.worker.Done()
	for ev := range c.sub.Events() {
		c.observe(ev)
	}
}

func (c *Collector) observe(ev events.Event) {
	c.eventCounter.WithLabelValues(ev.Type()).Inc()

	switch ev := ev.(type) {
	case events.VolumeChanged:
		c.volumeGauge.Set(ev.Level)
		c.mutedGauge.Set(boolValue(ev.Muted))
	case events.BrightnessChanged:
		c.brightGauge.Set(ev.Level)
	case events.CPUUsageChanged:
		c.cpuGauge.Set(ev.Usage)
	case events.MemoryUsageChanged:
		c.memGauge.Set(ev.Percent)
	case events.TemperatureChanged:
		c.tempGauge.Set(float64(ev.Celsius))
	case events.BatteryChanged:
		c.batteryGauge.Set(ev.Percentage)
		c.chargingGauge.Set(boolValue(ev.Charging))
	case events.WifiStateChanged:
		c.wifiGauge.Set(boolValue(ev.Enabled))
	case events.BluetoothStateChanged:
		c.btGauge.Set(boolValue(ev.Enabled))
	case events.WorkspacesUpdated:
		c.wsGauge.Set(float64(len(ev.Workspaces)))
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
