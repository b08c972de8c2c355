// Package sysmon samples CPU, memory and temperature and publishes the
// readings as events.
package sysmon

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"

	"github.com/amiya-sh/amiya/events"
)

// Sensor keys tried in order when picking the CPU temperature.
var preferredSensors = []string{"coretemp", "k10temp", "cpu_thermal", "acpitz"}

// Sampler publishes CPUUsageChanged and MemoryUsageChanged every sample
// interval and TemperatureChanged every temperature interval. Read
// failures are logged at debug and sampling continues.
type Sampler struct {
	logger      *slog.Logger
	bus         *events.Bus
	sampleEvery time.Duration
	tempEvery   time.Duration

	readCPU  func(ctx context.Context) (float64, error)
	readMem  func(ctx context.Context) (used, total uint64, percent float64, err error)
	readTemp func(ctx context.Context) (int, error)
}

// New constructs a sampler with the gopsutil probes.
func New(logger *slog.Logger, bus *events.Bus, sampleEvery, tempEvery time.Duration) *Sampler {
	if sampleEvery <= 0 {
		sampleEvery = 2 * time.Second
	}
	if tempEvery <= 0 {
		tempEvery = 5 * time.Second
	}
	return &Sampler{
		logger:      logger.With("component", "sysmon"),
		bus:         bus,
		sampleEvery: sampleEvery,
		tempEvery:   tempEvery,
		readCPU:     readCPUPercent,
		readMem:     readMemory,
		readTemp:    readTemperature,
	}
}

// Run samples until ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	// Prime the CPU counters; the first gopsutil reading compares
	// against this call.
	s.readCPU(ctx)

	sampleTicker := time.NewTicker(s.sampleEvery)
	defer sampleTicker.Stop()
	tempTicker := time.NewTicker(s.tempEvery)
	defer tempTicker.Stop()

	s.sampleTemperature(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sampleTicker.C:
			s.sample(ctx)
		case <-tempTicker.C:
			s.sampleTemperature(ctx)
		}
	}
}

func (s *Sampler) sample(ctx context.Context) {
	if usage, err := s.readCPU(ctx); err != nil {
		s.logger.Debug("cpu sample failed", "error", err)
	} else {
		s.bus.Publish(events.CPUUsageChanged{Usage: usage})
	}

	if used, total, percent, err := s.readMem(ctx); err != nil {
		s.logger.Debug("memory sample failed", "error", err)
	} else {
		s.bus.Publish(events.MemoryUsageChanged{Used: used, Total: total, Percent: percent})
	}
}

func (s *Sampler) sampleTemperature(ctx context.Context) {
	celsius, err := s.readTemp(ctx)
	if err != nil {
		s.logger.Debug("temperature sample failed", "error", err)
		return
	}
	s.bus.Publish(events.TemperatureChanged{Celsius: celsius})
}

func readCPUPercent(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("no cpu readings")
	}
	return percents[0], nil
}

func readMemory(ctx context.Context) (uint64, uint64, float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	return vm.Used, vm.Total, vm.UsedPercent, nil
}

func readTemperature(ctx context.Context) (int, error) {
	stats, err := sensors.TemperaturesWithContext(ctx)
	if err != nil {
		return 0, err
	}
	if len(stats) == 0 {
		return 0, fmt.Errorf("no temperature sensors")
	}

	for _, preferred := range preferredSensors {
		for _, stat := range stats {
			if strings.Contains(stat.SensorKey, preferred) && stat.Temperature > 0 {
				return int(math.Round(stat.Temperature)), nil
			}
		}
	}
	return int(math.Round(stats[0].Temperature)), nil
}
