// Package scheduler drives the sampling cycle: read every due sensor,
// compensate, publish one immutable snapshot. Sensor I/O shares one
// bus, so reads are strictly sequential.
package scheduler

import (
	"context"
	"time"

	"github.com/terradolor/prometheus-enviro-exporter/internal/compensation"
	"github.com/terradolor/prometheus-enviro-exporter/internal/errors"
	"github.com/terradolor/prometheus-enviro-exporter/internal/logger"
	"github.com/terradolor/prometheus-enviro-exporter/internal/registry"
	"github.com/terradolor/prometheus-enviro-exporter/internal/sensor"
)

// TieredSource pairs a source with its cadence tier. Every == 0 reads
// on each sampling cycle; a longer cadence serves last-good values in
// between (the serial PM sensor is slow and does not need 1s polling).
type TieredSource struct {
	Source sensor.Source
	Every  time.Duration
}

type Config struct {
	Interval time.Duration
	Sources  []TieredSource
	Aux      sensor.AuxReader
	Engine   *compensation.Engine
	Registry *registry.Registry
}

type sourceState struct {
	src     sensor.Source
	every   time.Duration
	nextDue time.Time
	last    sensor.Readings
}

type Scheduler struct {
	sources  []sourceState
	aux      sensor.AuxReader
	engine   *compensation.Engine
	registry *registry.Registry
	interval time.Duration
	now      func() time.Time
}

func New(cfg Config) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New().WithData(errors.ErrInvalidInterval, cfg.Interval)
	}
	if len(cfg.Sources) == 0 {
		return nil, errors.New().New(errors.ErrNoSensors)
	}

	sources := make([]sourceState, len(cfg.Sources))
	for i, ts := range cfg.Sources {
		sources[i] = sourceState{src: ts.Source, every: ts.Every}
	}

	return &Scheduler{
		sources:  sources,
		aux:      cfg.Aux,
		engine:   cfg.Engine,
		registry: cfg.Registry,
		interval: cfg.Interval,
		now:      time.Now,
	}, nil
}

// Run samples until ctx is cancelled. The first cycle runs
// immediately so metrics are available without waiting one interval.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Sampling loop stopped")
			return nil
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

// cycle reads all due sources, merges in last-good values of sources
// between their cadence ticks, compensates and publishes. A cycle in
// which every attempted read fails retains the previous snapshot.
func (s *Scheduler) cycle(ctx context.Context) {
	now := s.now()

	merged := sensor.Readings{}
	attempted, failed := 0, 0

	for i := range s.sources {
		st := &s.sources[i]

		if st.every > 0 && now.Before(st.nextDue) {
			for quantity, value := range st.last {
				merged[quantity] = value
			}
			continue
		}

		attempted++
		readings, err := st.src.Read(ctx)
		if err != nil {
			failed++
			// fail-soft: quantities of this source are omitted for the cycle
			st.last = nil
			logger.Warn().
				Str("source", st.src.Name()).
				Err(err).
				Msg("Sensor read failed, omitting its metrics this cycle")
			continue
		}

		st.last = readings
		if st.every > 0 {
			st.nextDue = now.Add(st.every)
		}
		for quantity, value := range readings {
			merged[quantity] = value
		}
	}

	if attempted == 0 {
		return
	}
	if failed == attempted {
		logger.Warn().Msg("Every sensor read failed, keeping previous snapshot")
		return
	}

	cpuTemp, cpuOK := s.readAux()

	var values map[sensor.Quantity]float64
	if cpuOK {
		values = s.engine.Compensate(merged)
	} else {
		values = s.engine.Passthrough(merged)
	}
	s.registry.Publish(registry.NewSnapshot(values, now))

	// history mutates only after a successful cycle
	if cpuOK {
		s.engine.RecordCPUTemp(cpuTemp)
	}
}

func (s *Scheduler) readAux() (float64, bool) {
	if s.aux == nil {
		return 0, false
	}

	value, err := s.aux.Read()
	if err != nil {
		logger.Warn().Err(err).Msg("CPU temperature read failed, compensation degrades to passthrough")
		return 0, false
	}

	return value, true
}
