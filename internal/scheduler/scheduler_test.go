package scheduler

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terradolor/prometheus-enviro-exporter/internal/compensation"
	"github.com/terradolor/prometheus-enviro-exporter/internal/errors"
	"github.com/terradolor/prometheus-enviro-exporter/internal/logger"
	"github.com/terradolor/prometheus-enviro-exporter/internal/registry"
	"github.com/terradolor/prometheus-enviro-exporter/internal/sensor"
)

func TestMain(m *testing.M) {
	logger.Init("error", true)
	os.Exit(m.Run())
}

func newScheduler(t *testing.T, sources ...TieredSource) (*Scheduler, *registry.Registry) {
	t.Helper()

	reg := registry.New()
	s, err := New(Config{
		Interval: time.Second,
		Sources:  sources,
		Aux:      &sensor.MockAux{Value: 50.0},
		Engine:   compensation.NewEngine(0, 5),
		Registry: reg,
	})
	require.NoError(t, err)

	return s, reg
}

func TestNewRejectsBadInterval(t *testing.T) {
	_, err := New(Config{Interval: 0})
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidInterval, errors.CodeOf(err))
}

func TestNewRejectsNoSources(t *testing.T) {
	_, err := New(Config{Interval: time.Second})
	require.Error(t, err)
	assert.Equal(t, errors.ErrNoSensors, errors.CodeOf(err))
}

func TestCyclePublishesSnapshot(t *testing.T) {
	src := &sensor.MockSource{
		SourceName: "weather",
		Provides:   []sensor.Quantity{sensor.Temperature},
		ReadFunc: func(context.Context) (sensor.Readings, error) {
			return sensor.Readings{sensor.Temperature: 21.5}, nil
		},
	}
	s, reg := newScheduler(t, TieredSource{Source: src})

	s.cycle(context.Background())

	snap := reg.Current()
	require.NotNil(t, snap)
	assert.InDelta(t, 21.5, snap.Values[sensor.Temperature], 1e-9)
	assert.False(t, snap.GeneratedAt.IsZero())
}

func TestAllReadsFailedRetainsPreviousSnapshot(t *testing.T) {
	healthy := true
	src := &sensor.MockSource{
		SourceName: "weather",
		Provides:   []sensor.Quantity{sensor.Temperature},
		ReadFunc: func(context.Context) (sensor.Readings, error) {
			if !healthy {
				return nil, errors.New().New(sensor.ErrReadFailed)
			}
			return sensor.Readings{sensor.Temperature: 20.0}, nil
		},
	}
	s, reg := newScheduler(t, TieredSource{Source: src})

	s.cycle(context.Background())
	before := reg.Current()
	require.NotNil(t, before)

	healthy = false
	s.cycle(context.Background())

	assert.Same(t, before, reg.Current(), "failed cycle must not replace the snapshot")
}

func TestPartialFailureOmitsFailedMetrics(t *testing.T) {
	weather := &sensor.MockSource{
		SourceName: "weather",
		Provides:   []sensor.Quantity{sensor.Temperature},
		ReadFunc: func(context.Context) (sensor.Readings, error) {
			return sensor.Readings{sensor.Temperature: 19.0}, nil
		},
	}
	pm := &sensor.MockSource{
		SourceName: "pms5003",
		Provides:   []sensor.Quantity{sensor.PM2_5},
		ReadFunc: func(context.Context) (sensor.Readings, error) {
			return nil, errors.New().New(sensor.ErrReadTimeout)
		},
	}
	s, reg := newScheduler(t, TieredSource{Source: weather}, TieredSource{Source: pm})

	s.cycle(context.Background())

	snap := reg.Current()
	require.NotNil(t, snap)
	assert.InDelta(t, 19.0, snap.Values[sensor.Temperature], 1e-9)
	_, hasPM := snap.Values[sensor.PM2_5]
	assert.False(t, hasPM, "failed sensor's metrics omitted, not zeroed")
}

func TestSlowTierServedFromLastGoodReadings(t *testing.T) {
	fast := &sensor.MockSource{
		SourceName: "weather",
		Provides:   []sensor.Quantity{sensor.Temperature},
		ReadFunc: func(context.Context) (sensor.Readings, error) {
			return sensor.Readings{sensor.Temperature: 19.0}, nil
		},
	}
	slow := &sensor.MockSource{
		SourceName: "pms5003",
		Provides:   []sensor.Quantity{sensor.PM10},
		ReadFunc: func(context.Context) (sensor.Readings, error) {
			return sensor.Readings{sensor.PM10: 31.0}, nil
		},
	}
	s, reg := newScheduler(t,
		TieredSource{Source: fast},
		TieredSource{Source: slow, Every: time.Hour},
	)

	s.cycle(context.Background())
	s.cycle(context.Background())
	s.cycle(context.Background())

	assert.Equal(t, 3, fast.ReadCount, "fast tier read every cycle")
	assert.Equal(t, 1, slow.ReadCount, "slow tier read once within its cadence")

	snap := reg.Current()
	require.NotNil(t, snap)
	assert.InDelta(t, 31.0, snap.Values[sensor.PM10], 1e-9,
		"slow tier values persist between its reads")
}

func TestCompensationAppliedOnceWindowFull(t *testing.T) {
	src := &sensor.MockSource{
		SourceName: "weather",
		Provides:   []sensor.Quantity{sensor.Temperature},
		ReadFunc: func(context.Context) (sensor.Readings, error) {
			return sensor.Readings{sensor.Temperature: 32.0}, nil
		},
	}
	reg := registry.New()
	s, err := New(Config{
		Interval: time.Second,
		Sources:  []TieredSource{{Source: src}},
		Aux:      &sensor.MockAux{Value: 50.0},
		Engine:   compensation.NewEngine(1.5, 2),
		Registry: reg,
	})
	require.NoError(t, err)

	// cycles 1-2: history filling, passthrough
	s.cycle(context.Background())
	assert.InDelta(t, 32.0, reg.Current().Values[sensor.Temperature], 1e-9)
	s.cycle(context.Background())

	// cycle 3: window of CPU samples complete, 32 - 1.5*(50-32) = 5
	s.cycle(context.Background())
	assert.InDelta(t, 5.0, reg.Current().Values[sensor.Temperature], 1e-9)
}

func TestAuxFailureDegradesCycleToPassthrough(t *testing.T) {
	src := &sensor.MockSource{
		SourceName: "weather",
		Provides:   []sensor.Quantity{sensor.Temperature},
		ReadFunc: func(context.Context) (sensor.Readings, error) {
			return sensor.Readings{sensor.Temperature: 32.0}, nil
		},
	}
	aux := &sensor.MockAux{Value: 50.0}
	reg := registry.New()
	s, err := New(Config{
		Interval: time.Second,
		Sources:  []TieredSource{{Source: src}},
		Aux:      aux,
		Engine:   compensation.NewEngine(1.5, 2),
		Registry: reg,
	})
	require.NoError(t, err)

	// fill the smoothing window
	s.cycle(context.Background())
	s.cycle(context.Background())

	// CPU temperature unreadable: raw value published even though the
	// stored history is full
	aux.Err = errors.New().New(sensor.ErrAuxReadFailed)
	s.cycle(context.Background())
	assert.InDelta(t, 32.0, reg.Current().Values[sensor.Temperature], 1e-9)

	// compensation resumes once the aux read recovers
	aux.Err = nil
	s.cycle(context.Background())
	assert.InDelta(t, 5.0, reg.Current().Values[sensor.Temperature], 1e-9)
}

func TestRunStopsOnCancel(t *testing.T) {
	src := &sensor.MockSource{
		SourceName: "weather",
		Provides:   []sensor.Quantity{sensor.Temperature},
		ReadFunc: func(context.Context) (sensor.Readings, error) {
			return sensor.Readings{sensor.Temperature: 20.0}, nil
		},
	}
	s, _ := newScheduler(t, TieredSource{Source: src})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not observe cancellation within one interval")
	}
}
