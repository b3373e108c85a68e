package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/terradolor/prometheus-enviro-exporter/internal/compensation"
	"github.com/terradolor/prometheus-enviro-exporter/internal/config"
	"github.com/terradolor/prometheus-enviro-exporter/internal/errors"
	"github.com/terradolor/prometheus-enviro-exporter/internal/logger"
	"github.com/terradolor/prometheus-enviro-exporter/internal/pid"
	"github.com/terradolor/prometheus-enviro-exporter/internal/registry"
	"github.com/terradolor/prometheus-enviro-exporter/internal/scheduler"
	"github.com/terradolor/prometheus-enviro-exporter/internal/sensor"
	"github.com/terradolor/prometheus-enviro-exporter/internal/sink"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	logger.Debug().Msg("Config loaded")

	if err := pid.Write(); err != nil {
		logger.Error().Err(err).Msg("Another instance appears to be running")
		return 1
	}
	defer pid.Remove()

	sources, closers, err := buildSources(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("No usable sensors, exiting")
		return 1
	}
	defer closeAll(closers)

	reg := registry.New()
	sched, err := scheduler.New(scheduler.Config{
		Interval: cfg.SampleInterval(),
		Sources:  sources,
		Aux:      sensor.NewCPUTemperature(cfg.CPUTempPath),
		Engine:   compensation.NewEngine(cfg.Factor, cfg.SmoothingWindow),
		Registry: reg,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize sampling scheduler")
		return 1
	}

	if cfg.Factor > 0 {
		logger.Info().
			Float64("factor", cfg.Factor).
			Int("window", cfg.SmoothingWindow).
			Msg("Compensating for heat leakage from the CPU")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return sched.Run(ctx) })
	group.Go(func() error { return sink.NewPullServer(cfg.Bind, reg).Run(ctx) })

	pushClosers := startPushSinks(ctx, group, cfg, reg)
	defer closeAll(pushClosers)

	if err := group.Wait(); err != nil {
		logger.Error().Err(err).Msg("Daemon terminated with error")
		return 1
	}

	logger.Info().Msg("Exiting...")
	return 0
}

// buildSources probes the board's sensors. A missing device is a
// board variant, not an error; only a board with no sensors at all is
// fatal.
func buildSources(cfg *config.Config) ([]scheduler.TieredSource, []io.Closer, error) {
	var sources []scheduler.TieredSource
	var closers []io.Closer

	if weather, err := sensor.NewBME280(cfg.I2CBus); err != nil {
		logger.Warn().Err(err).Msg("BME280 weather sensor unavailable")
	} else {
		sources = append(sources, scheduler.TieredSource{Source: weather})
		closers = append(closers, weather)
	}

	if light, err := sensor.NewLTR559(cfg.I2CBus); err != nil {
		logger.Warn().Err(err).Msg("LTR559 light sensor unavailable")
	} else {
		sources = append(sources, scheduler.TieredSource{Source: light})
		closers = append(closers, light)
	}

	if cfg.Enviro {
		logger.Info().Msg("Basic Enviro board, skipping gas and particulate sensors")
	} else {
		if gas, err := sensor.NewGas(cfg.I2CBus); err != nil {
			logger.Warn().Err(err).Msg("Gas sensor ADC unavailable")
		} else {
			sources = append(sources, scheduler.TieredSource{Source: gas})
			closers = append(closers, gas)
		}

		if pm, err := sensor.NewPMS5003(cfg.PMDevice); err != nil {
			logger.Warn().Err(err).Msg("PMS5003 particulate sensor unavailable")
		} else {
			sources = append(sources, scheduler.TieredSource{
				Source: pm,
				Every:  cfg.PMSampleInterval(),
			})
			closers = append(closers, pm)
		}
	}

	if len(sources) == 0 {
		closeAll(closers)
		return nil, nil, errors.New().New(errors.ErrNoSensors)
	}

	return sources, closers, nil
}

// startPushSinks launches a runner per enabled push sink. A sink that
// fails to initialize is skipped with a warning; it must never take
// the sampling pipeline down with it.
func startPushSinks(ctx context.Context, group *errgroup.Group, cfg *config.Config, reg *registry.Registry) []io.Closer {
	var closers []io.Closer

	launch := func(p sink.Pusher, interval float64) {
		runner, err := sink.NewRunner(p, reg, secondsToDuration(interval))
		if err != nil {
			logger.Warn().Str("sink", p.Name()).Err(err).Msg("Skipping push sink")
			return
		}
		group.Go(func() error { return runner.Run(ctx) })
	}

	if cfg.Luftdaten.Enabled {
		launch(sink.NewLuftdaten(cfg.Luftdaten), cfg.Luftdaten.Interval)
	}

	if cfg.Influx.Enabled {
		influx := sink.NewInflux(cfg.Influx)
		closers = append(closers, influx)
		launch(influx, cfg.Influx.Interval)
	}

	if cfg.MQTT.Enabled {
		if mq, err := sink.NewMQTT(cfg.MQTT); err != nil {
			logger.Warn().Err(err).Msg("MQTT broker unreachable, skipping sink")
		} else {
			closers = append(closers, mq)
			launch(mq, cfg.MQTT.Interval)
		}
	}

	if cfg.Journal.Enabled {
		if journal, err := sink.NewJournal(cfg.Journal); err != nil {
			logger.Warn().Err(err).Msg("Journal storage unavailable, skipping sink")
		} else {
			closers = append(closers, journal)
			launch(journal, cfg.Journal.Interval)
		}
	}

	if cfg.Graphite.Enabled {
		launch(sink.NewGraphite(cfg.Graphite), cfg.Graphite.Interval)
	}

	return closers
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Warn().Err(err).Msg("Close failed")
		}
	}
}
