package sensor

import (
	"sync"

	"github.com/terradolor/prometheus-enviro-exporter/internal/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var (
	hostOnce    sync.Once
	hostInitErr error
)

// initHost initializes the periph host drivers once for all sensors.
func initHost() error {
	hostOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			hostInitErr = errors.New().Wrap(ErrHostInitFailed, err)
		}
	})

	return hostInitErr
}

// openBus opens the named I2C bus, or the first available one when
// name is empty. All Enviro sensors share a single bus; reads are
// serialized by the scheduler, never parallelized.
func openBus(name string) (i2c.BusCloser, error) {
	if err := initHost(); err != nil {
		return nil, err
	}

	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.New().Wrap(ErrBusOpenFailed, err).WithData(name)
	}

	return bus, nil
}
