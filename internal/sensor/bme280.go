package sensor

import (
	"context"

	"github.com/terradolor/prometheus-enviro-exporter/internal/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
)

const bme280Addr = 0x76

// BME280 is the weather sensor: ambient temperature (°C), barometric
// pressure (hPa) and relative humidity (%). Raw values only; the CPU
// heat compensation happens downstream.
type BME280 struct {
	dev *bmxx80.Dev
	bus i2c.BusCloser
}

func NewBME280(busName string) (*BME280, error) {
	bus, err := openBus(busName)
	if err != nil {
		return nil, err
	}

	dev, err := bmxx80.NewI2C(bus, bme280Addr, &bmxx80.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, errors.New().Wrap(ErrDeviceInitFailed, err).WithData("bme280")
	}

	return &BME280{dev: dev, bus: bus}, nil
}

func (*BME280) Name() string {
	return "bme280"
}

func (*BME280) Quantities() []Quantity {
	return []Quantity{Temperature, Pressure, Humidity}
}

func (b *BME280) Read(_ context.Context) (Readings, error) {
	var env physic.Env
	if err := b.dev.Sense(&env); err != nil {
		return nil, errors.New().Wrap(ErrReadFailed, err).WithData("bme280")
	}

	return Readings{
		Temperature: env.Temperature.Celsius(),
		Pressure:    float64(env.Pressure) / float64(physic.Pascal) / 100.0, // Pa to hPa
		Humidity:    float64(env.Humidity) / float64(physic.PercentRH),
	}, nil
}

func (b *BME280) Close() error {
	if err := b.dev.Halt(); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}

	return b.bus.Close()
}
