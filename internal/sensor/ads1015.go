package sensor

import (
	"context"
	"time"

	"github.com/terradolor/prometheus-enviro-exporter/internal/errors"
	"periph.io/x/conn/v3/i2c"
)

const ads1015Addr = 0x48

const (
	ads1015ConversionReg = 0x00
	ads1015ConfigReg     = 0x01

	// OS=1, PGA ±6.144V, single shot, 1600SPS, comparator disabled
	ads1015ConfigBase = 0x8183

	ads1015MuxAIN0 = 0x4000 // gas OX
	ads1015MuxAIN1 = 0x5000 // gas RED
	ads1015MuxAIN2 = 0x6000 // gas NH3
	ads1015MuxAIN3 = 0x7000 // mic

	ads1015VoltsPerLSB = 0.003 // 6.144V full scale over 11 bits
)

const (
	gasSupplyVolts = 3.3
	gasPullUpOhms  = 56000.0
	noiseSamples   = 32
)

// Gas reads the MICS6814 oxidising, reducing and NH3 channels through
// the board ADC and reports sensor resistance in ohms. The mic on the
// fourth channel yields a peak-to-peak amplitude as a noise proxy.
type Gas struct {
	dev i2c.Dev
	bus i2c.BusCloser
}

func NewGas(busName string) (*Gas, error) {
	bus, err := openBus(busName)
	if err != nil {
		return nil, err
	}

	g := &Gas{
		dev: i2c.Dev{Addr: ads1015Addr, Bus: bus},
		bus: bus,
	}

	// Probe: one throwaway conversion proves the ADC is present
	if _, err := g.convert(ads1015MuxAIN0); err != nil {
		bus.Close()
		return nil, errors.New().Wrap(ErrDeviceInitFailed, err).WithData("ads1015")
	}

	return g, nil
}

func (*Gas) Name() string {
	return "mics6814"
}

func (*Gas) Quantities() []Quantity {
	return []Quantity{GasOxidising, GasReducing, GasNH3, Noise}
}

func (g *Gas) Read(_ context.Context) (Readings, error) {
	readings := Readings{}

	for quantity, mux := range map[Quantity]uint16{
		GasOxidising: ads1015MuxAIN0,
		GasReducing:  ads1015MuxAIN1,
		GasNH3:       ads1015MuxAIN2,
	} {
		volts, err := g.convert(mux)
		if err != nil {
			return nil, errors.New().Wrap(ErrReadFailed, err).WithData("ads1015")
		}
		readings[quantity] = gasResistance(volts)
	}

	noise, err := g.noisePeakToPeak()
	if err != nil {
		return nil, errors.New().Wrap(ErrReadFailed, err).WithData("ads1015")
	}
	readings[Noise] = noise

	return readings, nil
}

func (g *Gas) Close() error {
	return g.bus.Close()
}

// convert runs a single-shot conversion on the given input channel
// and returns the measured voltage.
func (g *Gas) convert(mux uint16) (float64, error) {
	cfg := uint16(ads1015ConfigBase) | mux
	if err := g.dev.Tx([]byte{ads1015ConfigReg, byte(cfg >> 8), byte(cfg)}, nil); err != nil {
		return 0, err
	}

	// 1600SPS conversion takes 625us
	time.Sleep(2 * time.Millisecond)

	var buf [2]byte
	if err := g.dev.Tx([]byte{ads1015ConversionReg}, buf[:]); err != nil {
		return 0, err
	}

	raw := int16(uint16(buf[0])<<8|uint16(buf[1])) >> 4

	return float64(raw) * ads1015VoltsPerLSB, nil
}

func (g *Gas) noisePeakToPeak() (float64, error) {
	min, max := 0.0, 0.0
	for i := 0; i < noiseSamples; i++ {
		v, err := g.convert(ads1015MuxAIN3)
		if err != nil {
			return 0, err
		}
		if i == 0 || v < min {
			min = v
		}
		if i == 0 || v > max {
			max = v
		}
	}

	return max - min, nil
}

// gasResistance converts the divider voltage to sensor resistance.
func gasResistance(volts float64) float64 {
	if volts >= gasSupplyVolts {
		return 0
	}

	return volts * gasPullUpOhms / (gasSupplyVolts - volts)
}
