package sensor

import (
	"context"
	"time"

	"github.com/terradolor/prometheus-enviro-exporter/internal/errors"
	"periph.io/x/conn/v3/i2c"
)

const ltr559Addr = 0x23

// LTR559 register map (subset)
const (
	ltr559ALSControl  = 0x80
	ltr559PSControl   = 0x81
	ltr559PSLED       = 0x82
	ltr559ALSMeasRate = 0x85
	ltr559ALSData     = 0x88 // ch1 low, ch1 high, ch0 low, ch0 high
	ltr559PSData      = 0x8D // 11 bits over two registers
)

const (
	ltr559ALSGain = 4.0  // gain x4, ALS_CONTROL gain bits 0b010
	ltr559ALSInt  = 50.0 // integration time ms
)

// LTR559 is the ambient light and proximity sensor. No vendor driver
// exists in periph.io, so this talks registers directly.
type LTR559 struct {
	dev i2c.Dev
	bus i2c.BusCloser
}

func NewLTR559(busName string) (*LTR559, error) {
	bus, err := openBus(busName)
	if err != nil {
		return nil, err
	}

	l := &LTR559{
		dev: i2c.Dev{Addr: ltr559Addr, Bus: bus},
		bus: bus,
	}

	// ALS active, gain x4; PS active; 50ms integration, 50ms repeat
	if err := l.writeReg(ltr559ALSControl, 0b01001); err != nil {
		bus.Close()
		return nil, errors.New().Wrap(ErrDeviceInitFailed, err).WithData("ltr559")
	}
	if err := l.writeReg(ltr559ALSMeasRate, 0b001_000); err != nil {
		bus.Close()
		return nil, errors.New().Wrap(ErrDeviceInitFailed, err).WithData("ltr559")
	}
	if err := l.writeReg(ltr559PSControl, 0x03); err != nil {
		bus.Close()
		return nil, errors.New().Wrap(ErrDeviceInitFailed, err).WithData("ltr559")
	}

	// First ALS conversion needs one integration period
	time.Sleep(100 * time.Millisecond)

	return l, nil
}

func (*LTR559) Name() string {
	return "ltr559"
}

func (*LTR559) Quantities() []Quantity {
	return []Quantity{Light, Proximity}
}

func (l *LTR559) Read(_ context.Context) (Readings, error) {
	var als [4]byte
	if err := l.dev.Tx([]byte{ltr559ALSData}, als[:]); err != nil {
		return nil, errors.New().Wrap(ErrReadFailed, err).WithData("ltr559")
	}

	ch1 := float64(uint16(als[0]) | uint16(als[1])<<8)
	ch0 := float64(uint16(als[2]) | uint16(als[3])<<8)

	var ps [2]byte
	if err := l.dev.Tx([]byte{ltr559PSData}, ps[:]); err != nil {
		return nil, errors.New().Wrap(ErrReadFailed, err).WithData("ltr559")
	}
	proximity := float64(uint16(ps[0]) | (uint16(ps[1])&0x07)<<8)

	return Readings{
		Light:     lux(ch0, ch1),
		Proximity: proximity,
	}, nil
}

func (l *LTR559) Close() error {
	// Standby both engines
	if err := l.writeReg(ltr559ALSControl, 0x00); err != nil {
		return err
	}
	if err := l.writeReg(ltr559PSControl, 0x00); err != nil {
		return err
	}

	return l.bus.Close()
}

func (l *LTR559) writeReg(reg, val byte) error {
	return l.dev.Tx([]byte{reg, val}, nil)
}

// lux converts the two ALS channels to lux using the datasheet
// segment coefficients, scaled by gain and integration time.
func lux(ch0, ch1 float64) float64 {
	if ch0+ch1 == 0 {
		return 0
	}

	ratio := ch1 / (ch0 + ch1) * 100

	var l float64
	switch {
	case ratio < 45:
		l = 1.7743*ch0 + 1.1059*ch1
	case ratio < 64:
		l = 4.2785*ch0 - 1.9548*ch1
	case ratio < 85:
		l = 0.5926*ch0 + 0.1185*ch1
	default:
		return 0
	}

	l /= ltr559ALSGain * (ltr559ALSInt / 100.0)
	if l < 0 {
		return 0
	}

	return l
}
