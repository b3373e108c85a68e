package sensor

import "context"

// Quantity names a single physical measurement. The value doubles as
// the metric key in published snapshots.
type Quantity string

const (
	Temperature  Quantity = "temperature_celsius"
	Pressure     Quantity = "pressure_pascals"
	Humidity     Quantity = "relative_humidity"
	Light        Quantity = "light_lux"
	Proximity    Quantity = "proximity_raw"
	GasOxidising Quantity = "gas_ox_ohms"
	GasReducing  Quantity = "gas_red_ohms"
	GasNH3       Quantity = "gas_nh3_ohms"
	PM1          Quantity = "pm_1u"
	PM2_5        Quantity = "pm_2u5"
	PM10         Quantity = "pm_10u"
	Noise        Quantity = "noise_raw"
)

// Readings maps quantities to raw values for one sampling cycle.
// Quantities a board variant lacks are simply absent, never zero.
type Readings map[Quantity]float64

// Source reads one physical device. Read returns every quantity the
// device could deliver; a failed device returns an error and the
// cycle carries on without it.
type Source interface {
	Name() string
	Quantities() []Quantity
	Read(ctx context.Context) (Readings, error)
}

// AuxReader supplies the CPU board temperature used as compensation
// input. It is never exposed as a metric.
type AuxReader interface {
	Read() (float64, error)
}
