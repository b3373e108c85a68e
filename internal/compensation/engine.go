// Package compensation turns raw sensor readings into calibrated
// metric values. The board CPU sits close to the weather sensor and
// leaks heat into it; the engine subtracts a configurable fraction of
// the smoothed CPU-vs-ambient temperature gap and rescales relative
// humidity against the corrected temperature.
package compensation

import (
	"math"

	"github.com/terradolor/prometheus-enviro-exporter/internal/sensor"
)

// Engine applies compensation and unit conversion to one cycle of raw
// readings. The CPU temperature history is the only state; it is
// mutated solely through RecordCPUTemp at the end of a successful
// cycle.
type Engine struct {
	factor     float64
	cpuHistory *History
}

func NewEngine(factor float64, window int) *Engine {
	return &Engine{
		factor:     factor,
		cpuHistory: NewHistory(window),
	}
}

// RecordCPUTemp feeds one auxiliary CPU temperature sample into the
// smoothing window.
func (e *Engine) RecordCPUTemp(value float64) {
	e.cpuHistory.Push(value)
}

// Compensate maps raw readings to calibrated metric values. Until the
// history holds a full smoothing window the temperature passes
// through uncorrected, so metrics are available from the very first
// cycle.
func (e *Engine) Compensate(raw sensor.Readings) map[sensor.Quantity]float64 {
	out := copyReadings(raw)

	rawTemp, haveTemp := raw[sensor.Temperature]
	smoothedCPU, haveCPU := e.cpuHistory.Average()

	if haveTemp && haveCPU && e.factor != 0 && e.cpuHistory.Full() {
		compTemp := Temperature(rawTemp, smoothedCPU, e.factor)
		out[sensor.Temperature] = compTemp

		if rawHum, ok := raw[sensor.Humidity]; ok {
			out[sensor.Humidity] = Humidity(rawHum, rawTemp, compTemp)
		}
	}

	return convertUnits(out)
}

// Passthrough maps raw readings to metric values without the
// temperature correction. Used for cycles where no fresh CPU sample
// backs the smoothed history, so a stale average never corrects a
// current reading.
func (e *Engine) Passthrough(raw sensor.Readings) map[sensor.Quantity]float64 {
	return convertUnits(copyReadings(raw))
}

func copyReadings(raw sensor.Readings) map[sensor.Quantity]float64 {
	out := make(map[sensor.Quantity]float64, len(raw))
	for quantity, value := range raw {
		out[quantity] = value
	}

	return out
}

// convertUnits converts to the exported units: Pa and 0-1 ratio.
func convertUnits(out map[sensor.Quantity]float64) map[sensor.Quantity]float64 {
	if hPa, ok := out[sensor.Pressure]; ok {
		out[sensor.Pressure] = hPa * 100
	}
	if percent, ok := out[sensor.Humidity]; ok {
		out[sensor.Humidity] = percent / 100
	}

	return out
}

// Temperature corrects the raw ambient reading for CPU heat leakage:
// raw - factor*(smoothedCPU - raw). The result is not clamped.
func Temperature(raw, smoothedCPU, factor float64) float64 {
	return raw - factor*(smoothedCPU-raw)
}

// Humidity rescales relative humidity (in percent) from the biased
// temperature to the compensated one via the Magnus saturation vapour
// pressure approximation. Capped at 100%.
func Humidity(rawPercent, rawTemp, compTemp float64) float64 {
	corrected := rawPercent * saturationVapourPressure(rawTemp) / saturationVapourPressure(compTemp)
	return math.Min(corrected, 100)
}

// saturationVapourPressure is the Magnus-form approximation, hPa.
func saturationVapourPressure(tempC float64) float64 {
	return 6.112 * math.Exp(17.62*tempC/(243.12+tempC))
}
