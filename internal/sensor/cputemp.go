package sensor

import (
	"os"
	"strconv"
	"strings"

	"github.com/terradolor/prometheus-enviro-exporter/internal/errors"
)

// CPUTemperature reads the board CPU temperature from sysfs. The
// kernel reports millidegrees Celsius.
type CPUTemperature struct {
	path string
}

func NewCPUTemperature(path string) *CPUTemperature {
	return &CPUTemperature{path: path}
}

func (c *CPUTemperature) Read() (float64, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return 0, errors.New().Wrap(ErrAuxReadFailed, err)
	}

	milli, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, errors.New().Wrap(ErrAuxReadFailed, err)
	}

	return float64(milli) / 1000.0, nil
}
