package sink

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terradolor/prometheus-enviro-exporter/internal/registry"
	"github.com/terradolor/prometheus-enviro-exporter/internal/sensor"
)

func scrape(t *testing.T, p *PullServer) (int, string) {
	t.Helper()

	rec := httptest.NewRecorder()
	p.handleMetrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)

	return rec.Code, string(body)
}

func TestMetricsNotReadyBeforeFirstCycle(t *testing.T) {
	p := NewPullServer("127.0.0.1:0", registry.New())

	code, body := scrape(t, p)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "no sensor data yet")
}

func TestMetricsRendering(t *testing.T) {
	reg := registry.New()
	reg.Publish(registry.NewSnapshot(map[sensor.Quantity]float64{
		sensor.Temperature: 21.5,
		sensor.Humidity:    0.45,
		sensor.Pressure:    101325,
	}, time.Now()))
	p := NewPullServer("127.0.0.1:0", reg)

	code, body := scrape(t, p)
	require.Equal(t, http.StatusOK, code)

	lines := strings.Split(strings.TrimRight(body, "\n"), "\n")
	assert.Equal(t, []string{
		"enviro_pressure_pascals 101325",
		"enviro_relative_humidity 0.45",
		"enviro_temperature_celsius 21.5",
	}, lines, "one sorted line per metric")
}

func TestMetricsOmitAbsentQuantities(t *testing.T) {
	// board variant without a PM sensor: no pm lines at all
	reg := registry.New()
	reg.Publish(registry.NewSnapshot(map[sensor.Quantity]float64{
		sensor.Temperature: 20.0,
	}, time.Now()))
	p := NewPullServer("127.0.0.1:0", reg)

	code, body := scrape(t, p)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, body, "pm_")
	assert.NotContains(t, body, " 0\n", "absent metrics are omitted, not zero-valued")
}

func TestConcurrentScrapesSeeConsistentSnapshot(t *testing.T) {
	reg := registry.New()
	reg.Publish(registry.NewSnapshot(map[sensor.Quantity]float64{
		sensor.Temperature: 1.0,
		sensor.Humidity:    1.0,
	}, time.Now()))
	p := NewPullServer("127.0.0.1:0", reg)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			v := float64(i)
			reg.Publish(registry.NewSnapshot(map[sensor.Quantity]float64{
				sensor.Temperature: v,
				sensor.Humidity:    v,
			}, time.Now()))
		}
	}()

	for i := 0; i < 200; i++ {
		_, body := scrape(t, p)
		lines := strings.Split(strings.TrimRight(body, "\n"), "\n")
		require.Len(t, lines, 2)
		humidity := strings.TrimPrefix(lines[0], "enviro_relative_humidity ")
		temperature := strings.TrimPrefix(lines[1], "enviro_temperature_celsius ")
		assert.Equal(t, humidity, temperature, "scrape must never mix two cycles")
	}
	<-done
}
