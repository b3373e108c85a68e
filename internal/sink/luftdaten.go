package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/terradolor/prometheus-enviro-exporter/internal/config"
	"github.com/terradolor/prometheus-enviro-exporter/internal/errors"
	"github.com/terradolor/prometheus-enviro-exporter/internal/registry"
	"github.com/terradolor/prometheus-enviro-exporter/internal/sensor"
)

const (
	luftdatenPinPM      = "1"
	luftdatenPinWeather = "11"
	softwareVersion     = "prometheus-enviro-exporter 1.0"
)

// Luftdaten forwards PM and weather values to the luftdaten.info
// (sensor.community) citizen air quality network.
type Luftdaten struct {
	url      string
	sensorID string
	client   *http.Client
}

type luftdatenValue struct {
	ValueType string `json:"value_type"`
	Value     string `json:"value"`
}

type luftdatenPayload struct {
	SoftwareVersion  string           `json:"software_version"`
	SensorDataValues []luftdatenValue `json:"sensordatavalues"`
}

func NewLuftdaten(cfg config.LuftdatenConfig) *Luftdaten {
	sensorID := cfg.SensorID
	if sensorID == "" {
		sensorID = "raspi-" + boardSerial()
	}

	return &Luftdaten{
		url:      cfg.URL,
		sensorID: sensorID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (*Luftdaten) Name() string {
	return "luftdaten"
}

func (l *Luftdaten) Push(ctx context.Context, snapshot *registry.Snapshot) error {
	// pin 1 carries particulates, pin 11 the weather values; boards
	// without a PM sensor just skip pin 1
	pm := make([]luftdatenValue, 0, 2)
	if v, ok := snapshot.Values[sensor.PM10]; ok {
		pm = append(pm, luftdatenValue{ValueType: "P1", Value: fmt.Sprintf("%.2f", v)})
	}
	if v, ok := snapshot.Values[sensor.PM2_5]; ok {
		pm = append(pm, luftdatenValue{ValueType: "P2", Value: fmt.Sprintf("%.2f", v)})
	}
	if len(pm) > 0 {
		if err := l.postPin(ctx, luftdatenPinPM, pm); err != nil {
			return err
		}
	}

	weather := make([]luftdatenValue, 0, 3)
	if v, ok := snapshot.Values[sensor.Temperature]; ok {
		weather = append(weather, luftdatenValue{ValueType: "temperature", Value: fmt.Sprintf("%.2f", v)})
	}
	if v, ok := snapshot.Values[sensor.Pressure]; ok {
		weather = append(weather, luftdatenValue{ValueType: "pressure", Value: fmt.Sprintf("%.2f", v)})
	}
	if v, ok := snapshot.Values[sensor.Humidity]; ok {
		weather = append(weather, luftdatenValue{ValueType: "humidity", Value: fmt.Sprintf("%.2f", v*100)})
	}
	if len(weather) > 0 {
		if err := l.postPin(ctx, luftdatenPinWeather, weather); err != nil {
			return err
		}
	}

	return nil
}

func (l *Luftdaten) postPin(ctx context.Context, pin string, values []luftdatenValue) error {
	errFactory := errors.New()

	body, err := json.Marshal(luftdatenPayload{
		SoftwareVersion:  softwareVersion,
		SensorDataValues: values,
	})
	if err != nil {
		return errFactory.Wrap(ErrEncodeFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(body))
	if err != nil {
		return errFactory.Wrap(ErrPushFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-PIN", pin)
	req.Header.Set("X-Sensor", l.sensorID)

	resp, err := l.client.Do(req)
	if err != nil {
		return errFactory.Wrap(ErrPushFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errFactory.WithData(ErrBadStatus, resp.Status)
	}

	return nil
}

// boardSerial reads the Raspberry Pi serial number used as the
// Luftdaten sensor UID.
func boardSerial() string {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return "unknown"
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "Serial") {
			if _, value, found := strings.Cut(line, ":"); found {
				return strings.TrimSpace(value)
			}
		}
	}

	return "unknown"
}
