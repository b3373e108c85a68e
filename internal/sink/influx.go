package sink

import (
	"context"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/terradolor/prometheus-enviro-exporter/internal/config"
	"github.com/terradolor/prometheus-enviro-exporter/internal/errors"
	"github.com/terradolor/prometheus-enviro-exporter/internal/registry"
)

const influxMeasurement = "enviro"

// Influx writes each snapshot as one point to an InfluxDB 2.x bucket.
type Influx struct {
	client   influxdb2.Client
	write    api.WriteAPIBlocking
	location string
}

func NewInflux(cfg config.InfluxConfig) *Influx {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	return &Influx{
		client:   client,
		write:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		location: cfg.Location,
	}
}

func (*Influx) Name() string {
	return "influxdb"
}

func (i *Influx) Push(ctx context.Context, snapshot *registry.Snapshot) error {
	point := influxdb2.NewPointWithMeasurement(influxMeasurement).
		SetTime(snapshot.GeneratedAt)

	if i.location != "" {
		point.AddTag("location", i.location)
	}

	for quantity, value := range snapshot.Values {
		point.AddField(string(quantity), value)
	}

	if err := i.write.WritePoint(ctx, point); err != nil {
		return errors.New().Wrap(ErrPushFailed, err).WithData("influxdb")
	}

	return nil
}

func (i *Influx) Close() error {
	i.client.Close()
	return nil
}
