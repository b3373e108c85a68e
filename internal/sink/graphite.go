package sink

import (
	"bytes"
	"context"
	"net"
	"sort"
	"strconv"

	"github.com/terradolor/prometheus-enviro-exporter/internal/config"
	"github.com/terradolor/prometheus-enviro-exporter/internal/errors"
	"github.com/terradolor/prometheus-enviro-exporter/internal/registry"
	"github.com/terradolor/prometheus-enviro-exporter/internal/sensor"
)

// Graphite sends the snapshot as one UDP datagram of plaintext
// `prefix.metric value timestamp` lines. Fire and forget; a dead
// receiver costs nothing.
type Graphite struct {
	address string
	prefix  string
}

func NewGraphite(cfg config.GraphiteConfig) *Graphite {
	return &Graphite{
		address: cfg.Address,
		prefix:  cfg.Prefix,
	}
}

func (*Graphite) Name() string {
	return "graphite"
}

func (g *Graphite) Push(_ context.Context, snapshot *registry.Snapshot) error {
	errFactory := errors.New()

	conn, err := net.Dial("udp", g.address)
	if err != nil {
		return errFactory.Wrap(ErrConnectFailed, err).WithData(g.address)
	}
	defer conn.Close()

	if _, err := conn.Write(renderGraphite(snapshot, g.prefix)); err != nil {
		return errFactory.Wrap(ErrPushFailed, err).WithData(g.address)
	}

	return nil
}

func renderGraphite(snapshot *registry.Snapshot, prefix string) []byte {
	names := make([]string, 0, len(snapshot.Values))
	for quantity := range snapshot.Values {
		names = append(names, string(quantity))
	}
	sort.Strings(names)

	ts := strconv.FormatInt(snapshot.GeneratedAt.Unix(), 10)

	var buf bytes.Buffer
	for _, name := range names {
		buf.WriteString(prefix)
		buf.WriteByte('.')
		buf.WriteString(name)
		buf.WriteByte(' ')
		buf.WriteString(strconv.FormatFloat(snapshot.Values[sensor.Quantity(name)], 'g', -1, 64))
		buf.WriteByte(' ')
		buf.WriteString(ts)
		buf.WriteByte('\n')
	}

	return buf.Bytes()
}
