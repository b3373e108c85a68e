package sink

import (
	"bytes"
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/terradolor/prometheus-enviro-exporter/internal/errors"
	"github.com/terradolor/prometheus-enviro-exporter/internal/logger"
	"github.com/terradolor/prometheus-enviro-exporter/internal/registry"
	"github.com/terradolor/prometheus-enviro-exporter/internal/sensor"
)

const (
	metricPrefix    = "enviro_"
	shutdownTimeout = 5 * time.Second
)

// PullServer is the pull sink: an HTTP endpoint rendering the current
// snapshot in Prometheus text format, one `name value` line per
// metric. Handlers only read the registry, so any number of
// concurrent scrapes is fine.
type PullServer struct {
	registry *registry.Registry
	server   *http.Server
}

func NewPullServer(bind string, reg *registry.Registry) *PullServer {
	p := &PullServer{registry: reg}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", p.handleMetrics)
	p.server = &http.Server{
		Addr:              bind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return p
}

// Run serves until ctx is cancelled.
func (p *PullServer) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := p.server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Metrics endpoint shutdown failed")
		}
	}()

	logger.Info().Str("bind", p.server.Addr).Msg("Metrics endpoint listening")

	if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.New().Wrap(ErrServeFailed, err)
	}

	return nil
}

func (p *PullServer) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	snapshot := p.registry.Current()
	if snapshot == nil {
		// no successful cycle yet; explicit not-ready beats fabricated zeros
		http.Error(w, "no sensor data yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write(renderSnapshot(snapshot))
}

// renderSnapshot renders one line per present metric, sorted for
// stable output. Absent quantities produce no line at all.
func renderSnapshot(snapshot *registry.Snapshot) []byte {
	names := make([]string, 0, len(snapshot.Values))
	for quantity := range snapshot.Values {
		names = append(names, string(quantity))
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for _, name := range names {
		buf.WriteString(metricPrefix)
		buf.WriteString(name)
		buf.WriteByte(' ')
		buf.WriteString(strconv.FormatFloat(snapshot.Values[sensor.Quantity(name)], 'g', -1, 64))
		buf.WriteByte('\n')
	}

	return buf.Bytes()
}
