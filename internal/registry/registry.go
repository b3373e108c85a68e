// Package registry holds the current metric snapshot. Single writer
// (the sampling scheduler), any number of readers (the sinks).
package registry

import (
	"sync/atomic"
	"time"

	"github.com/terradolor/prometheus-enviro-exporter/internal/sensor"
)

// Snapshot is an immutable set of metric values from one sampling
// cycle. Never mutated after Publish; readers holding an old snapshot
// keep a consistent view while a new one is published.
type Snapshot struct {
	Values      map[sensor.Quantity]float64
	GeneratedAt time.Time
}

// NewSnapshot copies values into a fresh snapshot so later writes to
// the input map cannot leak into published state.
func NewSnapshot(values map[sensor.Quantity]float64, at time.Time) *Snapshot {
	copied := make(map[sensor.Quantity]float64, len(values))
	for quantity, value := range values {
		copied[quantity] = value
	}

	return &Snapshot{Values: copied, GeneratedAt: at}
}

// Registry swaps snapshots atomically. Current returns nil until the
// first Publish; that nil is the "not yet ready" state sinks must
// handle.
type Registry struct {
	current atomic.Pointer[Snapshot]
}

func New() *Registry {
	return &Registry{}
}

func (r *Registry) Publish(snapshot *Snapshot) {
	r.current.Store(snapshot)
}

func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}
