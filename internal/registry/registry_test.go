package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terradolor/prometheus-enviro-exporter/internal/sensor"
)

func TestPublishCurrentRoundTrip(t *testing.T) {
	r := New()
	snap := NewSnapshot(map[sensor.Quantity]float64{sensor.Temperature: 21.5}, time.Now())

	r.Publish(snap)
	assert.Same(t, snap, r.Current())
}

func TestCurrentNilBeforeFirstPublish(t *testing.T) {
	r := New()
	assert.Nil(t, r.Current(), "registry starts in not-ready state")
}

func TestSnapshotCopiesInput(t *testing.T) {
	values := map[sensor.Quantity]float64{sensor.Temperature: 20.0}
	snap := NewSnapshot(values, time.Now())

	values[sensor.Temperature] = 99.0
	assert.InDelta(t, 20.0, snap.Values[sensor.Temperature], 1e-9,
		"published snapshot must not alias the cycle's working map")
}

func TestConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	r := New()
	r.Publish(NewSnapshot(map[sensor.Quantity]float64{
		sensor.Temperature: 0,
		sensor.Humidity:    0,
	}, time.Now()))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := r.Current()
				require.NotNil(t, snap)
				// both values written in the same cycle must match
				assert.InDelta(t, snap.Values[sensor.Temperature], snap.Values[sensor.Humidity], 1e-9)
			}
		}()
	}

	for i := 1; i <= 1000; i++ {
		v := float64(i)
		r.Publish(NewSnapshot(map[sensor.Quantity]float64{
			sensor.Temperature: v,
			sensor.Humidity:    v,
		}, time.Now()))
	}

	close(stop)
	wg.Wait()
}
