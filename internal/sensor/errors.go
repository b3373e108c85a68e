package sensor

import "github.com/terradolor/prometheus-enviro-exporter/internal/errors"

const (
	// Initialization errors
	ErrBusOpenFailed    = errors.ErrorCode("sensor_bus_open_failed")
	ErrDeviceInitFailed = errors.ErrorCode("sensor_device_init_failed")
	ErrHostInitFailed   = errors.ErrorCode("sensor_host_init_failed")

	// Read errors
	ErrReadFailed    = errors.ErrorCode("sensor_read_failed")
	ErrBadFrame      = errors.ErrorCode("sensor_bad_frame")
	ErrChecksum      = errors.ErrorCode("sensor_checksum_mismatch")
	ErrAuxReadFailed = errors.ErrorCode("sensor_aux_read_failed")
	ErrReadTimeout   = errors.ErrorCode("sensor_read_timeout")
)
