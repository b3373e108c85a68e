package sink

import "github.com/terradolor/prometheus-enviro-exporter/internal/errors"

const (
	// Delivery errors
	ErrPushFailed     = errors.ErrorCode("sink_push_failed")
	ErrBadStatus      = errors.ErrorCode("sink_bad_http_status")
	ErrConnectFailed  = errors.ErrorCode("sink_connect_failed")
	ErrEncodeFailed   = errors.ErrorCode("sink_encode_failed")
	ErrInvalidCadence = errors.ErrorCode("sink_invalid_cadence")

	// Pull endpoint errors
	ErrServeFailed = errors.ErrorCode("sink_serve_failed")

	// Journal storage errors
	ErrStorageInit   = errors.ErrorCode("sink_storage_init_failed")
	ErrStorageAccess = errors.ErrorCode("sink_storage_access_failed")
	ErrStorageClose  = errors.ErrorCode("sink_storage_close_failed")
)
