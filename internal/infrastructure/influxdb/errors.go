package influxdb

import "errors"

// Errors returned by the client; match them with errors.Is.
var (
	ErrNotConnected     = errors.New("influxdb: client closed")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrDisabled         = errors.New("influxdb: disabled in configuration")

	// ErrWriteFailed wraps batch failures passed to the SetOnError callback.
	ErrWriteFailed = errors.New("influxdb: batch write failed")
)
