package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementParameter = "ism7_parameter"
	measurementBridge    = "ism7_bridge"
)

// WriteParameterMetric records one numeric parameter value.
//
// Numbers are written as is; enumerations are written with their raw wire
// value. The write is non-blocking; data is batched and sent asynchronously.
// Implements ism7.MetricWriter.
//
// Parameters:
//   - deviceID: Device identifier (e.g., "boiler")
//   - ptid: Parameter type identifier
//   - name: Parameter display name
//   - value: The numeric value to record
func (c *Client) WriteParameterMetric(deviceID string, ptid int, name string, value float64) {
	c.write(parameterPoint(deviceID, ptid, name, value, time.Now()))
}

// parameterPoint builds the point written by WriteParameterMetric.
func parameterPoint(deviceID string, ptid int, name string, value float64, at time.Time) *write.Point {
	return write.NewPoint(
		measurementParameter,
		map[string]string{
			"device_id": deviceID,
			"ptid":      strconv.Itoa(ptid),
			"name":      name,
		},
		map[string]any{
			"value": value,
		},
		at,
	)
}

// BridgeCounters is a snapshot of bridge counters.
type BridgeCounters struct {
	TelegramsRx     uint64
	CommandsTx      uint64
	ValuesPublished uint64
	Errors          uint64
}

// WriteBridgeStats records the bridge counters under the service ID.
func (c *Client) WriteBridgeStats(serviceID string, s BridgeCounters) {
	c.write(bridgePoint(serviceID, s, time.Now()))
}

// bridgePoint builds the point written by WriteBridgeStats.
func bridgePoint(serviceID string, s BridgeCounters, at time.Time) *write.Point {
	return write.NewPoint(
		measurementBridge,
		map[string]string{
			"service": serviceID,
		},
		map[string]any{
			"telegrams_rx":     int64(s.TelegramsRx),     //nolint:gosec // counters stay far below MaxInt64
			"commands_tx":      int64(s.CommandsTx),      //nolint:gosec // counters stay far below MaxInt64
			"values_published": int64(s.ValuesPublished), //nolint:gosec // counters stay far below MaxInt64
			"errors":           int64(s.Errors),          //nolint:gosec // counters stay far below MaxInt64
		},
		at,
	)
}
