// Package influxdb provides InfluxDB connectivity for the ISM7 bridge.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, metric writing, and health monitoring.
//
// # Purpose
//
// Every numeric parameter value the bridge publishes (temperatures,
// pressures, counters, raw values of enumerations) is also written as a
// point of the "ism7_parameter" measurement, tagged with device, PTID and
// parameter name. Bridge counters go to "ism7_bridge".
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteParameterMetric("boiler", 7, "Kesseltemperatur", 21.5)
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered to the
// SetOnError callback. Connection and health check errors are returned directly.
package influxdb
