// Package influxdb provides optional time-series telemetry.
//
// When enabled it records commodity price history per 30-minute slot,
// pilot run durations and outcomes, and spend by category. Writes are
// non-blocking and batched; a dead InfluxDB never slows an automation
// down. The whole package is inert when influxdb.enabled is false.
package influxdb
