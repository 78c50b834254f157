// Package daemon runs the alarm-klaxon process.
//
// It loads the configuration, wires the playback controller, the delivery
// coordinator and the snooze store together, and serves the AlarmDelivery gRPC
// API plus an optional Prometheus endpoint until the context is cancelled.
// Only one daemon may run per host because audio output and vibration are
// process-wide resources.
package daemon
