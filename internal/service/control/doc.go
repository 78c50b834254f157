// Package control implements the alarm-klaxon-ctl operations.
//
// Each operation dials the daemon, performs one AlarmDelivery call and prints
// the response as JSON, one document per line.
package control
