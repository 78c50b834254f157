// Package alarm contains core domain types for alert delivery.
//
// It defines FireEvent (one alarm occurrence handed over by the scheduler),
// the call and delivery state enums, the notification record shown for an
// alarm and the typed Outbound messages the delivery core produces.
package alarm
