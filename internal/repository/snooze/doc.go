// Package snooze persists snoozed-until times per alarm id.
//
// FileRepository stores them as protobuf JSON on disk, SQLiteRepository in a
// single SQLite table. The scheduler reads the records to re-deliver snoozed
// alarms; the delivery core writes and clears them.
package snooze
