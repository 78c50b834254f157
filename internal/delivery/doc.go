// Package delivery implements the alarm delivery coordinator.
//
// Every alarm id owns a mailbox drained by its own goroutine, so events for one
// id (fire, kill, user action, call state, hold re-delivery) are processed
// serially while different ids proceed independently. Timer callbacks and the
// playback listener only post to mailboxes and never block.
//
// State per id moves between idle, held_for_call, alerting and snoozed. Each
// state change produces exactly one notification show or cancel on the
// outbound Publisher.
package delivery
