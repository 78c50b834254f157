// Package playback drives audio, vibration and the auto-silence timer for
// the single alarm that is currently ringing.
//
// A Controller owns at most one session at a time. Every timer of a session
// (volume ramp, vibration re-trigger, auto-kill) checks under the controller
// lock that its session is still current, so a callback racing with Stop
// becomes a no-op instead of resurrecting playback.
package playback
