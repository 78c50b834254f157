// Package audio resolves alarm sound references to PCM clips and plays them.
//
// Built-in clips are generated tones. Any other reference is a file of raw
// signed 16-bit little-endian stereo PCM at SampleRate, resolved relative to
// the configured sound directory. PulseEngine plays clips through a
// PulseAudio server; NullEngine validates clips and only logs.
package audio
