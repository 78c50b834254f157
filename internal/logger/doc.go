// Package logger wraps zap with a global sugared logger, context helpers
// (ToContext/FromContext/WithName/WithKV/WithFields), level parsing and
// KV-style convenience functions.
//
// Components take a context and log through it, so alarm and session ids
// attached once show up on every line, including lines written from timer
// callbacks.
package logger
