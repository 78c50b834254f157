// Package config defines the settings shared by the klaxon daemon and its
// control CLI and provides helpers to load, validate and save them in YAML.
//
// Validate fills in defaults, so a zero Config validates to a daemon on the
// default listen address with a JSON snooze file and no audio output.
package config
