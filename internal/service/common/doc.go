// Package common holds helpers shared by several services.
//
// It provides a lightweight AlarmDelivery gRPC client wrapper with timeouts and
// a helper to detect the current system actor (username@hostname) for audit logs.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
