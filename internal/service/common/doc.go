// Package common holds helpers shared by the alarm clock binaries.
//
// It provides the gRPC client for the alarm service, with per-call timeouts
// and the calling actor attached to every request.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
