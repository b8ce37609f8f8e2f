// Package client implements the alarmctl operations.
//
// Each operation talks to alarmd through the gRPC control client and
// prints a short human-readable result.
package client
