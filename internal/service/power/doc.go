// Package power talks to the host power management.
//
// WakeLocker takes a time-bounded keep-alive resource so the host does not
// suspend mid-delivery, and RTCWaker programs the real-time clock to resume
// the host from suspend at the next exact alarm instant.
package power
