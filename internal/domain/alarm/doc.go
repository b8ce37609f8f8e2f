// Package alarm contains core domain types for the alarm clock engine.
//
// It defines Record (one configured alarm), Session (one delivery of a fired
// alarm, from Triggered to Acknowledged) and the error taxonomy shared by the
// scheduler, the delivery pipeline and the service facade. Clone helpers keep
// callers from leaking internal references.
package alarm
