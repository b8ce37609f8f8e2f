// Package alarm is the alarm service: the façade that creates, edits and
// deletes alarms, acknowledges the ringing one, and the alarmd daemon that
// wires it to storage, timers, alerting and the gRPC control API.
//
// Mutating calls persist the record before they touch the scheduler and
// undo the store write when scheduling fails, so a failed call leaves
// neither a persisted-but-unscheduled nor a scheduled-but-unpersisted alarm.
package alarm
