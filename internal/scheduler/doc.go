// Package scheduler turns alarm records into pending wake-ups on the host
// timer facility.
//
// An alarm fires at today's hour:minute, or tomorrow's when that instant is
// not in the future. Each alarm id has at most one pending wake-up; a new
// registration replaces the old one. Exact wake-from-idle timers are
// requested first and a denial degrades to an inexact timer with a warning.
package scheduler
