// Package export writes the alarm schedule as an iCalendar file: one event
// with a display alarm per enabled alarm, at its next fire instant.
package export
