// Package instance keeps a single alarmd per host: the ringing session slot
// is process-wide and two daemons would ring twice.
package instance
