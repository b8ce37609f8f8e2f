// Package timer is the host timer facility: one pending one-shot wake-up per
// alarm id, exact (wake-from-suspend) or best effort.
package timer
