// Package delivery runs a fired alarm: it holds a wake lease, starts the
// alerting backend, launches the ringing surface and owns the single
// process-wide ringing session slot.
//
// Every transition of the slot happens under one mutex, so a dismiss that
// arrives while a delivery is still setting up either sees no session (and
// is a no-op) or runs after the alert has fully started. Each delivery step
// is guarded: its failure is logged and the next step still runs.
//
// The presentation retry is a deferred one-shot task. Acknowledging the
// session cancels it.
package delivery
