// Package alerting produces the sound, vibration and notification output of
// a ringing alarm.
//
// Composite drives the three channels independently: a failing channel is
// logged and never blocks the others. Sound walks a fallback chain of WAV
// files (alarm tone, ringtone, notification tone) and ends in silence when
// none of them plays. Stop is idempotent.
package alerting
