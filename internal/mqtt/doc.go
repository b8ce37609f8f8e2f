// Package mqtt mirrors the ringing alarm to companion devices over MQTT.
//
// While an alarm rings, a retained message on <prefix>/ringing describes it;
// it is replaced by a "ringing": false message when the alarm stops.
// Companion devices acknowledge by publishing "dismiss", "snooze" or
// "snooze:<duration>" to <prefix>/actions.
package mqtt
