// Package config defines the settings shared by alarmd and alarmctl and
// provides helpers to load, validate and save them in YAML format.
//
// Validate fills defaults for every optional section so the rest of the
// code never has to guess a zero value.
package config
