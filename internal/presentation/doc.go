// Package presentation launches the surface that shows a ringing alarm.
package presentation
