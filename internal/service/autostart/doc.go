// Package autostart registers alarmd to start with the user session, so
// enabled alarms are restored after a reboot.
package autostart
