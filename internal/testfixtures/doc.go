// Package testfixtures provides a controllable clock and a fake host timer
// facility for tests of the scheduling and delivery packages.
package testfixtures
