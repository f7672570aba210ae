// Package output renders registry data for the terminal: fixed-width device
// tables, indented JSON and the plain-text status report.
package output
