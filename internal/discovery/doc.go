// Package discovery finds CircuitPython boards on the network and records
// them in the registry.
//
// A Fetcher reads /cp/version.json from a board's web workflow (falling
// back to the HTML info page format), a Scanner browses mDNS for boards,
// and a Recorder stores each discovery as an indented JSON document in the
// content store with the device row pointing at it.
//
// Network failures stay inside this package: the core only ever sees a
// finished record.
package discovery
