// Package page models the small status page a poll session drives: a text
// label, a progress bar whose width is a percentage style, and two indicators
// (ready and error) that start hidden behind the "hide" class. Document is an
// in-memory page safe for concurrent snapshots; Renderer draws a Snapshot to a
// terminal.
package page
