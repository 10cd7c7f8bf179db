// Package sinks implements concrete poll event consumers: structured logging,
// Prometheus, session history storage, outcome notifications and blob-stored
// session reports. Each sink satisfies the progress.Sink interface and is safe
// for repeated Consume/Close cycles.
package sinks
