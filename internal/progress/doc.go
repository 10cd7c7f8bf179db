// Package progress defines the wire shape of the job progress endpoint and the
// observation events a poll session emits. Events flow through a non-blocking
// Hub that batches them on a background goroutine and fans them out to
// pluggable sinks such as structured logs, Prometheus collectors, a Postgres
// history, Pub/Sub notifications or blob-stored session reports.
package progress
