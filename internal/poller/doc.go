// Package poller drives a job progress session: it asks the progress endpoint
// for the state of one job, reflects the answer on a four-element page (label,
// bar, ready indicator, error indicator) and keeps asking at a fixed interval
// until the server reports the job ready or failed.
//
// Exactly one request is in flight per session. The next tick is scheduled
// only after the previous one fully resolves. Transport and decode failures
// are logged and retried on the same schedule without touching the page; by
// default there is no retry limit. A session ends on a server-reported error,
// a ready flag, context cancellation, or, when configured, too many
// consecutive failures.
package poller
