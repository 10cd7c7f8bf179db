package progress

import "strconv"

// Response is the body returned by GET /api/progress/{job_id}. Every field is
// optional; JSON null and absent fields decode to the zero value, which is
// also the default the poller applies.
type Response struct {
	// Progress is the completion percentage, expected in [0, 100].
	Progress float64 `json:"progress"`
	// Message is the human-readable status line.
	Message string `json:"message"`
	// Ready reports job completion.
	Ready bool `json:"ready"`
	// Error carries a server-reported failure; empty means no error.
	Error string `json:"error"`
	// Status is the coarse server-side status (queued, running, done, failed).
	// It is informational only.
	Status string `json:"status,omitempty"`
}

// Failed reports whether the server signalled a job error.
func (r Response) Failed() bool {
	return r.Error != ""
}

// Width renders Progress as a CSS-style percentage width such as "55%" or
// "12.5%".
func (r Response) Width() string {
	return FormatPercent(r.Progress)
}

// FormatPercent formats v using the shortest decimal representation followed
// by a percent sign.
func FormatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}
