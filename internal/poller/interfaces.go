package poller

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/progress-poller/internal/progress"
)

// Fetcher retrieves the current progress of a job. The int result is the HTTP
// status code, or 0 when no response was received.
type Fetcher interface {
	Fetch(ctx context.Context, jobID string) (progress.Response, int, error)
}

// Element is one addressable page element.
type Element interface {
	SetText(text string)
	SetStyle(property, value string)
	RemoveClass(class string)
}

// Page resolves elements by their stable identifier.
type Page interface {
	Element(id string) (Element, error)
}

// PageFunc adapts a lookup function to the Page interface.
type PageFunc func(id string) (Element, error)

// Element calls f(id).
func (f PageFunc) Element(id string) (Element, error) {
	return f(id)
}

// Clock supplies timestamps and the inter-tick delay.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// IDGenerator mints session identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}
