package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/progress-poller/internal/clock/system"
	idgen "github.com/JakeFAU/progress-poller/internal/id/uuid"
	"github.com/JakeFAU/progress-poller/internal/page"
	"github.com/JakeFAU/progress-poller/internal/progress"
)

// DefaultInterval is the fixed delay between the end of one tick and the start
// of the next.
const DefaultInterval = 1000 * time.Millisecond

var (
	// ErrNoJobID is returned when a session is requested without a job id. No
	// request is issued.
	ErrNoJobID = errors.New("job id is required")
	// ErrElementNotFound is returned when the page lacks one of the bound
	// elements.
	ErrElementNotFound = errors.New("page element not found")
	// ErrTooManyFailures is returned when max consecutive failures is set and
	// reached.
	ErrTooManyFailures = errors.New("too many consecutive progress failures")
)

// Outcome describes how a session ended.
type Outcome string

// Session outcomes.
const (
	OutcomeNone      Outcome = ""
	OutcomeReady     Outcome = "ready"
	OutcomeFailed    Outcome = "failed"
	OutcomeCanceled  Outcome = "canceled"
	OutcomeAbandoned Outcome = "abandoned"
)

// Option configures a Poller.
type Option func(*Poller)

// WithInterval overrides the delay between ticks.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithClock injects the time source used for delays and timestamps.
func WithClock(c Clock) Option {
	return func(p *Poller) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithEmitter routes session events to e, typically a progress.Hub.
func WithEmitter(e progress.Emitter) Option {
	return func(p *Poller) {
		if e != nil {
			p.emitter = e
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithIDGenerator overrides how session ids are minted.
func WithIDGenerator(g IDGenerator) Option {
	return func(p *Poller) {
		if g != nil {
			p.ids = g
		}
	}
}

// WithMaxConsecutiveFailures abandons a session after n failed ticks in a row.
// Zero, the default, retries forever.
func WithMaxConsecutiveFailures(n int) Option {
	return func(p *Poller) {
		if n >= 0 {
			p.maxFailures = n
		}
	}
}

// Poller runs progress sessions against one Fetcher and one Page.
type Poller struct {
	fetcher     Fetcher
	page        Page
	interval    time.Duration
	clock       Clock
	emitter     progress.Emitter
	logger      *zap.Logger
	ids         IDGenerator
	maxFailures int
}

// New builds a Poller.
func New(fetcher Fetcher, pg Page, opts ...Option) *Poller {
	p := &Poller{
		fetcher:  fetcher,
		page:     pg,
		interval: DefaultInterval,
		clock:    system.New(),
		emitter:  progress.NopEmitter{},
		logger:   zap.NewNop(),
		ids:      idgen.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval reports the configured delay between ticks.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// elements holds the four handles resolved once at session start.
type elements struct {
	label Element
	bar   Element
	ready Element
	err   Element
}

func (p *Poller) bind() (elements, error) {
	var els elements
	for _, b := range []struct {
		id  string
		dst *Element
	}{
		{page.LabelID, &els.label},
		{page.BarID, &els.bar},
		{page.ReadyID, &els.ready},
		{page.ErrorID, &els.err},
	} {
		el, err := p.page.Element(b.id)
		if err != nil {
			return elements{}, fmt.Errorf("%w: %q: %w", ErrElementNotFound, b.id, err)
		}
		if el == nil {
			return elements{}, fmt.Errorf("%w: %q", ErrElementNotFound, b.id)
		}
		*b.dst = el
	}
	return els, nil
}

// prepare validates the request and resolves everything a session needs before
// the first tick.
func (p *Poller) prepare(jobID string) (*run, error) {
	if jobID == "" {
		return nil, ErrNoJobID
	}
	if p.fetcher == nil {
		return nil, errors.New("poller: fetcher is required")
	}
	if p.page == nil {
		return nil, errors.New("poller: page is required")
	}
	els, err := p.bind()
	if err != nil {
		return nil, err
	}
	id, err := p.ids.NewRawID()
	if err != nil {
		return nil, fmt.Errorf("mint session id: %w", err)
	}
	return &run{
		p:         p,
		jobID:     jobID,
		sessionID: progress.UUIDToBytes(id),
		els:       els,
		logger: p.logger.With(
			zap.String("session_id", id.String()),
			zap.String("job_id", jobID),
		),
	}, nil
}

// Run polls jobID until a terminal condition and reports how the session
// ended. A server-reported job error is a normal outcome (OutcomeFailed, nil
// error). Cancellation returns OutcomeCanceled with the context error.
func (p *Poller) Run(ctx context.Context, jobID string) (Outcome, error) {
	r, err := p.prepare(jobID)
	if err != nil {
		return OutcomeNone, err
	}
	return r.loop(ctx)
}
