package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/JakeFAU/progress-poller/internal/page"
	"github.com/JakeFAU/progress-poller/internal/progress"
)

var errConnRefused = errors.New("dial tcp 127.0.0.1:8000: connect: connection refused")

type step struct {
	resp progress.Response
	code int
	err  error
}

func ok(resp progress.Response) step { return step{resp: resp, code: 200} }

func fail(err error) step { return step{err: err} }

// scriptedFetcher answers requests from a fixed script. Once the script is
// exhausted it reports the extra request and blocks until ctx ends.
type scriptedFetcher struct {
	t     *testing.T
	mu    sync.Mutex
	steps []step
	calls int
	jobs  []string
}

func newScript(t *testing.T, steps ...step) *scriptedFetcher {
	return &scriptedFetcher{t: t, steps: steps}
}

func (f *scriptedFetcher) Fetch(ctx context.Context, jobID string) (progress.Response, int, error) {
	f.mu.Lock()
	f.calls++
	f.jobs = append(f.jobs, jobID)
	n := f.calls
	f.mu.Unlock()
	if n > len(f.steps) {
		f.t.Errorf("unexpected request #%d", n)
		<-ctx.Done()
		return progress.Response{}, 0, ctx.Err()
	}
	s := f.steps[n-1]
	return s.resp, s.code, s.err
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeClock advances one millisecond per Now call. In immediate mode After
// fires at once; in manual mode each After hands its channel to the test
// through timers.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	waits  []time.Duration
	manual bool
	timers chan chan time.Time
}

func newImmediateClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func newManualClock() *fakeClock {
	c := newImmediateClock()
	c.manual = true
	c.timers = make(chan chan time.Time)
	return c
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	now := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if !c.manual {
		ch <- now
		return ch
	}
	c.timers <- ch
	return ch
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// awaitTimer blocks until the poller schedules its next tick.
func (c *fakeClock) awaitTimer(t *testing.T) chan time.Time {
	t.Helper()
	select {
	case ch := <-c.timers:
		return ch
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not schedule a next tick")
		return nil
	}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Events() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

func (r *recordingEmitter) Stages() []progress.Stage {
	var out []progress.Stage
	for _, e := range r.Events() {
		out = append(out, e.Stage)
	}
	return out
}

// watchedPage wraps a progress document and records every frame.
type watchedPage struct {
	doc    *page.Document
	mu     sync.Mutex
	frames []page.Snapshot
}

func newWatchedPage() *watchedPage {
	w := &watchedPage{doc: page.NewProgressDocument()}
	w.doc.OnChange(func(s page.Snapshot) {
		w.mu.Lock()
		w.frames = append(w.frames, s)
		w.mu.Unlock()
	})
	return w
}

func (w *watchedPage) Page() Page { return DocumentPage(w.doc) }

func (w *watchedPage) Mutations() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.frames)
}

// Widths returns the distinct bar widths in the order they were applied.
func (w *watchedPage) Widths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, f := range w.frames {
		width := f[page.BarID].Style("width")
		if width == "" || (len(out) > 0 && out[len(out)-1] == width) {
			continue
		}
		out = append(out, width)
	}
	return out
}

// Labels returns the label text after every label change.
func (w *watchedPage) Labels() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	prev := ""
	for _, f := range w.frames {
		text := f[page.LabelID].Text
		if text == prev {
			continue
		}
		prev = text
		out = append(out, text)
	}
	return out
}
