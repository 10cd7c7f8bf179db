package page

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Well-known element identifiers of the progress page.
const (
	LabelID = "label"
	BarID   = "bar"
	ReadyID = "ready"
	ErrorID = "error"

	// HiddenClass marks an element as not visible.
	HiddenClass = "hide"
)

// ErrNoSuchElement is returned by Document.Element for unknown identifiers.
var ErrNoSuchElement = errors.New("no such element")

// ElementState is an immutable copy of one element.
type ElementState struct {
	ID      string
	Text    string
	Styles  map[string]string
	Classes []string
}

// Visible reports whether the element lacks the hidden class.
func (e ElementState) Visible() bool {
	return !slices.Contains(e.Classes, HiddenClass)
}

// Style returns the value of a style property, or "" when unset.
func (e ElementState) Style(property string) string {
	return e.Styles[property]
}

// Snapshot is a point-in-time copy of every element in a Document.
type Snapshot map[string]ElementState

// Document is an in-memory page. All mutations go through Element handles and
// notify the optional change observer after the lock is released.
type Document struct {
	mu       sync.RWMutex
	elements map[string]*elementData
	onChange func(Snapshot)
}

type elementData struct {
	text    string
	styles  map[string]string
	classes map[string]struct{}
}

// NewDocument creates an empty Document.
func NewDocument() *Document {
	return &Document{elements: make(map[string]*elementData)}
}

// NewProgressDocument creates the standard page with label, bar, and the
// initially hidden ready and error indicators.
func NewProgressDocument() *Document {
	d := NewDocument()
	d.Add(LabelID)
	d.Add(BarID)
	d.Add(ReadyID, HiddenClass)
	d.Add(ErrorID, HiddenClass)
	return d
}

// Add registers an element with the given initial classes. Adding an existing
// id resets it.
func (d *Document) Add(id string, classes ...string) {
	el := &elementData{
		styles:  make(map[string]string),
		classes: make(map[string]struct{}, len(classes)),
	}
	for _, c := range classes {
		el.classes[c] = struct{}{}
	}
	d.mu.Lock()
	d.elements[id] = el
	d.mu.Unlock()
}

// OnChange installs fn as the observer called with a fresh Snapshot after
// every mutation. Passing nil removes it.
func (d *Document) OnChange(fn func(Snapshot)) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

// Element resolves an element handle by id.
func (d *Document) Element(id string) (*Element, error) {
	d.mu.RLock()
	_, ok := d.elements[id]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchElement, id)
	}
	return &Element{doc: d, id: id}, nil
}

// Snapshot copies the current state of every element.
func (d *Document) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshotLocked()
}

func (d *Document) snapshotLocked() Snapshot {
	out := make(Snapshot, len(d.elements))
	for id, el := range d.elements {
		out[id] = ElementState{
			ID:      id,
			Text:    el.text,
			Styles:  maps.Clone(el.styles),
			Classes: slices.Sorted(maps.Keys(el.classes)),
		}
	}
	return out
}

func (d *Document) mutate(id string, fn func(*elementData)) {
	d.mu.Lock()
	el, ok := d.elements[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	fn(el)
	observer := d.onChange
	var snap Snapshot
	if observer != nil {
		snap = d.snapshotLocked()
	}
	d.mu.Unlock()
	if observer != nil {
		observer(snap)
	}
}

// Element is a handle to one element of a Document.
type Element struct {
	doc *Document
	id  string
}

// ID returns the element identifier.
func (e *Element) ID() string {
	return e.id
}

// SetText replaces the element's text content.
func (e *Element) SetText(text string) {
	e.doc.mutate(e.id, func(el *elementData) { el.text = text })
}

// SetStyle sets a single style property such as "width".
func (e *Element) SetStyle(property, value string) {
	e.doc.mutate(e.id, func(el *elementData) { el.styles[property] = value })
}

// RemoveClass drops a class from the element's class list.
func (e *Element) RemoveClass(class string) {
	e.doc.mutate(e.id, func(el *elementData) { delete(el.classes, class) })
}

// AddClass appends a class to the element's class list.
func (e *Element) AddClass(class string) {
	e.doc.mutate(e.id, func(el *elementData) { el.classes[class] = struct{}{} })
}
