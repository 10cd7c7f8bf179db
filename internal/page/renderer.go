package page

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

const defaultBarWidth = 30

// Renderer draws a progress Snapshot as terminal text:
//
//	[#########.....................]  30%  Prepis 3/10
//
// followed by "READY" or "ERROR: <text>" lines once those indicators become
// visible. Identical consecutive frames are skipped.
type Renderer struct {
	mu       sync.Mutex
	out      io.Writer
	width    int
	last     string
	carriage bool
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithBarWidth sets the number of cells in the drawn bar.
func WithBarWidth(width int) RendererOption {
	return func(r *Renderer) {
		if width > 0 {
			r.width = width
		}
	}
}

// WithCarriageReturn redraws the status line in place using "\r" instead of
// emitting one line per frame. Suitable for interactive terminals.
func WithCarriageReturn(enabled bool) RendererOption {
	return func(r *Renderer) {
		r.carriage = enabled
	}
}

// NewRenderer builds a Renderer writing to out.
func NewRenderer(out io.Writer, opts ...RendererOption) *Renderer {
	r := &Renderer{out: out, width: defaultBarWidth}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render writes the frame for snap. It is safe for concurrent use and is
// usually installed with Document.OnChange.
func (r *Renderer) Render(snap Snapshot) {
	frame := r.Frame(snap)
	r.mu.Lock()
	defer r.mu.Unlock()
	if frame == r.last {
		return
	}
	r.last = frame
	if r.carriage {
		lines := strings.SplitN(frame, "\n", 2)
		fmt.Fprintf(r.out, "\r\033[K%s", lines[0])
		if len(lines) > 1 {
			fmt.Fprintf(r.out, "\n%s", lines[1])
		}
		return
	}
	fmt.Fprintln(r.out, frame)
}

// Frame formats snap without writing it.
func (r *Renderer) Frame(snap Snapshot) string {
	pct := ParsePercent(snap[BarID].Style("width"))
	filled := int(pct / 100 * float64(r.width))
	filled = max(0, min(r.width, filled))

	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(strings.Repeat("#", filled))
	b.WriteString(strings.Repeat(".", r.width-filled))
	b.WriteByte(']')
	fmt.Fprintf(&b, " %4s", formatShortPercent(pct))
	if label := snap[LabelID].Text; label != "" {
		b.WriteString("  ")
		b.WriteString(label)
	}
	if ready, ok := snap[ReadyID]; ok && ready.Visible() {
		b.WriteString("\nREADY")
		if ready.Text != "" {
			b.WriteString(": ")
			b.WriteString(ready.Text)
		}
	}
	if errEl, ok := snap[ErrorID]; ok && errEl.Visible() {
		b.WriteString("\nERROR: ")
		b.WriteString(errEl.Text)
	}
	return b.String()
}

// ParsePercent reads a width style such as "55%" or "12.5%". Unparseable or
// empty values yield 0.
func ParsePercent(width string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(width), "%"), 64)
	if err != nil {
		return 0
	}
	return v
}

func formatShortPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64) + "%"
}
