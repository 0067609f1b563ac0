package terminal

import "strings"

// DefaultHistoryLimit is the scrollback length used when none is given.
const DefaultHistoryLimit = 2000

// History holds lines that scrolled off the top of the main screen.
type History struct {
	lines []*Line
	limit int
}

// NewHistory creates a history keeping at most limit lines.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Push appends a line, dropping the oldest once the limit is reached.
// The history takes ownership of l.
func (h *History) Push(l *Line) {
	h.lines = append(h.lines, l)
	h.trim()
}

// Len returns the number of stored lines.
func (h *History) Len() int {
	return len(h.lines)
}

// Line returns the i-th line, 0 being the oldest, or nil.
func (h *History) Line(i int) *Line {
	if i < 0 || i >= len(h.lines) {
		return nil
	}
	return h.lines[i]
}

// Limit returns the maximum number of lines kept.
func (h *History) Limit() int {
	return h.limit
}

// SetLimit changes the maximum number of lines, dropping old ones.
func (h *History) SetLimit(limit int) {
	if limit <= 0 {
		return
	}
	h.limit = limit
	h.trim()
}

// Clear drops every line.
func (h *History) Clear() {
	h.lines = nil
}

// Text returns the history as newline separated text.
func (h *History) Text() string {
	var b strings.Builder
	for i, l := range h.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.Text())
	}
	return b.String()
}

func (h *History) trim() {
	excess := len(h.lines) - h.limit
	if excess <= 0 {
		return
	}
	for i := 0; i < excess; i++ {
		h.lines[i] = nil
	}
	h.lines = h.lines[excess:]
}
