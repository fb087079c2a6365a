package paginator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errInvalidWindow = errors.New("invalid record window")

// Window is an inclusive range of record ids.
type Window struct {
	From uint64
	To   uint64
}

// ParseWindow parses a window written "X..Y". The bounds may be given in either order.
func ParseWindow(s string) (Window, error) {
	lower, upper, found := strings.Cut(strings.TrimSpace(s), "..")
	if !found {
		return Window{}, fmt.Errorf("%w %q: expected X..Y", errInvalidWindow, s)
	}

	from, err := strconv.ParseUint(strings.TrimSpace(lower), 10, 64)
	if err != nil {
		return Window{}, fmt.Errorf("%w %q: %v", errInvalidWindow, s, err)
	}
	to, err := strconv.ParseUint(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return Window{}, fmt.Errorf("%w %q: %v", errInvalidWindow, s, err)
	}

	if from > to {
		from, to = to, from
	}
	return Window{From: from, To: to}, nil
}

// PageWindow returns the window of page `page` of size pageSize, page 0 holding the most
// recent records, given the highest existing id. ok is false past the oldest record.
func PageWindow(latest uint64, page, pageSize uint64) (window Window, ok bool) {
	if pageSize == 0 {
		return Window{}, false
	}

	skipped := page * pageSize
	// Overflow of page*pageSize, or a page past the oldest record.
	if (page != 0 && skipped/page != pageSize) || skipped > latest {
		return Window{}, false
	}

	to := latest - skipped
	from := uint64(0)
	if to+1 > pageSize {
		from = to + 1 - pageSize
	}
	return Window{From: from, To: to}, true
}

// Clamp limits the window to ids up to latest. ok is false if no id remains.
func (w Window) Clamp(latest uint64) (Window, bool) {
	if w.From > latest {
		return Window{}, false
	}
	return Window{From: w.From, To: min(w.To, latest)}, true
}

// IDs returns the window's ids, most recent first.
func (w Window) IDs() []uint64 {
	ids := make([]uint64, 0, w.To-w.From+1)
	for id := w.To; ; id-- {
		ids = append(ids, id)
		if id == w.From {
			break
		}
	}
	return ids
}

func (w Window) String() string {
	return fmt.Sprintf("%d..%d", w.From, w.To)
}
