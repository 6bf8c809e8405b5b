package chatclient

import (
	"context"
	"sync"
)

// MarkReadFunc performs the actual mark-read call over whichever transport
// is live. It reports whether anything was updated.
type MarkReadFunc func(ctx context.Context) (bool, error)

// ReadTracker fires markRead when a session gains focus and whenever new
// inbound messages arrive while it stays focused. Marking with nothing
// unread is a no-op on the server, so the tracker never needs to count.
type ReadTracker struct {
	mu      sync.Mutex
	focused bool
	mark    MarkReadFunc
}

// NewReadTracker builds a tracker around the transport call.
func NewReadTracker(mark MarkReadFunc) *ReadTracker {
	return &ReadTracker{mark: mark}
}

// SetFocus records focus state and marks on the unfocused->focused edge.
func (t *ReadTracker) SetFocus(ctx context.Context, focused bool) (bool, error) {
	t.mu.Lock()
	wasFocused := t.focused
	t.focused = focused
	t.mu.Unlock()

	if focused && !wasFocused {
		return t.mark(ctx)
	}
	return false, nil
}

// OnInbound marks after an inbound message lands while focused.
func (t *ReadTracker) OnInbound(ctx context.Context) (bool, error) {
	t.mu.Lock()
	focused := t.focused
	t.mu.Unlock()

	if !focused {
		return false, nil
	}
	return t.mark(ctx)
}

// Focused reports current focus state.
func (t *ReadTracker) Focused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.focused
}
