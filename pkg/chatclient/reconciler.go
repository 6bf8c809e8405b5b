package chatclient

import (
	"sync"
	"time"

	"github.com/spec-kit/support-chat-service/internal/api/dto"
)

// Message and Session are the wire shapes shared with the service.
type (
	Message = dto.MessageResponse
	Session = dto.SessionResponse
)

// TempIDPrefix marks optimistic entries that have not been confirmed yet.
const TempIDPrefix = "temp-"

// Reconciler maintains the local message view for one session: canonical
// messages merged idempotently by id, plus optimistic entries keyed by
// correlation id that are replaced or rolled back when the server answers.
// Matching is only ever by correlation id, never by content, so a later
// identical-text message cannot be misattributed.
type Reconciler struct {
	mu       sync.Mutex
	messages []Message
	byID     map[string]int // canonical id -> index
	pending  map[string]int // correlation id -> index
}

// NewReconciler seeds the view from hydrated history.
func NewReconciler(history []Message) *Reconciler {
	r := &Reconciler{
		byID:    make(map[string]int),
		pending: make(map[string]int),
	}
	for _, msg := range history {
		r.messages = append(r.messages, msg)
		r.byID[msg.ID] = len(r.messages) - 1
	}
	return r
}

// Stage appends an optimistic entry for the given correlation id. The
// entry carries a temp id and the client-local timestamp.
func (r *Reconciler) Stage(cid string, chatID, sender, senderID, content string) Message {
	msg := Message{
		ID:        TempIDPrefix + cid,
		ChatID:    chatID,
		Sender:    sender,
		SenderID:  senderID,
		Content:   content,
		Timestamp: time.Now(),
		Read:      false,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	r.pending[cid] = len(r.messages) - 1
	return msg
}

// Resolve replaces exactly the pending entry for cid with the canonical
// message. Returns false when no such entry exists (already resolved or
// rolled back).
func (r *Reconciler) Resolve(cid string, canonical Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.pending[cid]
	if !ok {
		return false
	}
	delete(r.pending, cid)

	// the broadcast may have arrived before the ack; drop the temp entry
	// instead of duplicating the canonical one
	if existing, seen := r.byID[canonical.ID]; seen {
		r.messages[existing] = canonical
		r.removeAt(idx)
		return true
	}

	r.messages[idx] = canonical
	r.byID[canonical.ID] = idx
	return true
}

// Reject rolls back the pending entry for cid.
func (r *Reconciler) Reject(cid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.pending[cid]
	if !ok {
		return false
	}
	delete(r.pending, cid)
	r.removeAt(idx)
	return true
}

// Apply merges a canonical message from a broadcast. Idempotent by id, so
// replay after a reconnect is safe.
func (r *Reconciler) Apply(canonical Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.byID[canonical.ID]; ok {
		r.messages[idx] = canonical
		return
	}
	r.messages = append(r.messages, canonical)
	r.byID[canonical.ID] = len(r.messages) - 1
}

// ApplyRead flips read on every message not authored by readerID,
// mirroring the store's markRead semantics locally.
func (r *Reconciler) ApplyRead(readerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages {
		if r.messages[i].SenderID != readerID {
			r.messages[i].Read = true
		}
	}
}

// Replace swaps in rehydrated history, keeping unresolved optimistic
// entries at the tail so an in-flight send survives the reconnect.
func (r *Reconciler) Replace(history []Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	staged := make(map[string]Message, len(r.pending))
	for cid, idx := range r.pending {
		staged[cid] = r.messages[idx]
	}

	r.messages = r.messages[:0]
	r.byID = make(map[string]int, len(history))
	for _, msg := range history {
		r.messages = append(r.messages, msg)
		r.byID[msg.ID] = len(r.messages) - 1
	}

	r.pending = make(map[string]int, len(staged))
	for cid, msg := range staged {
		r.messages = append(r.messages, msg)
		r.pending[cid] = len(r.messages) - 1
	}
}

// Messages returns a snapshot of the current view.
func (r *Reconciler) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// PendingCount reports in-flight optimistic sends.
func (r *Reconciler) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// UnreadFrom counts messages addressed to selfID that are still unread.
func (r *Reconciler) UnreadFrom(selfID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for i := range r.messages {
		if r.messages[i].SenderID != selfID && !r.messages[i].Read {
			count++
		}
	}
	return count
}

// removeAt deletes an index keeping order and fixing the lookup tables.
// Caller holds the lock.
func (r *Reconciler) removeAt(idx int) {
	r.messages = append(r.messages[:idx], r.messages[idx+1:]...)
	for id, i := range r.byID {
		if i == idx {
			delete(r.byID, id)
		} else if i > idx {
			r.byID[id] = i - 1
		}
	}
	for cid, i := range r.pending {
		if i == idx {
			delete(r.pending, cid)
		} else if i > idx {
			r.pending[cid] = i - 1
		}
	}
}
