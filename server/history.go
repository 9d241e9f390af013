package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// History remembers the encoded reply to every executed at-most-once request,
// keyed by correlation id, so a retransmitted request gets the same reply without
// running the handler again.
//
// An entry is forgotten when the client ACKs it or when it is older than ttl (the
// client gave up or its ACK was lost). After maxResends replays the reply bytes
// are released but the id stays known until ttl, so later duplicates are refused
// instead of executed.
type History struct {
	ttl        time.Duration
	maxResends int // 0 means unlimited
	now        func() time.Time

	mu      sync.Mutex
	entries map[uuid.UUID]*historyEntry
}

type historyEntry struct {
	reply   []byte // nil once the resend budget is spent
	stored  time.Time
	resends int
}

// Lookup is the outcome of History.Replay.
type Lookup uint8

const (
	Miss      Lookup = iota // Unknown id: execute the request
	Hit                     // Cached reply returned
	Exhausted               // Known id whose resend budget is spent: refuse, do not execute
)

func NewHistory(ttl time.Duration, maxResends int) *History {
	return &History{
		ttl:        ttl,
		maxResends: maxResends,
		now:        time.Now,
		entries:    make(map[uuid.UUID]*historyEntry),
	}
}

// Store records the reply for id.
func (h *History) Store(id uuid.UUID, reply []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[id] = &historyEntry{reply: reply, stored: h.now()}
}

// Replay returns the cached reply for id. The first maxResends calls are Hits;
// after that the id answers Exhausted until it expires or is ACKed.
func (h *History) Replay(id uuid.UUID) ([]byte, Lookup) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.entries[id]
	if !ok {
		return nil, Miss
	}
	if h.ttl > 0 && h.now().Sub(e.stored) > h.ttl {
		delete(h.entries, id)
		return nil, Miss
	}
	if e.reply == nil {
		return nil, Exhausted
	}
	reply := e.reply
	e.resends++
	if h.maxResends > 0 && e.resends >= h.maxResends {
		e.reply = nil
	}
	return reply, Hit
}

// Ack forgets id and reports whether it was known.
func (h *History) Ack(id uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, ok := h.entries[id]
	delete(h.entries, id)
	return ok
}

// Sweep drops entries older than ttl and returns how many were dropped.
func (h *History) Sweep() int {
	if h.ttl <= 0 {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	n := 0
	for id, e := range h.entries {
		if now.Sub(e.stored) > h.ttl {
			delete(h.entries, id)
			n++
		}
	}
	return n
}

// Len returns the number of known ids, exhausted ones included.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
