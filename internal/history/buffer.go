// Package history keeps the most recent graph-generation exchanges of each
// user in memory.
package history

import (
	"container/list"
	"sync"
)

// MaxExchanges is the number of recent exchanges retained per user.
const MaxExchanges = 5

// DefaultMaxUsers bounds how many users NewBuffer tracks.
const DefaultMaxUsers = 10000

// Exchange is one prompt and the outcome it produced.
type Exchange struct {
	Prompt  string   `json:"prompt"`
	Status  string   `json:"status"` // "success" or "error"
	Titles  []string `json:"titles,omitempty"`
	Credits int      `json:"credits"`
	Ts      int64    `json:"ts"`
}

// Buffer stores the last MaxExchanges exchanges for at most maxUsers users.
// When a new user would exceed the bound, the user who added an exchange
// least recently is evicted. It is goroutine-safe.
type Buffer struct {
	mu       sync.Mutex
	maxUsers int
	buffers  map[string]*list.Element // user uuid -> element holding *ringBuffer
	recency  *list.List               // front is the most recently written user
}

// ringBuffer is a fixed-size circular buffer of Exchange.
type ringBuffer struct {
	user  string
	items [MaxExchanges]Exchange
	pos   int
	count int
}

// NewBuffer creates an empty Buffer tracking up to DefaultMaxUsers users.
func NewBuffer() *Buffer {
	return NewBufferSize(DefaultMaxUsers)
}

// NewBufferSize creates an empty Buffer tracking up to maxUsers users
// (at least one).
func NewBufferSize(maxUsers int) *Buffer {
	return &Buffer{
		maxUsers: max(maxUsers, 1),
		buffers:  make(map[string]*list.Element),
		recency:  list.New(),
	}
}

// Add appends an exchange to the user's ring buffer. If the buffer is full,
// the oldest exchange is overwritten.
func (b *Buffer) Add(userUUID string, ex Exchange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	el, ok := b.buffers[userUUID]
	if ok {
		b.recency.MoveToFront(el)
	} else {
		if b.recency.Len() >= b.maxUsers {
			oldest := b.recency.Back()
			b.recency.Remove(oldest)
			delete(b.buffers, oldest.Value.(*ringBuffer).user)
		}
		el = b.recency.PushFront(&ringBuffer{user: userUUID})
		b.buffers[userUUID] = el
	}

	rb := el.Value.(*ringBuffer)
	rb.items[rb.pos] = ex
	rb.pos = (rb.pos + 1) % MaxExchanges
	if rb.count < MaxExchanges {
		rb.count++
	}
}

// Get returns the retained exchanges for a user, oldest first. Returns an
// empty slice if the user has none.
func (b *Buffer) Get(userUUID string) []Exchange {
	b.mu.Lock()
	defer b.mu.Unlock()

	el, ok := b.buffers[userUUID]
	if !ok {
		return []Exchange{}
	}
	rb := el.Value.(*ringBuffer)

	result := make([]Exchange, rb.count)
	// The oldest exchange is at position (pos - count) mod MaxExchanges.
	start := (rb.pos - rb.count + MaxExchanges) % MaxExchanges
	for i := 0; i < rb.count; i++ {
		result[i] = rb.items[(start+i)%MaxExchanges]
	}
	return result
}
