package events

import "sync"

// Bus is an in-process publish/subscribe channel for project-change
// notifications. Publishers hand over only the project dir that changed;
// subscribers re-query the store for the current state, so notifications
// are safe to coalesce or drop under load.
//
// Thread-safe.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan string
	nextID int
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan string)}
}

// Publish notifies all subscribers that projectDir changed. Never blocks:
// a subscriber whose buffer is full simply misses this notification, which
// is fine because the next one carries the same "re-query now" meaning.
func (b *Bus) Publish(projectDir string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- projectDir:
		default:
		}
	}
}

// Subscribe registers a new subscriber and returns its notification channel
// together with a cancel function. The cancel function closes the channel;
// callers must stop reading after cancelling.
func (b *Bus) Subscribe(buffer int) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan string, buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
