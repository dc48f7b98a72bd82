package workflow

import "sync"

// conversationLocks serialises event handling per conversation while letting
// different conversations proceed concurrently.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*conversationLock
}

type conversationLock struct {
	sync.Mutex
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{locks: make(map[string]*conversationLock)}
}

// lock blocks until the conversation is free and returns its unlock function.
func (c *conversationLocks) lock(conversationID string) func() {
	c.mu.Lock()
	l, ok := c.locks[conversationID]
	if !ok {
		l = &conversationLock{}
		c.locks[conversationID] = l
	}
	l.refs++
	c.mu.Unlock()

	l.Lock()

	return func() {
		l.Unlock()

		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, conversationID)
		}
		c.mu.Unlock()
	}
}

func (c *conversationLocks) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}
