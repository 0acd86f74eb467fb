package presence

import "sync"

// Client is the connection handle stored for an online user. The
// concrete type wraps a websocket connection; tests substitute fakes.
type Client interface {
	Send(v interface{}) error
}

// Registry maps user ids to their active connection. It is
// authoritative only for the lifetime of one server process; nothing
// is persisted and the map starts empty on every restart.
type Registry interface {
	// SetOnline records or overwrites the mapping for userID.
	// Idempotent; at most one entry per user, last connection wins.
	SetOnline(userID int, c Client)

	// Get returns the active connection for userID, if any.
	Get(userID int) (Client, bool)

	// Remove drops the entry holding exactly this connection handle
	// and returns the user it belonged to. A stale handle that was
	// already overwritten by a newer connection is not removed.
	Remove(c Client) (int, bool)

	// Online reports whether userID has an active connection.
	Online(userID int) bool

	// Broadcast sends v to every registered connection.
	Broadcast(v interface{})
}

// Memory is the in-process Registry. A RWMutex guards the map; every
// mutation is atomic with respect to concurrent event handlers.
type Memory struct {
	mu      sync.RWMutex
	clients map[int]Client
}

func NewMemory() *Memory {
	return &Memory{clients: make(map[int]Client)}
}

func (m *Memory) SetOnline(userID int, c Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[userID] = c
}

func (m *Memory) Get(userID int) (Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[userID]
	return c, ok
}

func (m *Memory) Remove(c Client) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, cur := range m.clients {
		if cur == c {
			delete(m.clients, userID)
			return userID, true
		}
	}
	return 0, false
}

func (m *Memory) Online(userID int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.clients[userID]
	return ok
}

func (m *Memory) Broadcast(v interface{}) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.clients {
		// Write errors are the read loop's problem; the broadcaster
		// never evicts.
		_ = c.Send(v)
	}
}
