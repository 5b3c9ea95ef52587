package chat

import (
	"sort"
	"sync"
)

// Registry tracks every live client and the username bound to each
// registered one. All methods are safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	members    map[*Client]struct{}
	byUsername map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{
		members:    make(map[*Client]struct{}),
		byUsername: make(map[string]*Client),
	}
}

// Track adds a client that has not registered a username yet.
func (r *Registry) Track(c *Client) {
	r.mu.Lock()
	r.members[c] = struct{}{}
	r.mu.Unlock()
}

// TryRegister binds username to c if nobody holds it. A client that already
// has a username cannot take a second one.
func (r *Registry) TryRegister(c *Client, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.name != "" {
		return false
	}
	if _, taken := r.byUsername[username]; taken {
		return false
	}
	c.name = username
	r.byUsername[username] = c
	r.members[c] = struct{}{}
	ConnectedClients.Set(float64(len(r.byUsername)))
	return true
}

// Unregister forgets c. Calling it again, or for a client that never
// registered, does nothing.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.members, c)
	if c.name == "" {
		return
	}
	if bound, ok := r.byUsername[c.name]; ok && bound == c {
		delete(r.byUsername, c.name)
		ConnectedClients.Set(float64(len(r.byUsername)))
	}
}

func (r *Registry) Lookup(username string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUsername[username]
	return c, ok
}

// ListUsernames returns the bound usernames in alphabetical order.
func (r *Registry) ListUsernames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.byUsername))
	for name := range r.byUsername {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// ForEachExcept calls fn for every registered client other than skip. fn
// runs on a snapshot taken under the lock, so it may block or re-enter the
// registry freely.
func (r *Registry) ForEachExcept(skip *Client, fn func(*Client)) {
	r.mu.RLock()
	targets := make([]*Client, 0, len(r.byUsername))
	for _, c := range r.byUsername {
		if c != skip {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range targets {
		fn(c)
	}
}

// Members returns every tracked client, registered or not.
func (r *Registry) Members() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.members))
	for c := range r.members {
		out = append(out, c)
	}
	return out
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUsername)
}
