// Package storage holds helpers shared by the frontier store backends.
package storage

import (
	"sort"
	"sync"
)

// Claims tracks URLs handed out by DequeueNext that have not yet been marked terminal
// or released. It lives in process memory, so claims vanish on restart and an
// abandoned in-flight item is dequeued again.
type Claims struct {
	mu  sync.Mutex
	set map[string]struct{}
}

// NewClaims constructs an empty claim set.
func NewClaims() *Claims {
	return &Claims{set: make(map[string]struct{})}
}

// Add claims url and reports whether it was previously unclaimed.
func (c *Claims) Add(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.set[url]; ok {
		return false
	}
	c.set[url] = struct{}{}
	return true
}

// Remove drops the claim on url if present.
func (c *Claims) Remove(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.set, url)
}

// List returns the claimed URLs in sorted order.
func (c *Claims) List() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.set))
	for url := range c.set {
		out = append(out, url)
	}
	sort.Strings(out)
	return out
}

// Clear drops every claim.
func (c *Claims) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.set)
}
