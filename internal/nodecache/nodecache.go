// Package nodecache holds the latest known state of every monitored node,
// keyed by its logical identity, with a secondary index by numeric id.
package nodecache

import (
	"sync"

	"github.com/pbrane/onms-alertmanager-bridge/internal/events"
)

// Cache is a concurrent, read-heavy store of node snapshots.
// Readers share a read lock and run concurrently with each other, but wait
// while a writer holds the write lock; reads are not lock-free. Writers
// update the primary map and the secondary id index under that one lock so
// a reader observing the new secondary-index entry also observes the new
// primary-map entry.
type Cache struct {
	mu      sync.RWMutex
	byKey   map[string]*events.Node
	idIndex map[int64]string
}

// New creates an empty node cache.
func New() *Cache {
	return &Cache{
		byKey:   make(map[string]*events.Node),
		idIndex: make(map[int64]string),
	}
}

// Put inserts or replaces the node under its identity key.
func (c *Cache) Put(n *events.Node) {
	key := n.Key()
	c.mu.Lock()
	c.byKey[key] = n
	if n.ID > 0 {
		c.idIndex[n.ID] = key
	}
	c.mu.Unlock()
}

// Remove deletes the node stored under key, if any.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	if n, ok := c.byKey[key]; ok {
		if n.ID > 0 && c.idIndex[n.ID] == key {
			delete(c.idIndex, n.ID)
		}
		delete(c.byKey, key)
	}
	c.mu.Unlock()
}

// RemoveByID deletes the node currently indexed under the given numeric id.
func (c *Cache) RemoveByID(id int64) {
	c.mu.Lock()
	if key, ok := c.idIndex[id]; ok {
		delete(c.byKey, key)
		delete(c.idIndex, id)
	}
	c.mu.Unlock()
}

// GetByKey returns the node stored under key, if any.
func (c *Cache) GetByKey(key string) (*events.Node, bool) {
	c.mu.RLock()
	n, ok := c.byKey[key]
	c.mu.RUnlock()
	return n, ok
}

// GetByCriteria resolves an alarm's node-criteria to a cached node.
// Deterministic probe order: foreignSource+foreignId first, then the
// numeric id via the secondary index, otherwise a miss.
func (c *Cache) GetByCriteria(foreignSource, foreignID string, id int64) (*events.Node, bool) {
	if foreignSource != "" && foreignID != "" {
		return c.GetByKey(foreignSource + ":" + foreignID)
	}
	if id > 0 {
		c.mu.RLock()
		key, ok := c.idIndex[id]
		if !ok {
			c.mu.RUnlock()
			return nil, false
		}
		n, ok := c.byKey[key]
		c.mu.RUnlock()
		return n, ok
	}
	return nil, false
}

// GetByID returns the node currently indexed under the given numeric id.
func (c *Cache) GetByID(id int64) (*events.Node, bool) {
	return c.GetByCriteria("", "", id)
}

// Snapshot returns a new slice holding every cached node; the nodes
// themselves are the cached pointers, not copies.
func (c *Cache) Snapshot() []*events.Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*events.Node, 0, len(c.byKey))
	for _, n := range c.byKey {
		out = append(out, n)
	}
	return out
}

// Size returns the number of cached nodes.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byKey)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.byKey = make(map[string]*events.Node)
	c.idIndex = make(map[int64]string)
	c.mu.Unlock()
}
