// Package cache implements the 256-slot content-addressed ring cache used
// to translate Game Data payloads to and from Game Cache positions, per
// player per direction.
package cache

import "errors"

// Size is the fixed number of slots in every cache instance.
const Size = 256

// ErrMiss is returned by Resolve when the requested position was never
// written. The Room Controller treats this as fatal to the offending
// player (section 7, CacheMiss).
var ErrMiss = errors.New("cache: position never written")

// Cache is a 256-slot ring of opaque payloads plus a content->position
// index for O(1) hit detection on Emit. It is not safe for concurrent use;
// callers rely on the one-writer-per-room model (section 5) for
// synchronization.
type Cache struct {
	slots    [Size][]byte
	written  [Size]bool
	next     int
	position map[string]int
}

// New returns an empty cache with its write cursor at 0.
func New() *Cache {
	return &Cache{position: make(map[string]int)}
}

// Resolve returns the payload previously written to pos. It returns
// ErrMiss if that slot has never been written.
func (c *Cache) Resolve(pos byte) ([]byte, error) {
	i := int(pos)
	if !c.written[i] {
		return nil, ErrMiss
	}
	return c.slots[i], nil
}

// Hit reports whether payload currently occupies some slot in the cache,
// and if so, which one. It performs no mutation.
func (c *Cache) Hit(payload []byte) (pos byte, ok bool) {
	p, found := c.position[string(payload)]
	if !found {
		return 0, false
	}
	return byte(p), true
}

// Record writes payload into the next slot, advancing the write cursor and
// evicting whatever content previously lived there from the position
// index, preserving "position[c] == p iff slots[p] == c for the most
// recent write of c."
func (c *Cache) Record(payload []byte) byte {
	pos := c.next
	if c.written[pos] {
		delete(c.position, string(c.slots[pos]))
	}

	stored := make([]byte, len(payload))
	copy(stored, payload)
	c.slots[pos] = stored
	c.written[pos] = true
	c.position[string(stored)] = pos

	c.next = (c.next + 1) % Size
	return byte(pos)
}

// Emit checks whether payload is already cached; if so it returns the hit
// position and records nothing further. If it is a miss, the caller emits
// the literal payload and calls Record for it separately, matching the C3
// Emit/Record split in the component design.
func (c *Cache) Emit(payload []byte) (pos byte, hit bool) {
	return c.Hit(payload)
}
