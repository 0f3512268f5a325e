package collection

import (
	"image"
	"sync"
)

// Collection is the ordered list of entries. Entries are only ever appended
// or dropped all at once.
type Collection struct {
	mu      sync.RWMutex
	entries []*Entry
}

// New returns an empty collection.
func New() *Collection {
	return &Collection{}
}

// Append adds one entry per file, assigning consecutive indices, and
// returns the new entries.
func (c *Collection) Append(files []FileInfo) []*Entry {
	if len(files) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	added := make([]*Entry, 0, len(files))
	for _, f := range files {
		e := &Entry{
			index:   len(c.entries),
			path:    f.Path,
			size:    f.Size,
			modTime: f.ModTime,
		}
		c.entries = append(c.entries, e)
		added = append(added, e)
	}
	return added
}

// Len returns the number of entries.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// At returns the entry at index i, or nil when i is out of range.
func (c *Collection) At(i int) *Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.entries) {
		return nil
	}
	return c.entries[i]
}

// Entries returns a copy of the entry list.
func (c *Collection) Entries() []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// IndexOf returns the index of the entry for path, or -1.
func (c *Collection) IndexOf(path string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i, e := range c.entries {
		if e.path == path {
			return i
		}
	}
	return -1
}

// Clear drops every entry. Each one is marked disposed under its own lock
// first, so tasks still holding a pointer commit nothing.
func (c *Collection) Clear() {
	c.mu.Lock()
	old := c.entries
	c.entries = nil
	c.mu.Unlock()

	for _, e := range old {
		e.dispose()
	}
}

// Layout assigns row-major grid positions with the given number of columns.
func (c *Collection) Layout(columns int) {
	if columns < 1 {
		columns = 1
	}
	for i, e := range c.Entries() {
		e.setGrid(image.Pt(i%columns, i/columns))
	}
}

// Counts is a residency summary of the collection.
type Counts struct {
	Entries       int
	FullResident  int
	ThumbResident int
	Errors        int
}

// Counts walks every entry and tallies decoded images and errors.
func (c *Collection) Counts() Counts {
	var n Counts
	for _, e := range c.Entries() {
		v := e.Snapshot()
		n.Entries++
		if v.Full != nil {
			n.FullResident++
		}
		if v.Thumbnail != nil {
			n.ThumbResident++
		}
		if v.Err != "" {
			n.Errors++
		}
	}
	return n
}
