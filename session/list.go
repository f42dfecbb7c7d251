package session

import "slices"

// DefaultCapacity is the number of live sessions an account may hold.
const DefaultCapacity = 5

// List is a bounded, insertion-ordered set of session ids. The oldest entry
// sits at index 0 and is the first to be evicted.
type List struct {
	capacity int
	ids      []string
}

// NewList returns a List holding ids. When ids exceeds capacity only the
// newest capacity entries are kept.
func NewList(capacity int, ids ...string) *List {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &List{capacity: capacity, ids: make([]string, 0, capacity)}
	if over := len(ids) - capacity; over > 0 {
		ids = ids[over:]
	}
	for _, id := range ids {
		if id != "" && !slices.Contains(l.ids, id) {
			l.ids = append(l.ids, id)
		}
	}
	return l
}

// InsertEvictingOldest appends id and drops the oldest entries until the list
// fits its capacity again. It returns the evicted ids.
func (l *List) InsertEvictingOldest(id string) []string {
	l.Remove(id)
	l.ids = append(l.ids, id)

	var evicted []string
	if over := len(l.ids) - l.capacity; over > 0 {
		evicted = slices.Clone(l.ids[:over])
		l.ids = slices.Delete(l.ids, 0, over)
	}
	return evicted
}

// Remove deletes id and reports whether it was present.
func (l *List) Remove(id string) bool {
	i := slices.Index(l.ids, id)
	if i < 0 {
		return false
	}
	l.ids = slices.Delete(l.ids, i, i+1)
	return true
}

// Contains reports membership.
func (l *List) Contains(id string) bool {
	return id != "" && slices.Contains(l.ids, id)
}

// Clear removes every entry.
func (l *List) Clear() {
	l.ids = l.ids[:0]
}

// Len returns the number of entries.
func (l *List) Len() int {
	return len(l.ids)
}

// IDs returns a copy of the entries, oldest first.
func (l *List) IDs() []string {
	out := make([]string, len(l.ids))
	copy(out, l.ids)
	return out
}
