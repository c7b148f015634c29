package reqlog

// ring is a fixed-capacity circular buffer of log entries with drop-oldest
// overflow. Not safe for concurrent use on its own; the Service guards it.
type ring struct {
	items []*Entry
	head  int // next write position
	size  int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring{items: make([]*Entry, capacity)}
}

func (r *ring) append(e *Entry) {
	r.items[r.head] = e
	r.head = (r.head + 1) % len(r.items)
	if r.size < len(r.items) {
		r.size++
	}
}

func (r *ring) len() int { return r.size }

func (r *ring) capacity() int { return len(r.items) }

// snapshot returns entries newest-first.
func (r *ring) snapshot() []*Entry {
	out := make([]*Entry, 0, r.size)
	for i := 1; i <= r.size; i++ {
		idx := (r.head - i + len(r.items)) % len(r.items)
		out = append(out, r.items[idx])
	}
	return out
}
