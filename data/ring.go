package data

// Ring is a fixed capacity circular buffer. When full, a push overwrites the
// oldest slot. Each slot carries the record's queued flag; a slot is valid
// until it is marked sent.
type Ring[T Record[T]] struct {
	buf  []T
	head int
	// number of slots ever written, capped at len(buf)
	used int
}

// NewRing creates a ring with the given capacity
func NewRing[T Record[T]](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity), head: -1}
}

// Cap returns the ring capacity
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Push stores v as the newest entry. Records that are not queued are
// ignored and false is returned.
func (r *Ring[T]) Push(v T) bool {
	if !v.IsQueued() {
		return false
	}
	r.head = (r.head + 1) % len(r.buf)
	r.buf[r.head] = v
	if r.used < len(r.buf) {
		r.used++
	}
	return true
}

// Head returns the newest entry if it is still queued.
func (r *Ring[T]) Head() (T, bool) {
	var zero T
	if r.head < 0 {
		return zero, false
	}
	v := r.buf[r.head]
	if !v.IsQueued() {
		return zero, false
	}
	return v, true
}

// Queued returns all queued entries, oldest first.
func (r *Ring[T]) Queued() []T {
	var ret []T
	for i := 0; i < r.used; i++ {
		idx := (r.head - r.used + 1 + i + len(r.buf)) % len(r.buf)
		if r.buf[idx].IsQueued() {
			ret = append(ret, r.buf[idx])
		}
	}
	return ret
}

// Len returns the number of queued entries
func (r *Ring[T]) Len() int {
	n := 0
	for i := 0; i < r.used; i++ {
		if r.buf[i].IsQueued() {
			n++
		}
	}
	return n
}

// MarkHeadSent clears the queued flag of the newest entry.
func (r *Ring[T]) MarkHeadSent() {
	if r.head < 0 {
		return
	}
	r.buf[r.head] = r.buf[r.head].WithQueued(false)
}

// MarkAllSent clears the queued flag of every entry.
func (r *Ring[T]) MarkAllSent() {
	for i := 0; i < r.used; i++ {
		r.buf[i] = r.buf[i].WithQueued(false)
	}
}
