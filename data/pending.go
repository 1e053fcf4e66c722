package data

// PendingCapacity is the default number of payloads that can wait for a
// cloud acknowledgment.
const PendingCapacity = 10

// Pending tracks encoded payloads that were handed to the cloud module and
// not yet acknowledged. It is owned by a single goroutine.
type Pending struct {
	slots []pendingSlot
	next  Handle
}

type pendingSlot struct {
	handle  Handle
	payload []byte
}

// NewPending creates a registry with capacity slots
func NewPending(capacity int) *Pending {
	if capacity < 1 {
		capacity = PendingCapacity
	}
	return &Pending{slots: make([]pendingSlot, capacity)}
}

// Add registers payload and returns its handle. When every slot is taken,
// the payload is not tracked and ok is false; the returned handle is still
// unique so the payload can be sent, it just can never be released.
func (p *Pending) Add(payload []byte) (h Handle, ok bool) {
	p.next++
	h = p.next
	for i := range p.slots {
		if p.slots[i].handle == 0 {
			p.slots[i] = pendingSlot{handle: h, payload: payload}
			return h, true
		}
	}
	return h, false
}

// Ack releases the slot holding h. False is returned if no slot matches.
func (p *Pending) Ack(h Handle) bool {
	if h == 0 {
		return false
	}
	for i := range p.slots {
		if p.slots[i].handle == h {
			p.slots[i] = pendingSlot{}
			return true
		}
	}
	return false
}

// Len returns the number of outstanding payloads
func (p *Pending) Len() int {
	n := 0
	for _, s := range p.slots {
		if s.handle != 0 {
			n++
		}
	}
	return n
}
