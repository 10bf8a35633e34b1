package stack

// message is a serialized publish held back while disconnected.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO of messages. When full, the oldest
// message is overwritten. Not safe for concurrent use.
type ringBuffer struct {
	buf     []message
	head    int // next write position
	count   int
	dropped int // overwritten since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]message, capacity)}
}

// push appends msg and reports whether an older message was overwritten.
func (r *ringBuffer) push(msg message) bool {
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	if r.count == len(r.buf) {
		r.dropped++
		return true
	}
	r.count++
	return false
}

// drain returns the buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drain() (msgs []message, dropped int) {
	dropped = r.dropped
	if r.count > 0 {
		msgs = make([]message, r.count)
		start := (r.head - r.count + len(r.buf)) % len(r.buf)
		for i := range msgs {
			msgs[i] = r.buf[(start+i)%len(r.buf)]
		}
	}
	r.reset()
	return msgs, dropped
}

func (r *ringBuffer) reset() {
	clear(r.buf)
	r.head = 0
	r.count = 0
	r.dropped = 0
}

func (r *ringBuffer) len() int {
	return r.count
}
