package mqtt

import "log/slog"

// bufferedMsg holds one outgoing message awaiting replay. QoS and retain
// are not stored: this client publishes everything at QoS 0, not retained.
type bufferedMsg struct {
	topic   string
	payload []byte
}

// ringBuffer is a fixed-capacity FIFO holding outgoing messages while the
// broker connection is down. When full, the oldest message is overwritten:
// a fresh reading is worth more than a stale one. Not safe for concurrent
// use — the owning client synchronizes.
type ringBuffer struct {
	buf      []bufferedMsg
	capacity int
	next     int // next write position
	size     int
	dropping bool // a drop was already logged since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		buf:      make([]bufferedMsg, capacity),
		capacity: capacity,
	}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	if r.size == r.capacity {
		if !r.dropping {
			slog.Warn("mqtt: offline buffer full, dropping oldest", "capacity", r.capacity)
			r.dropping = true
		}
		// next points at the oldest entry when full
		r.buf[r.next] = msg
		r.next = (r.next + 1) % r.capacity
		return
	}
	r.buf[r.next] = msg
	r.next = (r.next + 1) % r.capacity
	r.size++
}

// drainAll returns the buffered messages oldest-first and resets the
// buffer. It logs the replay so reconnect handling stays silent when there
// was nothing to catch up on.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.size == 0 {
		return nil
	}
	slog.Info("mqtt reconnected, draining offline buffer", "messages", r.size)

	out := make([]bufferedMsg, r.size)
	start := (r.next - r.size + r.capacity) % r.capacity
	for i := range out {
		out[i] = r.buf[(start+i)%r.capacity]
	}

	r.size = 0
	r.next = 0
	r.dropping = false
	return out
}

func (r *ringBuffer) len() int {
	return r.size
}
