package mqtt

// queued is a serialized message waiting for the broker.
type queued struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// lifecycle reports whether the message is a STARTUP/HEARTBEAT/SHUTDOWN
// record rather than a log line.
func (q queued) lifecycle() bool { return q.qos > 0 }

// outbox holds messages while the broker is unreachable. When full, the
// oldest log line is evicted first; lifecycle records only go once no log
// lines are left. Callers synchronize.
type outbox struct {
	msgs    []queued
	limit   int
	evicted int
}

func newOutbox(limit int) *outbox {
	return &outbox{msgs: make([]queued, 0, limit), limit: limit}
}

func (o *outbox) add(m queued) {
	if len(o.msgs) >= o.limit {
		o.evict()
	}
	o.msgs = append(o.msgs, m)
}

func (o *outbox) evict() {
	victim := 0
	for i, m := range o.msgs {
		if !m.lifecycle() {
			victim = i
			break
		}
	}
	o.msgs = append(o.msgs[:victim], o.msgs[victim+1:]...)
	o.evicted++
}

// take empties the outbox, returning its messages in arrival order and the
// number evicted since the previous take.
func (o *outbox) take() ([]queued, int) {
	msgs, evicted := o.msgs, o.evicted
	o.msgs = make([]queued, 0, o.limit)
	o.evicted = 0
	if len(msgs) == 0 {
		msgs = nil
	}
	return msgs, evicted
}

func (o *outbox) size() int { return len(o.msgs) }
