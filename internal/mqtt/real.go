package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// outboxLimit is the number of messages kept while the broker is unreachable.
const outboxLimit = 256

// pahoClient is the subset of paho.Client the publisher uses.
type pahoClient interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. Messages produced while
// the connection is down are queued and replayed on reconnect. Log lines and
// unconfirmed records are handed to a sender goroutine, so publishing never
// blocks the caller; a full send queue drops the message.
type RealPublisher struct {
	client         pahoClient
	topics         Topics
	publishTimeout time.Duration

	sendq chan queued
	wg    sync.WaitGroup

	mu      sync.Mutex
	pending *outbox
	dropped int
	closed  bool
}

// NewRealPublisher starts connecting to broker in the background and returns
// immediately. The broker keeps an OFFLINE record as last will.
func NewRealPublisher(broker, prefix, clientID string) *RealPublisher {
	p := newPublisher(TopicsFor(prefix))

	offline, _ := FormatSystemPayload(SystemEvent{Event: "OFFLINE"})
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(false).
		SetWill(p.topics.System, string(offline), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.flush() })

	client := paho.NewClient(opts)
	p.client = client
	// With connect retry the token only completes once connected.
	client.Connect()
	return p
}

func newPublisher(topics Topics) *RealPublisher {
	p := &RealPublisher{
		topics:         topics,
		publishTimeout: 5 * time.Second,
		sendq:          make(chan queued, outboxLimit),
		pending:        newOutbox(outboxLimit),
	}
	p.wg.Add(1)
	go p.send()
	return p
}

// send publishes queued messages without waiting for acknowledgement.
func (p *RealPublisher) send() {
	defer p.wg.Done()
	for m := range p.sendq {
		if p.bufferIfOffline(m) {
			continue
		}
		p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

func (p *RealPublisher) enqueue(m queued) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.sendq <- m:
	default:
		p.dropped++
	}
}

// PublishLog queues a log record for QoS 0 delivery. It never blocks.
func (p *RealPublisher) PublishLog(line []byte) error {
	if p.bufferIfOffline(queued{topic: p.topics.Log, payload: line}) {
		return nil
	}
	p.enqueue(queued{topic: p.topics.Log, payload: line})
	return nil
}

// PublishSystem sends a lifecycle record at QoS 1. Only records marked
// Confirm wait for the broker, bounded by the publish timeout; the rest are
// queued like log lines.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	msg := queued{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained}
	if p.bufferIfOffline(msg) {
		return nil
	}
	if !event.Confirm {
		p.enqueue(msg)
		return nil
	}

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(p.publishTimeout) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

func (p *RealPublisher) bufferIfOffline(msg queued) bool {
	if p.client.IsConnectionOpen() {
		return false
	}
	p.mu.Lock()
	p.pending.add(msg)
	p.mu.Unlock()
	return true
}

// flush replays queued messages in order. Called on every (re)connect.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs, dropped := p.pending.take()
	p.mu.Unlock()

	for _, m := range msgs {
		p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
	if dropped > 0 {
		payload, _ := FormatSystemPayload(SystemEvent{
			Timestamp: time.Now(),
			Event:     "RECONNECTED",
			Reason:    fmt.Sprintf("dropped %d buffered messages", dropped),
		})
		p.client.Publish(p.topics.System, 1, false, payload)
	}
}

// IsConnected reports whether the broker connection is currently open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending.size()
}

// Dropped returns the number of messages discarded because the send queue
// was full.
func (p *RealPublisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close hands the remaining queued messages to the client and disconnects.
// Later publishes are discarded.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.sendq)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
