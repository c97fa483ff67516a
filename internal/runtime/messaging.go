package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"

	configpkg "github.com/drblury/omsn/internal/runtime/config"
	errspkg "github.com/drblury/omsn/internal/runtime/errors"
	idspkg "github.com/drblury/omsn/internal/runtime/ids"
	"github.com/drblury/omsn/internal/runtime/keyspace"
	loggingpkg "github.com/drblury/omsn/internal/runtime/logging"
	metadatapkg "github.com/drblury/omsn/internal/runtime/metadata"
	"github.com/drblury/omsn/transport"
)

// Inbound is one datagram received from the messaging plane.
type Inbound struct {
	Key     string
	Payload []byte
}

// MessengerOptions tunes a Messenger. The zero value hands messages over
// unbuffered and generates a fresh session.
type MessengerOptions struct {
	Session     idspkg.Session
	QueueSize   int
	QueuePolicy string
	// OnDrop is called for each message discarded by a full queue.
	OnDrop func()
}

// Messenger publishes datagrams under keys and delivers the datagrams of
// other processes matching a key pattern.
type Messenger struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	caps       transport.Capabilities
	closer     func() error

	session idspkg.Session
	opts    MessengerOptions
	logger  loggingpkg.ServiceLogger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewMessenger wraps an opened transport. The Messenger owns it from then on
// and releases it on Close.
func NewMessenger(t transport.Transport, caps transport.Capabilities, logger loggingpkg.ServiceLogger, opts MessengerOptions) (*Messenger, error) {
	if t.Publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if t.Subscriber == nil {
		return nil, errspkg.ErrSubscriberRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if opts.Session == "" {
		opts.Session = idspkg.NewSession()
	}
	if opts.QueuePolicy == "" {
		opts.QueuePolicy = configpkg.QueuePolicyBlock
	}

	m := &Messenger{
		publisher:  t.Publisher,
		subscriber: t.Subscriber,
		caps:       caps,
		closer:     t.Close,
		session:    opts.Session,
		opts:       opts,
		logger:     logger.With(loggingpkg.LogFields{"transport": caps.Name}),
	}
	m.logger.Info("Messaging transport ready", loggingpkg.LogFields{
		"session":           opts.Session.String(),
		"wildcards":         caps.SupportsWildcards,
		"ordered":           caps.SupportsOrdering,
		"acked":             caps.SupportsAck,
		"broadcast":         caps.Broadcast,
		"max_message_bytes": caps.MaxMessageSize,
	})
	if !caps.SupportsOrdering {
		m.logger.Info("Transport does not guarantee delivery order; datagrams may be reordered", nil)
	}
	if !caps.Broadcast {
		m.logger.Debug("Transport load-balances shared consumers; relying on a per-node consumer name", nil)
	}
	return m, nil
}

// Session identifies this process on the messaging plane.
func (m *Messenger) Session() idspkg.Session {
	return m.session
}

// Capabilities reports what the underlying transport offers.
func (m *Messenger) Capabilities() transport.Capabilities {
	return m.caps
}

// Topic maps a key or pattern onto the transport topic carrying it.
func (m *Messenger) Topic(keyOrPattern string) string {
	if m.caps.SupportsWildcards {
		return keyspace.Subject(keyOrPattern)
	}
	return keyspace.GroupTopic(keyOrPattern)
}

// Publish sends payload under key. The payload is not copied.
func (m *Messenger) Publish(ctx context.Context, key string, payload []byte) error {
	if m.closed.Load() {
		return errspkg.ErrMessengerClosed
	}
	if key == "" {
		return errspkg.ErrKeyRequired
	}
	if !m.caps.Carries(len(payload)) {
		return fmt.Errorf("%w: %d bytes, %s carries at most %d", errspkg.ErrDatagramTooLarge, len(payload), m.caps.Name, m.caps.MaxMessageSize)
	}

	msg := message.NewMessage(idspkg.CreateULID(), payload)
	metadatapkg.Stamp(msg, metadatapkg.Envelope{Key: key, Origin: m.session.String()})
	msg.SetContext(ctx)

	return m.publisher.Publish(m.Topic(key), msg)
}

// Subscribe delivers messages whose key matches pattern and that were not
// published by this session. The channel closes when ctx ends or the
// transport stops delivering.
func (m *Messenger) Subscribe(ctx context.Context, pattern string) (<-chan Inbound, error) {
	if m.closed.Load() {
		return nil, errspkg.ErrMessengerClosed
	}

	topic := m.Topic(pattern)
	messages, err := m.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	m.logger.Info("Subscribed to messaging plane", loggingpkg.LogFields{
		"pattern": pattern,
		"topic":   topic,
	})

	size := m.opts.QueueSize
	if size < 0 {
		size = 0
	}
	out := make(chan Inbound, size)
	go m.pump(ctx, pattern, messages, out)
	return out, nil
}

func (m *Messenger) pump(ctx context.Context, pattern string, messages <-chan *message.Message, out chan Inbound) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			in, deliver := m.accept(pattern, msg)
			msg.Ack()
			if !deliver {
				continue
			}
			if !m.enqueue(ctx, out, in) {
				return
			}
		}
	}
}

// accept applies the session and pattern filters.
func (m *Messenger) accept(pattern string, msg *message.Message) (Inbound, bool) {
	env := metadatapkg.Read(msg.Metadata)
	if env.FromSession(m.session.String()) {
		return Inbound{}, false
	}
	if !keyspace.Match(pattern, env.Key) {
		m.logger.Trace("Ignoring message outside pattern", loggingpkg.LogFields{
			"key":          env.Key,
			"message_uuid": msg.UUID,
		})
		return Inbound{}, false
	}
	return Inbound{Key: env.Key, Payload: msg.Payload}, true
}

// enqueue hands in to the consumer according to the queue policy. It returns
// false once ctx is done.
func (m *Messenger) enqueue(ctx context.Context, out chan Inbound, in Inbound) bool {
	policy := m.opts.QueuePolicy
	if cap(out) == 0 {
		policy = configpkg.QueuePolicyBlock
	}

	switch policy {
	case configpkg.QueuePolicyDropNewest:
		select {
		case out <- in:
		default:
			m.dropped()
		}
		return ctx.Err() == nil
	case configpkg.QueuePolicyDropOldest:
		for {
			select {
			case out <- in:
				return ctx.Err() == nil
			default:
			}
			select {
			case <-out:
				m.dropped()
			default:
			}
		}
	default:
		select {
		case out <- in:
			return true
		case <-ctx.Done():
			return false
		}
	}
}

func (m *Messenger) dropped() {
	if m.opts.OnDrop != nil {
		m.opts.OnDrop()
	}
}

// Close releases the transport. Further Publish and Subscribe calls fail
// with ErrMessengerClosed.
func (m *Messenger) Close() error {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		if m.closer != nil {
			m.closeErr = m.closer()
		}
	})
	return m.closeErr
}
