package transport

// Capabilities describes what a backend offers to the bridge.
type Capabilities struct {
	// Name is the registry name of the transport.
	Name string

	// SupportsWildcards indicates topic names may carry hierarchical
	// wildcards, so a subscription can be narrowed by the broker. Without it
	// the bridge publishes every key of a group on one flat topic and filters
	// locally.
	SupportsWildcards bool

	// SupportsOrdering indicates messages from one publisher arrive in order.
	SupportsOrdering bool

	// SupportsAck indicates the transport supports explicit message acknowledgment.
	SupportsAck bool

	// Broadcast indicates every subscriber sees every message without a
	// per-node consumer name.
	Broadcast bool

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64
}

// Carries reports whether a payload of n bytes fits into a single message.
func (c Capabilities) Carries(n int) bool {
	return c.MaxMessageSize == 0 || int64(n) <= c.MaxMessageSize
}

// Predefined capability sets for the built-in transports.
var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		Broadcast:        true,
	}

	NATSCapabilities = Capabilities{
		Name:              "nats",
		SupportsWildcards: true,
		Broadcast:         true,
		MaxMessageSize:    1048576, // Default 1MB
	}

	NATSJetStreamCapabilities = Capabilities{
		Name:              "nats-jetstream",
		SupportsWildcards: true,
		SupportsOrdering:  true,
		SupportsAck:       true,
		MaxMessageSize:    1048576, // Default 1MB
	}

	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsOrdering: true,
		SupportsAck:      true,
		MaxMessageSize:   1048576, // Default 1MB
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsAck:      true,
	}

	AWSCapabilities = Capabilities{
		Name:           "aws",
		SupportsAck:    true,
		MaxMessageSize: 262144, // 256KB
	}

	HTTPCapabilities = Capabilities{
		Name: "http",
	}

	IOCapabilities = Capabilities{
		Name:             "io",
		SupportsOrdering: true,
	}
)

// GetCapabilities returns the capabilities for a transport by name.
// Returns a Capabilities value carrying only the name if the transport is unknown.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
