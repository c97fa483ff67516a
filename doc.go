// Package omsn bridges a UDP multicast group and a pub/sub messaging plane so
// that nodes on different networks share one simulated multicast group.
//
// Every node is identified by a simulation, a site and an application. A
// node republishes each datagram it receives from its local group under the
// key
//
//	omsn/@v1/<simulation>/<site>/<application>
//
// and sends every message published under omsn/@v1/<simulation>/** by other
// nodes back to the group. Payloads are forwarded byte-for-byte.
//
// Bridge owns both directions. It reads the node identity, the multicast
// group and the messaging transport from Config, opens the sockets, builds
// the Watermill publisher and subscriber, and runs until its context is
// cancelled:
//
//	conf := &omsn.Config{
//		SimulationID:  "sim1",
//		SiteID:        "alpha",
//		ApplicationID: "radar",
//		Group:         "239.255.0.1",
//		Port:          5000,
//		PubSubSystem:  "nats",
//		NATSURL:       "nats://localhost:4222",
//	}
//	bridge, err := omsn.NewBridge(ctx, conf, logger, omsn.BridgeDependencies{})
//	if err != nil {
//		return err
//	}
//	defer bridge.Close()
//	return bridge.Run(ctx)
//
// # Transports
//
// The messaging plane is any transport registered in the transport registry:
//   - nats: core NATS subjects with native wildcards
//   - nats-jetstream: NATS JetStream with a durable consumer per node
//   - kafka: one topic per simulation group, one consumer group per node
//   - rabbitmq: fanout exchange per simulation group
//   - aws: SNS topic per simulation group, SQS queue per node
//   - http: point-to-point webhooks between two nodes
//   - io: newline-delimited capture file
//   - channel: in-process Go channels for tests
//
// Transports without hierarchical topics carry the whole group on one topic
// and the key travels in message metadata.
//
// # Observability
//
// TrafficAccounting counts datagrams in both directions and per sender. The
// counters are exported as Prometheus metrics, served as JSON on the stats
// API, and logged periodically when stats are enabled.
package omsn
