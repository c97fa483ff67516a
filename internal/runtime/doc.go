/*
Package runtime bridges a local UDP multicast group onto a pub/sub messaging
plane and back.

# Architecture Overview

A Bridge owns one multicast connection and one messaging transport. Three
goroutines run under a shared errgroup:

  - Uplink polls the multicast socket and publishes each datagram under the
    node's outbound key.
  - Downlink forwards every message matching the simulation pattern to the
    multicast group.
  - Reporter (optional) logs the traffic counters periodically.

# Package Structure

## Bridge (bridge.go)

Validates the configuration, opens sockets and transport, mounts the HTTP
endpoints and supervises the forwarders.

## Messaging (messaging.go)

Messenger maps keys onto transport topics, stamps the key and session onto
every message, filters out the process's own messages and keys outside the
subscribed pattern, and applies the inbound queue policy.

## Forwarders (uplink.go, downlink.go)

Steady-state failures are logged, counted and backed off. Only context
cancellation stops the uplink; the downlink also stops when the inbound
stream ends.

## Accounting (accounting.go, reporter.go, statsapi.go, resources.go)

TrafficAccounting holds atomic counters and a per-sender map, exported to
Prometheus and served as JSON on /api/stats.

# Sub-packages

  - config/: Bridge configuration, YAML overlay and validation
  - errors/: Sentinel errors and setup errors
  - ids/: ULID message and session IDs
  - jsoncodec/: JSON codec
  - keyspace/: Key construction, parsing and pattern matching
  - logging/: Logger interface and adapters
  - metadata/: Key and origin metadata on watermill messages
  - multicast/: Multicast socket setup and non-blocking I/O
  - transport/: Factory opening the configured messaging transport

# Usage Example

	conf := &config.Config{
		SimulationID:  "sim1",
		SiteID:        "alpha",
		ApplicationID: "radar",
		Group:         "239.255.0.1",
		Port:          5000,
		PubSubSystem:  "nats",
		NATSURL:       "nats://localhost:4222",
	}

	bridge, err := runtime.NewBridge(ctx, conf, logger, runtime.BridgeDependencies{})
	if err != nil {
		return err
	}
	defer bridge.Close()

	return bridge.Run(ctx)
*/
package runtime
