// Package transports imports every built-in transport so each registers
// itself with the default registry.
package transports

import (
	_ "github.com/drblury/omsn/transport/aws"
	_ "github.com/drblury/omsn/transport/channel"
	_ "github.com/drblury/omsn/transport/http"
	_ "github.com/drblury/omsn/transport/io"
	_ "github.com/drblury/omsn/transport/jetstream"
	_ "github.com/drblury/omsn/transport/kafka"
	_ "github.com/drblury/omsn/transport/nats"
	_ "github.com/drblury/omsn/transport/rabbitmq"
)
