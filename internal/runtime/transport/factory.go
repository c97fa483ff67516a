// Package transport opens the messaging-plane backend selected by the bridge
// configuration.
package transport

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/omsn/internal/runtime/config"
	"github.com/drblury/omsn/transport"

	// Built-in backends register themselves on import.
	_ "github.com/drblury/omsn/transport/transports"
)

// Transport is an opened backend together with what it can do.
type Transport struct {
	transport.Transport
	Capabilities transport.Capabilities
}

// Factory abstracts how the bridge opens its messaging-plane backend.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)
}

// DefaultFactory returns a factory backed by the default transport registry.
func DefaultFactory() Factory {
	return registryFactory{registry: transport.DefaultRegistry}
}

// NewFactory returns a factory backed by the given registry.
func NewFactory(registry *transport.Registry) Factory {
	return registryFactory{registry: registry}
}

type registryFactory struct {
	registry *transport.Registry
}

func (f registryFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	if conf == nil {
		return Transport{}, errors.New("config is required")
	}

	t, err := f.registry.Build(ctx, conf, logger)
	if err != nil {
		return Transport{}, err
	}

	return Transport{
		Transport:    t,
		Capabilities: capabilitiesOf(f.registry, conf.GetPubSubSystem(), t),
	}, nil
}

// capabilitiesOf prefers what a backend reports about itself over the
// registry's static entry.
func capabilitiesOf(registry *transport.Registry, name string, t transport.Transport) transport.Capabilities {
	if p, ok := t.Publisher.(transport.CapabilitiesProvider); ok {
		return p.Capabilities()
	}
	if p, ok := t.Subscriber.(transport.CapabilitiesProvider); ok {
		return p.Capabilities()
	}
	return registry.GetCapabilities(name)
}
