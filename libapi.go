package omsn

import (
	runtimepkg "github.com/drblury/omsn/internal/runtime"
	configpkg "github.com/drblury/omsn/internal/runtime/config"
	errspkg "github.com/drblury/omsn/internal/runtime/errors"
	idspkg "github.com/drblury/omsn/internal/runtime/ids"
	jsoncodec "github.com/drblury/omsn/internal/runtime/jsoncodec"
	"github.com/drblury/omsn/internal/runtime/keyspace"
	loggingpkg "github.com/drblury/omsn/internal/runtime/logging"
	metadatapkg "github.com/drblury/omsn/internal/runtime/metadata"
	transportpkg "github.com/drblury/omsn/internal/runtime/transport"
	newtransport "github.com/drblury/omsn/transport"
)

type (
	Config             = configpkg.Config
	Bridge             = runtimepkg.Bridge
	BridgeDependencies = runtimepkg.BridgeDependencies
	MulticastConn      = runtimepkg.MulticastConn
	Transport          = transportpkg.Transport
	TransportFactory   = transportpkg.Factory

	Messenger        = runtimepkg.Messenger
	MessengerOptions = runtimepkg.MessengerOptions
	Inbound          = runtimepkg.Inbound
	Uplink           = runtimepkg.Uplink
	Downlink         = runtimepkg.Downlink
	Reporter         = runtimepkg.Reporter

	TrafficAccounting = runtimepkg.TrafficAccounting
	TrafficSnapshot   = runtimepkg.TrafficSnapshot
	SenderCount       = runtimepkg.SenderCount
	ResourceUsage     = runtimepkg.ResourceUsage

	Identity = keyspace.Identity
	Sender   = keyspace.Sender
	Session  = idspkg.Session
	Envelope = metadatapkg.Envelope

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	SetupError = errspkg.SetupError

	// Modular transport types
	TransportBuilder      = newtransport.Builder
	TransportConfig       = newtransport.Config
	TransportRegistry     = newtransport.Registry
	TransportCapabilities = newtransport.Capabilities
)

const (
	QueuePolicyBlock      = configpkg.QueuePolicyBlock
	QueuePolicyDropOldest = configpkg.QueuePolicyDropOldest
	QueuePolicyDropNewest = configpkg.QueuePolicyDropNewest

	MetadataKeyField    = metadatapkg.KeyField
	MetadataOriginField = metadatapkg.OriginField

	StatsPath   = runtimepkg.StatsPath
	MetricsPath = runtimepkg.MetricsPath
)

var (
	NewBridge            = runtimepkg.NewBridge
	NewMessenger         = runtimepkg.NewMessenger
	NewTrafficAccounting = runtimepkg.NewTrafficAccounting
	NewSession           = idspkg.NewSession

	LoadConfig     = configpkg.LoadFile
	ValidateConfig = configpkg.ValidateConfig

	OutboundKey    = keyspace.OutboundKey
	InboundPattern = keyspace.InboundPattern
	ParseSender    = keyspace.ParseSender
	MatchKey       = keyspace.Match

	NewSlogLogger             = loggingpkg.NewSlogLogger
	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewNopServiceLogger       = loggingpkg.NewNopServiceLogger

	// Modular transport registry.
	// Import individual transports via: _ "github.com/drblury/omsn/transport/kafka"
	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build
	DefaultTransportFactory  = transportpkg.DefaultFactory
	NewTransportFactory      = transportpkg.NewFactory

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal

	ErrConfigRequired     = errspkg.ErrConfigRequired
	ErrLoggerRequired     = errspkg.ErrLoggerRequired
	ErrPublisherRequired  = errspkg.ErrPublisherRequired
	ErrSubscriberRequired = errspkg.ErrSubscriberRequired
	ErrMulticastRequired  = errspkg.ErrMulticastRequired
	ErrKeyRequired        = errspkg.ErrKeyRequired
	ErrInboundClosed      = errspkg.ErrInboundClosed
	ErrMessengerClosed    = errspkg.ErrMessengerClosed
	ErrDatagramTooLarge   = errspkg.ErrDatagramTooLarge
)
