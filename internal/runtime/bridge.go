package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	configpkg "github.com/drblury/omsn/internal/runtime/config"
	errspkg "github.com/drblury/omsn/internal/runtime/errors"
	idspkg "github.com/drblury/omsn/internal/runtime/ids"
	"github.com/drblury/omsn/internal/runtime/keyspace"
	loggingpkg "github.com/drblury/omsn/internal/runtime/logging"
	"github.com/drblury/omsn/internal/runtime/multicast"
	transportpkg "github.com/drblury/omsn/internal/runtime/transport"
)

const (
	// MetricsPath serves Prometheus metrics.
	MetricsPath = "/metrics"

	shutdownTimeout = 5 * time.Second
)

// MulticastConn is the multicast side of a bridge.
type MulticastConn interface {
	DatagramReceiver
	DatagramSender
	Close() error
}

var openMulticast = func(ctx context.Context, cfg multicast.Config) (MulticastConn, error) {
	return multicast.Open(ctx, cfg)
}

var listen = func(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// BridgeDependencies holds optional collaborators. Leave fields nil to use
// the defaults.
type BridgeDependencies struct {
	TransportFactory transportpkg.Factory
	// Multicast replaces the sockets opened from the config.
	Multicast MulticastConn
	// Registerer receives the traffic collectors. It also serves /metrics
	// when it implements prometheus.Gatherer.
	Registerer prometheus.Registerer
	// Session overrides the generated session ID.
	Session idspkg.Session
}

// Bridge joins one multicast group to one messaging-plane key space.
type Bridge struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	identity   keyspace.Identity
	conn       MulticastConn
	messenger  *Messenger
	accounting *TrafficAccounting

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewBridge validates conf, opens the multicast sockets and the transport.
// Every failure is a SetupError.
func NewBridge(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps BridgeDependencies) (*Bridge, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	c := conf.WithDefaults()
	if err := c.Validate(); err != nil {
		return nil, errspkg.Setup("config", err)
	}

	b := &Bridge{
		Conf:       &c,
		Logger:     log,
		identity:   c.Identity(),
		accounting: NewTrafficAccounting(),
	}
	log.Info("Creating bridge", loggingpkg.LogFields{
		"pubsub_system": c.PubSubSystem,
		"config":        c.String(),
	})

	conn := deps.Multicast
	if conn == nil {
		opened, err := openMulticast(ctx, multicast.Config{
			Group:     c.GroupIP(),
			Port:      c.Port,
			Interface: c.InterfaceIP(),
		})
		if err != nil {
			return nil, errspkg.Setup("multicast", err)
		}
		conn = opened
	}
	b.conn = conn

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	t, err := factory.Build(ctx, &c, loggingpkg.NewWatermillAdapter(log))
	if err != nil {
		_ = conn.Close()
		return nil, errspkg.Setup("transport", err)
	}

	b.messenger, err = NewMessenger(t.Transport, t.Capabilities, log, MessengerOptions{
		Session:     deps.Session,
		QueueSize:   c.InboundQueueSize,
		QueuePolicy: c.InboundQueuePolicy,
		OnDrop:      b.accounting.RecordInboundDropped,
	})
	if err != nil {
		_ = t.Close()
		_ = conn.Close()
		return nil, errspkg.Setup("transport", err)
	}

	if started, err := b.messenger.Session().StartedAt(); err == nil {
		b.accounting.startedAt = started
	}

	if err := b.registerObservability(deps.Registerer); err != nil {
		_ = b.Close()
		return nil, errspkg.Setup("metrics", err)
	}
	return b, nil
}

func (b *Bridge) registerObservability(registerer prometheus.Registerer) error {
	if b.Conf.MetricsEnabled {
		if err := b.accounting.Register(registerer); err != nil {
			return err
		}
		if b.Conf.MetricsPort > 0 {
			handler := promhttp.Handler()
			if gatherer, ok := registerer.(prometheus.Gatherer); ok {
				handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
			}
			b.RegisterHTTPHandler(b.Conf.MetricsPort, MetricsPath, handler)
		}
	}

	if b.Conf.StatsAPIEnabled {
		b.RegisterHTTPHandler(b.Conf.StatsAPIPort, StatsPath, &statsHandler{
			accounting:     b.accounting,
			allowedOrigins: b.Conf.StatsAPICORSAllowedOrigins,
			logger:         b.Logger,
		})
	}
	return nil
}

// Identity returns the node identity.
func (b *Bridge) Identity() keyspace.Identity {
	return b.identity
}

// OutboundKey is the key datagrams from the local group are published under.
func (b *Bridge) OutboundKey() string {
	return keyspace.OutboundKey(b.identity)
}

// InboundPattern selects the keys forwarded to the local group.
func (b *Bridge) InboundPattern() string {
	return keyspace.InboundPattern(b.identity.SimulationID)
}

// Session identifies this process on the messaging plane.
func (b *Bridge) Session() idspkg.Session {
	return b.messenger.Session()
}

// Accounting exposes the traffic counters.
func (b *Bridge) Accounting() *TrafficAccounting {
	return b.accounting
}

// RegisterHTTPHandler mounts handler on the HTTP server for port. Servers
// start with Run.
func (b *Bridge) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	b.httpServersMu.Lock()
	defer b.httpServersMu.Unlock()

	if b.httpServers == nil {
		b.httpServers = make(map[int]*http.ServeMux)
	}
	mux, ok := b.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		b.httpServers[port] = mux
	}
	mux.Handle(pattern, handler)
}

// Run subscribes to the group pattern and forwards in both directions until
// ctx is cancelled. It returns a SetupError if the subscription or an HTTP
// listener cannot be created, and ErrInboundClosed if the transport stops
// delivering.
func (b *Bridge) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	servers, err := b.listenHTTP()
	if err != nil {
		return errspkg.Setup("http", err)
	}

	inbound, err := b.messenger.Subscribe(gctx, b.InboundPattern())
	if err != nil {
		for _, srv := range servers {
			_ = srv.listener.Close()
		}
		return errspkg.Setup("subscribe", err)
	}

	for _, srv := range servers {
		b.serveHTTP(gctx, g, srv)
	}

	uplink := &Uplink{
		Receiver:     b.conn,
		Publisher:    b.messenger,
		Key:          b.OutboundKey(),
		Accounting:   b.accounting,
		Logger:       b.Logger.With(loggingpkg.LogFields{"component": "uplink"}),
		Verbose:      b.Conf.Verbose,
		IdleBackoff:  b.Conf.IdleBackoff,
		ErrorBackoff: b.Conf.ErrorBackoff,
	}
	downlink := &Downlink{
		Sender:       b.conn,
		Accounting:   b.accounting,
		Logger:       b.Logger.With(loggingpkg.LogFields{"component": "downlink"}),
		Verbose:      b.Conf.Verbose,
		ErrorBackoff: b.Conf.ErrorBackoff,
	}

	g.Go(func() error { return uplink.Run(gctx) })
	g.Go(func() error { return downlink.Run(gctx, inbound) })
	if b.Conf.Stats {
		reporter := &Reporter{
			Accounting: b.accounting,
			Logger:     b.Logger.With(loggingpkg.LogFields{"component": "stats"}),
			Interval:   b.Conf.StatsInterval,
		}
		g.Go(func() error { return reporter.Run(gctx) })
	}

	b.Logger.Info("Bridge running", loggingpkg.LogFields{
		"outbound_key":    b.OutboundKey(),
		"inbound_pattern": b.InboundPattern(),
		"session":         b.Session().String(),
	})
	return g.Wait()
}

type listeningServer struct {
	server   *http.Server
	listener net.Listener
}

func (b *Bridge) listenHTTP() ([]listeningServer, error) {
	b.httpServersMu.Lock()
	defer b.httpServersMu.Unlock()

	ports := make([]int, 0, len(b.httpServers))
	for port := range b.httpServers {
		ports = append(ports, port)
	}
	sort.Ints(ports)

	servers := make([]listeningServer, 0, len(ports))
	for _, port := range ports {
		addr := fmt.Sprintf(":%d", port)
		ln, err := listen(addr)
		if err != nil {
			for _, s := range servers {
				_ = s.listener.Close()
			}
			return nil, err
		}
		servers = append(servers, listeningServer{
			server:   &http.Server{Addr: addr, Handler: b.httpServers[port], ReadHeaderTimeout: shutdownTimeout},
			listener: ln,
		})
	}
	return servers, nil
}

func (b *Bridge) serveHTTP(ctx context.Context, g *errgroup.Group, s listeningServer) {
	g.Go(func() error {
		b.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": s.listener.Addr().String()})
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.Logger.Error("HTTP server stopped", err, loggingpkg.LogFields{"address": s.server.Addr})
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		return nil
	})
}

// Close releases the multicast sockets and the transport.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		var errs []error
		if b.messenger != nil {
			errs = append(errs, b.messenger.Close())
		}
		if b.conn != nil {
			errs = append(errs, b.conn.Close())
		}
		b.closeErr = errors.Join(errs...)
	})
	return b.closeErr
}
