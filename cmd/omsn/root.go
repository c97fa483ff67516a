package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/drblury/omsn/internal/runtime"
	"github.com/drblury/omsn/internal/runtime/config"
	"github.com/drblury/omsn/internal/runtime/logging"
)

const version = "0.1.0"

// runFunc starts a bridge from a resolved config and blocks until it stops.
type runFunc func(ctx context.Context, conf *config.Config, log logging.ServiceLogger, out io.Writer) error

// options mirrors the command-line flags. Only flags the user actually set
// are applied on top of the transport config file.
type options struct {
	simulationID  string
	siteID        string
	applicationID string
	group         string
	port          int
	iface         string
	stats         bool
	verbose       bool

	transportConfig string
	transport       string
	natsURL         string
	kafkaBrokers    []string
	rabbitMQURL     string
	metricsPort     int
	statsAPIPort    int
	queueSize       int
	queuePolicy     string

	logFormat string
	debug     bool
}

var rootCmd = newRootCommand(runBridge)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand(run runFunc) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:     "omsn",
		Short:   "Proxies datagrams between UDP multicast and a pub/sub messaging plane",
		Version: version,
		Long: `omsn joins a UDP multicast group and republishes every datagram it
receives under omsn/@v1/<simulation>/<site>/<application>. Datagrams
published by other nodes of the same simulation are sent back to the
multicast group.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := opts.config(cmd)
			if err != nil {
				return err
			}

			slogger, err := logging.NewSlogLogger(cmd.ErrOrStderr(), opts.logFormat, opts.debug)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, conf, logging.NewSlogServiceLogger(slogger), cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.simulationID, "simulation-id", "", "Simulation ID for grouping omsn clients")
	f.StringVar(&opts.siteID, "site-id", "", "Site ID for the messaging key space")
	f.StringVar(&opts.applicationID, "application-id", "", "Application ID for the messaging key space")
	f.StringVar(&opts.group, "group", "", "Multicast group IPv4 address")
	f.IntVar(&opts.port, "port", 0, "Multicast port")
	f.StringVar(&opts.iface, "interface", config.DefaultInterface, "Network interface IPv4 address")
	f.BoolVar(&opts.stats, "stats", false, "Log traffic stats periodically")
	f.BoolVar(&opts.verbose, "verbose", false, "Log every forwarded payload")

	f.StringVar(&opts.transportConfig, "transport-config", "", "Path to a YAML transport configuration file")
	f.StringVar(&opts.transport, "transport", config.DefaultPubSubSystem, "Messaging transport (nats, nats-jetstream, kafka, rabbitmq, aws, http, io, channel)")
	f.StringVar(&opts.natsURL, "nats-url", "", "NATS server URL")
	f.StringSliceVar(&opts.kafkaBrokers, "kafka-brokers", nil, "Kafka broker addresses")
	f.StringVar(&opts.rabbitMQURL, "rabbitmq-url", "", "RabbitMQ AMQP URL")
	f.IntVar(&opts.metricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port (0 disables)")
	f.IntVar(&opts.statsAPIPort, "stats-api-port", 0, "Serve the JSON stats API on this port (0 disables)")
	f.IntVar(&opts.queueSize, "inbound-queue-size", 0, "Inbound queue capacity in front of the multicast sender")
	f.StringVar(&opts.queuePolicy, "inbound-queue-policy", config.QueuePolicyBlock, "Policy when the inbound queue is full (block, drop-oldest, drop-newest)")

	f.StringVar(&opts.logFormat, "log-format", logging.FormatText, "Log output format (text, json)")
	f.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	for _, name := range []string{"simulation-id", "site-id", "application-id", "group", "port"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

// config resolves the bridge configuration: the transport config file first,
// then every flag set on the command line.
func (o *options) config(cmd *cobra.Command) (*config.Config, error) {
	conf := &config.Config{}
	if o.transportConfig != "" {
		if err := config.LoadFile(o.transportConfig, conf); err != nil {
			return nil, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("simulation-id") {
		conf.SimulationID = o.simulationID
	}
	if changed("site-id") {
		conf.SiteID = o.siteID
	}
	if changed("application-id") {
		conf.ApplicationID = o.applicationID
	}
	if changed("group") {
		conf.Group = o.group
	}
	if changed("port") {
		conf.Port = o.port
	}
	if changed("interface") {
		conf.Interface = o.iface
	}
	if changed("stats") {
		conf.Stats = o.stats
	}
	if changed("verbose") {
		conf.Verbose = o.verbose
	}
	if changed("transport") {
		conf.PubSubSystem = o.transport
	}
	if changed("nats-url") {
		conf.NATSURL = o.natsURL
	}
	if changed("kafka-brokers") {
		conf.KafkaBrokers = o.kafkaBrokers
	}
	if changed("rabbitmq-url") {
		conf.RabbitMQURL = o.rabbitMQURL
	}
	if changed("metrics-port") {
		conf.MetricsPort = o.metricsPort
		conf.MetricsEnabled = o.metricsPort > 0
	}
	if changed("stats-api-port") {
		conf.StatsAPIPort = o.statsAPIPort
		conf.StatsAPIEnabled = o.statsAPIPort > 0
	}
	if changed("inbound-queue-size") {
		conf.InboundQueueSize = o.queueSize
	}
	if changed("inbound-queue-policy") {
		conf.InboundQueuePolicy = o.queuePolicy
	}
	return conf, nil
}

func runBridge(ctx context.Context, conf *config.Config, log logging.ServiceLogger, out io.Writer) error {
	bridge, err := runtime.NewBridge(ctx, conf, log, runtime.BridgeDependencies{})
	if err != nil {
		return err
	}
	defer func() {
		if err := bridge.Close(); err != nil {
			log.Error("Failed to close bridge", err, nil)
		}
	}()

	printBanner(out, bridge)
	return bridge.Run(ctx)
}

func printBanner(w io.Writer, bridge *runtime.Bridge) {
	conf := bridge.Conf
	id := bridge.Identity()
	fmt.Fprintln(w, "Starting omsn")
	fmt.Fprintf(w, "SITE_ID: %s | APPLICATION_ID: %s\n", id.SiteID, id.ApplicationID)
	fmt.Fprintf(w, "Multicast group: %s | Port: %d | Interface: %s\n", conf.Group, conf.Port, conf.Interface)
	fmt.Fprintf(w, "Transport: %s\n", conf.PubSubSystem)
	if conf.Stats {
		fmt.Fprintln(w, "Stats enabled")
	}
	if conf.Verbose {
		fmt.Fprintln(w, "Verbose enabled")
	}
	fmt.Fprintf(w, "Publish key: %s\n", bridge.OutboundKey())
	fmt.Fprintf(w, "Subscribe key: %s\n", bridge.InboundPattern())
}
