package http

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	watermillhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/omsn/transport"
)

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	defer func() { transport.DefaultRegistry = original }()
	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "http", caps.Name)
	assert.False(t, caps.SupportsWildcards)
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t, transport.HTTPCapabilities, Capabilities())
}

func TestBuild(t *testing.T) {
	t.Run("creates transport and targets the peer URL", func(t *testing.T) {
		originalPubFactory := PublisherFactory
		originalSubFactory := SubscriberFactory
		defer func() {
			PublisherFactory = originalPubFactory
			SubscriberFactory = originalSubFactory
		}()

		mockPub := &mockPublisher{}
		mockSub := &mockSubscriber{}
		var pubCfg watermillhttp.PublisherConfig
		var gotAddr string

		PublisherFactory = func(config watermillhttp.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
			pubCfg = config
			return mockPub, nil
		}
		SubscriberFactory = func(addr string, config watermillhttp.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
			gotAddr = addr
			return mockSub, nil
		}

		cfg := &mockConfig{
			httpServerAddress: ":8080",
			httpPublisherURL:  "http://peer:8080/",
		}
		tr, err := Build(context.Background(), cfg, watermill.NopLogger{})
		require.NoError(t, err)

		assert.Equal(t, mockPub, tr.Publisher)
		routed, ok := tr.Subscriber.(*routedSubscriber)
		require.True(t, ok)
		assert.Equal(t, mockSub, routed.Subscriber)
		assert.Equal(t, ":8080", gotAddr)

		req, err := pubCfg.MarshalMessageFunc("omsn__v1_sim1", message.NewMessage("1", []byte{1}))
		require.NoError(t, err)
		assert.Equal(t, "http://peer:8080/omsn__v1_sim1", req.URL.String())
	})

	t.Run("returns error when publisher factory fails", func(t *testing.T) {
		originalPubFactory := PublisherFactory
		defer func() { PublisherFactory = originalPubFactory }()

		PublisherFactory = func(config watermillhttp.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("publisher error")
		}

		_, err := Build(context.Background(), &mockConfig{}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "publisher error")
	})

	t.Run("returns error when subscriber factory fails", func(t *testing.T) {
		originalPubFactory := PublisherFactory
		originalSubFactory := SubscriberFactory
		defer func() {
			PublisherFactory = originalPubFactory
			SubscriberFactory = originalSubFactory
		}()

		PublisherFactory = func(config watermillhttp.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
			return &mockPublisher{}, nil
		}
		SubscriberFactory = func(addr string, config watermillhttp.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
			return nil, errors.New("subscriber error")
		}

		_, err := Build(context.Background(), &mockConfig{}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "subscriber error")
	})
}

func TestRoutedSubscriberPrefixesPathAndStartsServerOnce(t *testing.T) {
	inner := &serverSubscriber{started: make(chan struct{}, 2)}
	sub := &routedSubscriber{Subscriber: inner, logger: watermill.NopLogger{}}

	_, err := sub.Subscribe(context.Background(), "omsn__v1_sim1")
	require.NoError(t, err)
	_, err = sub.Subscribe(context.Background(), "/already/rooted")
	require.NoError(t, err)

	assert.Equal(t, []string{"/omsn__v1_sim1", "/already/rooted"}, inner.topics)

	select {
	case <-inner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("server not started")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), inner.starts.Load())
}

func TestRoutedSubscriberPropagatesErrors(t *testing.T) {
	sub := &routedSubscriber{Subscriber: &failingSubscriber{}, logger: watermill.NopLogger{}}
	_, err := sub.Subscribe(context.Background(), "x")
	assert.ErrorContains(t, err, "subscribe failed")
}

type mockConfig struct {
	httpServerAddress string
	httpPublisherURL  string
}

func (m *mockConfig) GetPubSubSystem() string       { return "http" }
func (m *mockConfig) GetSubscriberID() string       { return "omsn-sim1-alpha-radar" }
func (m *mockConfig) GetKafkaBrokers() []string     { return nil }
func (m *mockConfig) GetKafkaConsumerGroup() string { return "" }
func (m *mockConfig) GetRabbitMQURL() string        { return "" }
func (m *mockConfig) GetNATSURL() string            { return "" }
func (m *mockConfig) GetHTTPServerAddress() string  { return m.httpServerAddress }
func (m *mockConfig) GetHTTPPublisherURL() string   { return m.httpPublisherURL }
func (m *mockConfig) GetIOFile() string             { return "" }
func (m *mockConfig) GetAWSRegion() string          { return "" }
func (m *mockConfig) GetAWSAccountID() string       { return "" }
func (m *mockConfig) GetAWSAccessKeyID() string     { return "" }
func (m *mockConfig) GetAWSSecretAccessKey() string { return "" }
func (m *mockConfig) GetAWSEndpoint() string        { return "" }

type mockPublisher struct{}

func (m *mockPublisher) Publish(topic string, messages ...*message.Message) error { return nil }
func (m *mockPublisher) Close() error                                             { return nil }

type mockSubscriber struct{}

func (m *mockSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return make(chan *message.Message), nil
}
func (m *mockSubscriber) Close() error { return nil }

type serverSubscriber struct {
	topics  []string
	starts  atomic.Int32
	started chan struct{}
}

func (s *serverSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.topics = append(s.topics, topic)
	return make(chan *message.Message), nil
}
func (s *serverSubscriber) Close() error { return nil }
func (s *serverSubscriber) StartHTTPServer() error {
	s.starts.Add(1)
	s.started <- struct{}{}
	return nil
}

type failingSubscriber struct{}

func (f *failingSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return nil, errors.New("subscribe failed")
}
func (f *failingSubscriber) Close() error { return nil }
