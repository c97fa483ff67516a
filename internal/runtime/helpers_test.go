package runtime

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	loggingpkg "github.com/drblury/omsn/internal/runtime/logging"
	"github.com/drblury/omsn/internal/runtime/multicast"
)

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

// fakeMulticast queues datagrams for Receive and records every Send.
type fakeMulticast struct {
	mu       sync.Mutex
	incoming [][]byte
	recvErr  error
	sendErr  error
	sent     chan []byte
	closed   bool
}

func newFakeMulticast() *fakeMulticast {
	return &fakeMulticast{sent: make(chan []byte, 64)}
}

func (f *fakeMulticast) Deliver(datagram []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incoming = append(f.incoming, datagram)
}

func (f *fakeMulticast) Receive(buf []byte) (int, net.Addr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recvErr != nil {
		return 0, nil, f.recvErr
	}
	if len(f.incoming) == 0 {
		return 0, nil, multicast.ErrWouldBlock
	}
	next := f.incoming[0]
	f.incoming = f.incoming[1:]
	n := copy(buf, next)
	return n, &net.UDPAddr{IP: net.IPv4(10, 0, 0, 7), Port: 5000}, nil
}

func (f *fakeMulticast) Send(payload []byte) error {
	f.mu.Lock()
	err := f.sendErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.sent <- append([]byte(nil), payload...)
	return nil
}

func (f *fakeMulticast) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeMulticast) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// recordingKeyPublisher records Publish calls.
type recordingKeyPublisher struct {
	mu        sync.Mutex
	keys      []string
	payloads  [][]byte
	err       error
	published chan struct{}
}

func newRecordingKeyPublisher() *recordingKeyPublisher {
	return &recordingKeyPublisher{published: make(chan struct{}, 64)}
}

func (p *recordingKeyPublisher) Publish(ctx context.Context, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.payloads = append(p.payloads, payload)
	p.published <- struct{}{}
	return nil
}

func (p *recordingKeyPublisher) calls() ([]string, [][]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...), append([][]byte(nil), p.payloads...)
}

type testPublisher struct {
	mu       sync.Mutex
	messages map[string][]*message.Message
	err      error
	closed   bool
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.messages == nil {
		p.messages = make(map[string][]*message.Message)
	}
	p.messages[topic] = append(p.messages[topic], messages...)
	return nil
}

func (p *testPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *testPublisher) Published(topic string) []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*message.Message(nil), p.messages[topic]...)
}

type testSubscriber struct {
	err    error
	topics []string
	ch     chan *message.Message
}

func (s *testSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.topics = append(s.topics, topic)
	if s.ch == nil {
		s.ch = make(chan *message.Message)
		close(s.ch)
	}
	return s.ch, nil
}

func (s *testSubscriber) Close() error { return nil }

func receiveWithin[T any](ch <-chan T, d time.Duration) (T, bool) {
	select {
	case v, ok := <-ch:
		return v, ok
	case <-time.After(d):
		var zero T
		return zero, false
	}
}
