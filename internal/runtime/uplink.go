package runtime

import (
	"context"
	"encoding/hex"
	"errors"
	"net"
	"time"

	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/omsn/internal/runtime/config"
	errspkg "github.com/drblury/omsn/internal/runtime/errors"
	loggingpkg "github.com/drblury/omsn/internal/runtime/logging"
	"github.com/drblury/omsn/internal/runtime/multicast"
)

// DatagramReceiver reads datagrams without blocking.
type DatagramReceiver interface {
	Receive(buf []byte) (int, net.Addr, error)
}

// KeyPublisher publishes a payload under a messaging-plane key.
type KeyPublisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

type pollResult int

const (
	pollHasData pollResult = iota
	pollIdle
	pollError
)

// Uplink moves datagrams from the multicast group onto the messaging plane.
type Uplink struct {
	Receiver     DatagramReceiver
	Publisher    KeyPublisher
	Key          string
	Accounting   *TrafficAccounting
	Logger       loggingpkg.ServiceLogger
	Verbose      bool
	IdleBackoff  time.Duration
	ErrorBackoff time.Duration

	buf []byte
}

// Run polls until ctx is cancelled. Receive and publish failures are logged,
// counted and backed off.
func (u *Uplink) Run(ctx context.Context) error {
	if u.Receiver == nil {
		return errspkg.ErrMulticastRequired
	}
	if u.Publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	if u.IdleBackoff <= 0 {
		u.IdleBackoff = configpkg.DefaultIdleBackoff
	}
	if u.ErrorBackoff <= 0 {
		u.ErrorBackoff = configpkg.DefaultErrorBackoff
	}

	for {
		var wait time.Duration
		switch u.poll(ctx) {
		case pollIdle:
			wait = u.IdleBackoff
		case pollError:
			wait = u.ErrorBackoff
		}
		if !sleep(ctx, wait) {
			return nil
		}
	}
}

func (u *Uplink) poll(ctx context.Context) pollResult {
	if u.buf == nil {
		u.buf = make([]byte, multicast.MaxDatagramSize)
	}

	n, src, err := u.Receiver.Receive(u.buf)
	if errors.Is(err, multicast.ErrWouldBlock) {
		return pollIdle
	}
	if err != nil {
		u.Logger.Error("Multicast receive failed", err, nil)
		return pollError
	}

	payload := make([]byte, n)
	copy(payload, u.buf[:n])

	if u.Verbose {
		u.Logger.Info("Received datagram from multicast", loggingpkg.LogFields{
			"bytes":  n,
			"source": addrString(src),
			"data":   hex.EncodeToString(payload),
		})
	}

	spanCtx, span := startForwardSpan(ctx, SpanUplinkPublish, trace.SpanKindProducer, u.Key, n)
	err = u.Publisher.Publish(spanCtx, u.Key, payload)
	endSpan(span, err)
	if err != nil {
		u.Accounting.RecordUplinkError()
		u.Logger.Error("Publish to messaging plane failed", err, loggingpkg.LogFields{
			"key":   u.Key,
			"bytes": n,
		})
		return pollError
	}
	u.Accounting.RecordUplink()
	return pollHasData
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}

// sleep waits for d or until ctx is done, and reports whether ctx is still
// live.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
