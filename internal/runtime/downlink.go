package runtime

import (
	"context"
	"encoding/hex"
	"time"

	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/omsn/internal/runtime/config"
	errspkg "github.com/drblury/omsn/internal/runtime/errors"
	"github.com/drblury/omsn/internal/runtime/keyspace"
	loggingpkg "github.com/drblury/omsn/internal/runtime/logging"
)

// DatagramSender writes one datagram to the multicast group.
type DatagramSender interface {
	Send(payload []byte) error
}

// Downlink moves messages from the messaging plane onto the multicast group.
type Downlink struct {
	Sender       DatagramSender
	Accounting   *TrafficAccounting
	Logger       loggingpkg.ServiceLogger
	Verbose      bool
	ErrorBackoff time.Duration
}

// Run forwards inbound messages in delivery order. It returns
// ErrInboundClosed if the stream ends while ctx is still live, and nil once
// ctx is cancelled.
func (d *Downlink) Run(ctx context.Context, inbound <-chan Inbound) error {
	if d.Sender == nil {
		return errspkg.ErrMulticastRequired
	}
	if d.ErrorBackoff <= 0 {
		d.ErrorBackoff = configpkg.DefaultErrorBackoff
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case in, ok := <-inbound:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errspkg.ErrInboundClosed
			}
			if err := d.forward(ctx, in); err != nil && !sleep(ctx, d.ErrorBackoff) {
				return nil
			}
		}
	}
}

func (d *Downlink) forward(ctx context.Context, in Inbound) error {
	sender := keyspace.ParseSender(in.Key)

	if d.Verbose {
		d.Logger.Info("Received message from messaging plane", loggingpkg.LogFields{
			"bytes":          len(in.Payload),
			"key":            in.Key,
			"site_id":        sender.SiteID,
			"application_id": sender.ApplicationID,
			"data":           hex.EncodeToString(in.Payload),
		})
	}

	_, span := startForwardSpan(ctx, SpanDownlinkSend, trace.SpanKindConsumer, in.Key, len(in.Payload))
	err := d.Sender.Send(in.Payload)
	endSpan(span, err)
	if err != nil {
		d.Accounting.RecordDownlinkError()
		d.Logger.Error("Multicast send failed", err, loggingpkg.LogFields{
			"key":   in.Key,
			"bytes": len(in.Payload),
		})
		return err
	}
	d.Accounting.RecordDownlink(sender)
	return nil
}
