package runtime

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/omsn/internal/runtime/keyspace"
)

// Traffic directions used as metric labels.
const (
	DirectionUplink   = "uplink"
	DirectionDownlink = "downlink"
)

// TrafficAccounting counts forwarded datagrams. It only offers increments and
// Snapshot; nothing resets or decrements a counter.
type TrafficAccounting struct {
	uplink         atomic.Uint64
	downlink       atomic.Uint64
	uplinkErrors   atomic.Uint64
	downlinkErrors atomic.Uint64
	inboundDropped atomic.Uint64

	// mu guards perSender and makes each downlink increment atomic with its
	// per-sender increment.
	mu        sync.Mutex
	perSender map[keyspace.Sender]uint64

	startedAt time.Time
	resources *resourceSampler

	datagramsTotal *prometheus.CounterVec
	senderTotal    *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	droppedTotal   prometheus.Counter

	regMu      sync.Mutex
	registered bool
}

// SenderCount is the number of datagrams received from one sender.
type SenderCount struct {
	SiteID        string `json:"site_id"`
	ApplicationID string `json:"application_id"`
	Datagrams     uint64 `json:"datagrams"`
}

// TrafficSnapshot is a point-in-time copy of the accounting state.
type TrafficSnapshot struct {
	UplinkDatagrams   uint64        `json:"uplink_datagrams"`
	DownlinkDatagrams uint64        `json:"downlink_datagrams"`
	UplinkErrors      uint64        `json:"uplink_errors"`
	DownlinkErrors    uint64        `json:"downlink_errors"`
	InboundDropped    uint64        `json:"inbound_dropped"`
	Senders           []SenderCount `json:"senders"`
	Resources         ResourceUsage `json:"resources"`
	StartedAt         time.Time     `json:"started_at"`
	CollectedAt       time.Time     `json:"collected_at"`
}

// PerSenderTotal sums the per-sender counts.
func (s TrafficSnapshot) PerSenderTotal() uint64 {
	var total uint64
	for _, sc := range s.Senders {
		total += sc.Datagrams
	}
	return total
}

// NewTrafficAccounting returns zeroed accounting. Prometheus collectors are
// created eagerly and only exported once Register is called.
func NewTrafficAccounting() *TrafficAccounting {
	return &TrafficAccounting{
		perSender: make(map[keyspace.Sender]uint64),
		startedAt: time.Now(),
		resources: newResourceSampler(),
		datagramsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omsn",
			Name:      "datagrams_total",
			Help:      "Datagrams forwarded by the bridge.",
		}, []string{"direction"}),
		senderTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omsn",
			Name:      "sender_datagrams_total",
			Help:      "Datagrams received from the messaging plane per sender.",
		}, []string{"site", "application"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omsn",
			Name:      "forward_errors_total",
			Help:      "Datagrams that could not be forwarded.",
		}, []string{"direction"}),
		droppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "omsn",
			Name:      "inbound_dropped_total",
			Help:      "Inbound messages dropped because the downlink queue was full.",
		}),
	}
}

// Register exports the collectors. Calling it again is a no-op, and
// collectors already present in registerer are tolerated.
func (a *TrafficAccounting) Register(registerer prometheus.Registerer) error {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	a.regMu.Lock()
	defer a.regMu.Unlock()
	if a.registered {
		return nil
	}

	for _, c := range []prometheus.Collector{a.datagramsTotal, a.senderTotal, a.errorsTotal, a.droppedTotal} {
		if err := registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	a.registered = true
	return nil
}

// RecordUplink counts one datagram published to the messaging plane.
func (a *TrafficAccounting) RecordUplink() {
	a.uplink.Add(1)
	a.datagramsTotal.WithLabelValues(DirectionUplink).Inc()
}

// RecordDownlink counts one message sent to the multicast group.
func (a *TrafficAccounting) RecordDownlink(sender keyspace.Sender) {
	a.mu.Lock()
	a.downlink.Add(1)
	a.perSender[sender]++
	a.mu.Unlock()

	a.datagramsTotal.WithLabelValues(DirectionDownlink).Inc()
	a.senderTotal.WithLabelValues(sender.SiteID, sender.ApplicationID).Inc()
}

// RecordUplinkError counts a datagram that could not be published.
func (a *TrafficAccounting) RecordUplinkError() {
	a.uplinkErrors.Add(1)
	a.errorsTotal.WithLabelValues(DirectionUplink).Inc()
}

// RecordDownlinkError counts a datagram that could not be sent to the group.
func (a *TrafficAccounting) RecordDownlinkError() {
	a.downlinkErrors.Add(1)
	a.errorsTotal.WithLabelValues(DirectionDownlink).Inc()
}

// RecordInboundDropped counts a message discarded by the inbound queue.
func (a *TrafficAccounting) RecordInboundDropped() {
	a.inboundDropped.Add(1)
	a.droppedTotal.Inc()
}

// Snapshot copies the counters. Senders are ordered by site, then
// application.
func (a *TrafficAccounting) Snapshot() TrafficSnapshot {
	a.mu.Lock()
	senders := make([]SenderCount, 0, len(a.perSender))
	for sender, n := range a.perSender {
		senders = append(senders, SenderCount{
			SiteID:        sender.SiteID,
			ApplicationID: sender.ApplicationID,
			Datagrams:     n,
		})
	}
	downlink := a.downlink.Load()
	a.mu.Unlock()

	sort.Slice(senders, func(i, j int) bool {
		if senders[i].SiteID != senders[j].SiteID {
			return senders[i].SiteID < senders[j].SiteID
		}
		return senders[i].ApplicationID < senders[j].ApplicationID
	})

	return TrafficSnapshot{
		UplinkDatagrams:   a.uplink.Load(),
		DownlinkDatagrams: downlink,
		UplinkErrors:      a.uplinkErrors.Load(),
		DownlinkErrors:    a.downlinkErrors.Load(),
		InboundDropped:    a.inboundDropped.Load(),
		Senders:           senders,
		Resources:         a.resources.Sample(),
		StartedAt:         a.startedAt,
		CollectedAt:       time.Now(),
	}
}
