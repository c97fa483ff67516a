package runtime

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/omsn/internal/runtime/keyspace"
)

func TestTrafficAccountingStartsAtZero(t *testing.T) {
	snap := NewTrafficAccounting().Snapshot()
	assert.Zero(t, snap.UplinkDatagrams)
	assert.Zero(t, snap.DownlinkDatagrams)
	assert.Zero(t, snap.UplinkErrors)
	assert.Zero(t, snap.DownlinkErrors)
	assert.Zero(t, snap.InboundDropped)
	assert.Empty(t, snap.Senders)
	assert.False(t, snap.StartedAt.IsZero())
}

func TestTrafficAccountingCountsAndSortsSenders(t *testing.T) {
	a := NewTrafficAccounting()
	a.RecordUplink()
	a.RecordUplink()
	a.RecordUplinkError()
	a.RecordDownlinkError()
	a.RecordInboundDropped()
	a.RecordDownlink(keyspace.Sender{SiteID: "beta", ApplicationID: "gps"})
	a.RecordDownlink(keyspace.Sender{SiteID: "alpha", ApplicationID: "radar"})
	a.RecordDownlink(keyspace.Sender{SiteID: "beta", ApplicationID: "gps"})
	a.RecordDownlink(keyspace.UnknownSender)

	snap := a.Snapshot()
	assert.EqualValues(t, 2, snap.UplinkDatagrams)
	assert.EqualValues(t, 4, snap.DownlinkDatagrams)
	assert.EqualValues(t, 1, snap.UplinkErrors)
	assert.EqualValues(t, 1, snap.DownlinkErrors)
	assert.EqualValues(t, 1, snap.InboundDropped)
	assert.Equal(t, []SenderCount{
		{SiteID: "alpha", ApplicationID: "radar", Datagrams: 1},
		{SiteID: "beta", ApplicationID: "gps", Datagrams: 2},
		{SiteID: "unknown", ApplicationID: "unknown", Datagrams: 1},
	}, snap.Senders)
	assert.Equal(t, snap.DownlinkDatagrams, snap.PerSenderTotal())
}

func TestTrafficAccountingPerSenderSumsUnderConcurrency(t *testing.T) {
	a := NewTrafficAccounting()
	senders := []keyspace.Sender{
		{SiteID: "alpha", ApplicationID: "radar"},
		{SiteID: "beta", ApplicationID: "gps"},
		keyspace.UnknownSender,
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 250; j++ {
				a.RecordDownlink(senders[(i+j)%len(senders)])
				a.RecordUplink()
				if j%50 == 0 {
					snap := a.Snapshot()
					assert.Equal(t, snap.DownlinkDatagrams, snap.PerSenderTotal())
				}
			}
		}(i)
	}
	wg.Wait()

	snap := a.Snapshot()
	assert.EqualValues(t, 2000, snap.DownlinkDatagrams)
	assert.EqualValues(t, 2000, snap.UplinkDatagrams)
	assert.EqualValues(t, 2000, snap.PerSenderTotal())
}

func TestTrafficAccountingIsMonotonic(t *testing.T) {
	a := NewTrafficAccounting()
	prev := a.Snapshot()
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			a.RecordUplink()
		} else {
			a.RecordDownlink(keyspace.ParseSender("omsn/@v1/sim1/alpha/radar"))
		}
		next := a.Snapshot()
		assert.GreaterOrEqual(t, next.UplinkDatagrams, prev.UplinkDatagrams)
		assert.GreaterOrEqual(t, next.DownlinkDatagrams, prev.DownlinkDatagrams)
		prev = next
	}
}

func TestTrafficAccountingRegisterExportsCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	a := NewTrafficAccounting()
	require.NoError(t, a.Register(registry))
	require.NoError(t, a.Register(registry))

	a.RecordUplink()
	a.RecordDownlink(keyspace.Sender{SiteID: "beta", ApplicationID: "gps"})
	a.RecordDownlinkError()
	a.RecordInboundDropped()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.datagramsTotal.WithLabelValues(DirectionUplink)))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.senderTotal.WithLabelValues("beta", "gps")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.errorsTotal.WithLabelValues(DirectionDownlink)))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.droppedTotal))

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "omsn_datagrams_total")
	assert.Contains(t, names, "omsn_sender_datagrams_total")
	assert.Contains(t, names, "omsn_forward_errors_total")
	assert.Contains(t, names, "omsn_inbound_dropped_total")
}

func TestTrafficAccountingRegisterToleratesSecondInstance(t *testing.T) {
	registry := prometheus.NewRegistry()
	require.NoError(t, NewTrafficAccounting().Register(registry))
	assert.NoError(t, NewTrafficAccounting().Register(registry))
}
