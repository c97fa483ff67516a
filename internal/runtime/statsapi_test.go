package runtime

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/omsn/internal/runtime/jsoncodec"
	"github.com/drblury/omsn/internal/runtime/keyspace"
)

func TestStatsHandlerServesSnapshot(t *testing.T) {
	accounting := NewTrafficAccounting()
	accounting.RecordUplink()
	accounting.RecordDownlink(keyspace.Sender{SiteID: "beta", ApplicationID: "gps"})
	h := &statsHandler{accounting: accounting, logger: newTestLogger()}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, StatsPath, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	var snap TrafficSnapshot
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &snap))
	assert.EqualValues(t, 1, snap.UplinkDatagrams)
	assert.EqualValues(t, 1, snap.DownlinkDatagrams)
	assert.Equal(t, []SenderCount{{SiteID: "beta", ApplicationID: "gps", Datagrams: 1}}, snap.Senders)
	assert.Contains(t, rec.Body.String(), `"site_id":"beta"`)
}

func TestStatsHandlerCORS(t *testing.T) {
	tests := []struct {
		name     string
		allowed  []string
		origin   string
		expected string
	}{
		{name: "wildcard", allowed: []string{"*"}, origin: "https://ops.example", expected: "*"},
		{name: "exact match echoes origin", allowed: []string{"https://OPS.example"}, origin: "https://ops.example", expected: "https://ops.example"},
		{name: "unlisted origin", allowed: []string{"https://ops.example"}, origin: "https://evil.example", expected: ""},
		{name: "disabled", allowed: nil, origin: "https://ops.example", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &statsHandler{accounting: NewTrafficAccounting(), allowedOrigins: tt.allowed, logger: newTestLogger()}
			req := httptest.NewRequest(http.MethodGet, StatsPath, nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.expected, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestStatsHandlerPreflightAndMethods(t *testing.T) {
	h := &statsHandler{accounting: NewTrafficAccounting(), allowedOrigins: []string{"*"}, logger: newTestLogger()}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, StatsPath, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, StatsPath, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
