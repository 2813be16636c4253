package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetricsHandler_EmptyHub(t *testing.T) {
	h := newTestHub()

	rec := httptest.NewRecorder()
	MetricsHandler(h)(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "chat_connections 0\n")
	require.Contains(t, body, "chat_rooms 0\n")
	require.Contains(t, body, "chat_events_relayed_total 0\n")
	require.NotContains(t, body, "chat_room_members", "no rooms, no samples")
}

func TestRoomMembers_SortedByRoom(t *testing.T) {
	mf := roomMembers(map[string]int{"zeta": 1, "alpha": 3})

	require.Len(t, mf.GetMetric(), 2)
	require.Equal(t, "alpha", mf.GetMetric()[0].GetLabel()[0].GetValue())
	require.Equal(t, float64(3), mf.GetMetric()[0].GetGauge().GetValue())
	require.Equal(t, "zeta", mf.GetMetric()[1].GetLabel()[0].GetValue())
}
