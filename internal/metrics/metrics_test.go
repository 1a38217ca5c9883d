package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerServesExposition(t *testing.T) {
	ActiveAlerts.WithLabelValues("critical").Set(3)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fty_alert_stats_active_alerts")
}

func TestSetResyncState(t *testing.T) {
	SetResyncState(2)

	var m dto.Metric
	require.NoError(t, ResyncState.Write(&m))
	assert.Equal(t, float64(2), m.GetGauge().GetValue())
}
