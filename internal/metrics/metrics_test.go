package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordClientRequest(t *testing.T) {
	before := testutil.ToFloat64(clientRequests.WithLabelValues("NetworkFailure"))
	RecordClientRequest("NetworkFailure", 10*time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(clientRequests.WithLabelValues("NetworkFailure")))
}

func TestRecordServerDecode(t *testing.T) {
	before := testutil.ToFloat64(serverDecodes.WithLabelValues(OutcomeOK))
	RecordServerDecode(OutcomeOK)
	RecordServerDecode(OutcomeOK)
	require.Equal(t, before+2, testutil.ToFloat64(serverDecodes.WithLabelValues(OutcomeOK)))
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordGatewayRequest(http.StatusOK)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "maga_gateway_requests_total")
}
