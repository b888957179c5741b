package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestObserversUpdateCollectors(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(scanAttemptsTotal.WithLabelValues("agency.example", "timeout"))
	ObserveScanAttempt("agency.example", "timeout", 3*time.Second)
	require.InDelta(t, before+1, testutil.ToFloat64(scanAttemptsTotal.WithLabelValues("agency.example", "timeout")), 1e-9)

	errBefore := testutil.ToFloat64(sheetsCallsTotal.WithLabelValues("append", "error"))
	ObserveSheetsCall("append", errors.New("quota"))
	require.InDelta(t, errBefore+1, testutil.ToFloat64(sheetsCallsTotal.WithLabelValues("append", "error")), 1e-9)

	rowsBefore := testutil.ToFloat64(reportRowsTotal.WithLabelValues("parsed"))
	AddReportRows("parsed", 12)
	AddReportRows("parsed", 0)
	require.InDelta(t, rowsBefore+12, testutil.ToFloat64(reportRowsTotal.WithLabelValues("parsed")), 1e-9)

	ObserveRateLimitDelay("write", 200*time.Millisecond)
	require.Positive(t, testutil.CollectAndCount(rateLimitDelaySeconds))
}

func TestHandlerServesMetrics(t *testing.T) {
	ObserveHTTPRequest(http.MethodGet, "/healthz", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}
