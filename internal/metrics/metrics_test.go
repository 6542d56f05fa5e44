package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors(t *testing.T) {
	m := New()
	m.DocumentProcessed("txt", "completed", 200*time.Millisecond)
	m.DocumentProcessed("txt", "completed", time.Second)
	m.DocumentProcessed("pdf", "failed", time.Second)
	m.ChatTurn("answered")
	done := m.HTTPStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpInFlight))
	done("GET", "/api/v1/documents/", 200)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.documentsProcessed.WithLabelValues("txt", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.documentsProcessed.WithLabelValues("pdf", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chatTurns.WithLabelValues("answered")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.httpInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/documents/", "200")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "docintell_documents_processed_total")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.DocumentProcessed("txt", "completed", time.Second)
	m.EmbeddingRequest(time.Second)
	m.ChatTurn("failed")
	m.Generation(time.Second)
	m.HTTPStarted()("GET", "/", 200)
	assert.Nil(t, m.Registry())
}
