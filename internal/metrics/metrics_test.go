package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/restreamer/internal/models"
	"github.com/jmylchreest/restreamer/internal/relay"
)

func TestMetrics_Publish(t *testing.T) {
	m := New()

	m.Publish(relay.Event{Kind: relay.EventLive, StreamID: "s1"})
	m.Publish(relay.Event{Kind: relay.EventPlaylistProgress, StreamID: "s1"})
	m.Publish(relay.Event{
		Kind:     relay.EventEnded,
		StreamID: "s1",
		Status:   relay.StreamStatus{Uptime: 2 * time.Minute},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("live")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("ended")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.sessionSeconds))
}

func TestMetrics_RecordDispatch(t *testing.T) {
	m := New()

	m.RecordDispatch(models.ScheduleDaily, nil)
	m.RecordDispatch(models.ScheduleDaily, nil)
	m.RecordDispatch(models.ScheduleCron, errors.New("no media"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatchesTotal.WithLabelValues("daily", "started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatchesTotal.WithLabelValues("cron", "failed")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	called := false
	h := m.Handler(func() {
		called = true
		m.SetActiveStreams(3)
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "restreamer_active_streams 3")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestRequestMiddleware(t *testing.T) {
	m := New()
	mw := RequestMiddleware(m)

	ok := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	missing := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	missing.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	missing.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "404")))
}
