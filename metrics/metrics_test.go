package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDefault_Disabled(t *testing.T) {
	closer, err := InitDefault(Config{})

	require.NoError(t, err)
	assert.IsType(t, nopCloser{}, closer)
	assert.NoError(t, closer.Close())
}

func TestNew(t *testing.T) {
	config := Config{Addr: "127.0.0.1:9090", ReadTimeout: 15}

	m := New(config)

	require.NotNil(t, m)
	assert.Equal(t, config, m.config)
	assert.Equal(t, "127.0.0.1:9090", m.server.Addr)
	assert.Equal(t, 15*time.Second, m.server.ReadTimeout)
	assert.Nil(t, m.Addr())
}

func TestNewHttpServer(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "mailbatch_test_total", Help: "test counter"})
	registry.MustRegister(counter)
	counter.Inc()

	server := NewHttpServer(Config{}, registry)
	ts := httptest.NewServer(server.Handler)
	defer ts.Close()

	body := scrape(t, ts.URL+"/metrics")

	assert.Contains(t, body, "mailbatch_test_total 1")
}

func TestMetrics_StartServesOtelMeters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test in short mode")
	}

	m := New(Config{Addr: "127.0.0.1:0", ReadTimeout: 5})
	require.NoError(t, m.Start())
	defer m.Close()

	require.NotNil(t, m.Addr())

	counter, err := m.provider.Meter("test").Int64Counter("mailbatch.emails")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	body := scrape(t, "http://"+m.Addr().String()+"/metrics")

	assert.Contains(t, body, "mailbatch_emails_total")
}

func TestMetrics_StartBadAddr(t *testing.T) {
	m := New(Config{Addr: "256.0.0.1:bad"})

	err := m.Start()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}

func TestMetrics_CloseWithoutStart(t *testing.T) {
	m := New(Config{Addr: "127.0.0.1:9090"})

	assert.NoError(t, m.Close())
}

func scrape(t *testing.T, url string) string {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}
