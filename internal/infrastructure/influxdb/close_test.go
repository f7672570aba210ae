package influxdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/nerrad567/ndb/internal/infrastructure/config"
)

// countingClient records how often the wrapped client is closed.
type countingClient struct {
	influxdb2.Client
	closes int
}

func (c *countingClient) Close() {
	c.closes++
	c.Client.Close()
}

// connectCounting connects to a test server that answers every ping and
// wraps the client so Close calls are counted.
func connectCounting(t *testing.T) (*Client, *countingClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	c, err := Connect(context.Background(), config.InfluxDBConfig{
		Enabled: true,
		URL:     srv.URL,
		Token:   "t",
		Org:     "lab",
		Bucket:  "ndb",
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	counting := &countingClient{Client: c.client}
	c.client = counting
	return c, counting, srv
}

func TestClose_ReleasesDisconnectedClient(t *testing.T) {
	c, counting, srv := connectCounting(t)

	srv.Close()
	if err := c.HealthCheck(context.Background()); err == nil {
		t.Fatal("HealthCheck() against stopped server = nil, want error")
	}
	if c.IsConnected() {
		t.Fatal("IsConnected() = true after failed HealthCheck")
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if counting.closes != 1 {
		t.Errorf("underlying Close called %d times, want 1", counting.closes)
	}
}

func TestClose_Idempotent(t *testing.T) {
	c, counting, _ := connectCounting(t)

	for range 3 {
		if err := c.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}
	if counting.closes != 1 {
		t.Errorf("underlying Close called %d times, want 1", counting.closes)
	}
}
