package discovery

import (
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// deviceServer serves /cp/version.json from handler and counts requests.
func deviceServer(t *testing.T, handler http.HandlerFunc) (string, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/cp/version.json" {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv.Listener.Addr().String(), &hits
}

func testFetcher(retries int) *Fetcher {
	return NewFetcher(FetcherConfig{
		Timeout:       time.Second,
		Retries:       retries,
		RetryInterval: time.Millisecond,
		UserAgent:     "ndb/test",
	})
}

func TestFetch_VersionJSON(t *testing.T) {
	var gotUA, gotAuth string
	host, hits := deviceServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"UID":"cp-001","hostname":"cpy-a","board_name":"Feather"}`)) //nolint:errcheck
	})

	f := testFetcher(0)
	f.cfg.Password = "hunter2"

	res, err := f.Fetch(context.Background(), host)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if res.URL != "http://"+host+"/cp/version.json" {
		t.Errorf("URL = %q", res.URL)
	}
	if res.Info.UID != "cp-001" {
		t.Errorf("UID = %q, want cp-001", res.Info.UID)
	}
	if got := orNil(res.Info.IPAddress); got != "127.0.0.1" {
		t.Errorf("IPAddress = %q, want queried host 127.0.0.1", got)
	}
	if gotUA != "ndb/test" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	// base64(":hunter2")
	if gotAuth != "Basic Omh1bnRlcjI=" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if hits.Load() != 1 {
		t.Errorf("requests = %d, want 1", hits.Load())
	}
}

func TestFetch_NoPasswordNoAuth(t *testing.T) {
	host, _ := deviceServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"uid":"cp-001","ip":"10.9.9.9"}`)) //nolint:errcheck
	})

	res, err := testFetcher(0).Fetch(context.Background(), host)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := orNil(res.Info.IPAddress); got != "10.9.9.9" {
		t.Errorf("IPAddress = %q, want reported 10.9.9.9", got)
	}
}

func TestFetch_Gzip(t *testing.T) {
	host, _ := deviceServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		zw.Write([]byte(`{"uid":"gz-1"}`)) //nolint:errcheck
		zw.Close()                         //nolint:errcheck
	})

	res, err := testFetcher(0).Fetch(context.Background(), host)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Info.UID != "gz-1" {
		t.Errorf("UID = %q, want gz-1", res.Info.UID)
	}
}

func TestFetch_HTMLFallback(t *testing.T) {
	host, _ := deviceServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(sampleInfoPage)) //nolint:errcheck
	})

	res, err := testFetcher(0).Fetch(context.Background(), host)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Info.UID != "A1B2C3_d4-e5" {
		t.Errorf("UID = %q", res.Info.UID)
	}
}

func TestFetch_Retries(t *testing.T) {
	tests := []struct {
		name      string
		failFirst int32
		retries   int
		wantErr   error
		wantHits  int32
	}{
		{"succeeds on last attempt", 2, 2, nil, 3},
		{"exhausts attempts", 5, 1, ErrUnreachable, 2},
		{"no retries", 1, 0, ErrUnreachable, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			host, hits := deviceServer(t, func(w http.ResponseWriter, _ *http.Request) {
				if calls.Add(1) <= tt.failFirst {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				w.Write([]byte(`{"uid":"cp-001"}`)) //nolint:errcheck
			})

			_, err := testFetcher(tt.retries).Fetch(context.Background(), host)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fetch() error = %v, want %v", err, tt.wantErr)
			}
			if hits.Load() != tt.wantHits {
				t.Errorf("requests = %d, want %d", hits.Load(), tt.wantHits)
			}
		})
	}
}

func TestFetch_EmptyBodyRetried(t *testing.T) {
	host, hits := deviceServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := testFetcher(1).Fetch(context.Background(), host)
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("Fetch() error = %v, want ErrUnreachable", err)
	}
	if hits.Load() != 2 {
		t.Errorf("requests = %d, want 2", hits.Load())
	}
}

func TestFetch_ParseFailureNotRetried(t *testing.T) {
	host, hits := deviceServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not a device page")) //nolint:errcheck
	})

	res, err := testFetcher(3).Fetch(context.Background(), host)
	if !errors.Is(err, ErrParse) {
		t.Fatalf("Fetch() error = %v, want ErrParse", err)
	}
	if res == nil || res.Body != "not a device page" || res.Info != nil {
		t.Errorf("Fetch() result = %+v, want raw body without info", res)
	}
	if hits.Load() != 1 {
		t.Errorf("requests = %d, want 1", hits.Load())
	}
}

func TestFetch_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.Listener.Addr().String()
	srv.Close()

	_, err := testFetcher(0).Fetch(context.Background(), host)
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("Fetch() error = %v, want ErrUnreachable", err)
	}
}

func TestFetch_CanceledContext(t *testing.T) {
	host, _ := deviceServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"uid":"cp-001"}`)) //nolint:errcheck
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testFetcher(2).Fetch(ctx, host)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch() error = %v, want context.Canceled", err)
	}
}

func TestFetch_InvalidHost(t *testing.T) {
	_, err := testFetcher(0).Fetch(context.Background(), "http://")
	if !errors.Is(err, ErrInvalidHost) {
		t.Errorf("Fetch() error = %v, want ErrInvalidHost", err)
	}
}

func TestFetchRaw(t *testing.T) {
	host, _ := deviceServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("caf\xe9")) //nolint:errcheck
	})

	res, err := testFetcher(0).FetchRaw(context.Background(), host)
	if err != nil {
		t.Fatalf("FetchRaw() error = %v", err)
	}
	if !strings.HasPrefix(res.Body, "caf") || !strings.HasSuffix(res.Body, "\uFFFD") {
		t.Errorf("Body = %q, want invalid byte replaced", res.Body)
	}
}
