package accounting

import (
	"Go2NetAccounting/internal/config"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func newFeedServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounting/ip.cgi" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func clientFor(srv *httptest.Server) *Client {
	return NewClient(config.RouterConfig{FeedURL: srv.URL + "/accounting/ip.cgi"})
}

func TestClient_DefaultURL(t *testing.T) {
	c := NewClient(config.RouterConfig{Address: "192.168.1.1"})
	if c.URL() != "http://192.168.1.1/accounting/ip.cgi" {
		t.Errorf("Unexpected URL: %s", c.URL())
	}
}

func TestClient_LoadRecords(t *testing.T) {
	srv := newFeedServer(t, http.StatusOK, "192.168.1.1 192.168.0.2 42 6 * *\r\nUnexpected content\r\n192.168.1.2 192.168.0.3 42 6 * *")

	records, err := clientFor(srv).LoadRecords(context.Background())
	if err != nil {
		t.Fatalf("LoadRecords failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].SourceAddress != "192.168.1.1" || records[1].SourceAddress != "192.168.1.2" {
		t.Errorf("Records out of order: %+v", records)
	}
}

func TestClient_EmptyBody(t *testing.T) {
	srv := newFeedServer(t, http.StatusOK, "")

	records, err := clientFor(srv).LoadRecords(context.Background())
	if err != nil {
		t.Fatalf("LoadRecords failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records, got %d", len(records))
	}
}

func TestClient_StatusCode500(t *testing.T) {
	srv := newFeedServer(t, http.StatusInternalServerError, "boom")

	_, err := clientFor(srv).Fetch(context.Background())
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", fetchErr.StatusCode)
	}
	if err.Error() != "error listing accounting records. Received http status code 500" {
		t.Errorf("Unexpected message: %s", err)
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := newFeedServer(t, http.StatusOK, "")
	c := clientFor(srv)
	srv.Close()

	_, err := c.Fetch(context.Background())
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected FetchError, got %v", err)
	}
	if fetchErr.Err == nil {
		t.Error("Expected the transport error to be recorded")
	}
}

func TestClient_CancelledContext(t *testing.T) {
	srv := newFeedServer(t, http.StatusOK, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := clientFor(srv).Fetch(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

// TestClient_LoadFromRouter talks to a real router when ROUTER_IP is set.
func TestClient_LoadFromRouter(t *testing.T) {
	routerIP := os.Getenv("ROUTER_IP")
	if routerIP == "" {
		t.Skip("ROUTER_IP not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	records, err := NewClient(config.RouterConfig{Address: routerIP}).LoadRecords(ctx)
	if err != nil {
		t.Fatalf("LoadRecords failed: %v", err)
	}
	for _, r := range records {
		t.Logf("%+v", r)
	}
}

func TestWarnMalformed(t *testing.T) {
	logger, hook := test.NewNullLogger()

	records := ParseDocument("10.0.1.1 10.0.1.2 168 2\nbroken line\n10.0.1.2 10.0.1.1 x 1", WarnMalformed(logger))
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 warnings, got %d", len(entries))
	}
	for i, wantLine := range []int{2, 3} {
		if entries[i].Level != log.WarnLevel {
			t.Errorf("Entry %d: expected warning level, got %s", i, entries[i].Level)
		}
		if entries[i].Data["line"] != wantLine {
			t.Errorf("Entry %d: expected line %d, got %v", i, wantLine, entries[i].Data["line"])
		}
	}
	if entries[1].Message != "line with invalid number for field 'byte': '10.0.1.2 10.0.1.1 x 1'" {
		t.Errorf("Unexpected message: %s", entries[1].Message)
	}
}
