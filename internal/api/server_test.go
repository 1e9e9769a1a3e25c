package api

import (
	"Go2NetAccounting/internal/model"
	"Go2NetAccounting/internal/query"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
)

type fixedSource struct {
	report model.CycleReport
}

func (s *fixedSource) Report() model.CycleReport { return s.report }

type fakeQuerier struct {
	topReq     query.TopTalkersRequest
	historyReq query.HistoryRequest
	err        error
}

func (q *fakeQuerier) TopTalkers(_ context.Context, req query.TopTalkersRequest) ([]query.TalkerSummary, error) {
	q.topReq = req
	if q.err != nil {
		return nil, q.err
	}
	return []query.TalkerSummary{{Address: "8.8.8.8", Type: "WAN", BytesReceived: 1000, Cycles: 3}}, nil
}

func (q *fakeQuerier) AddressHistory(_ context.Context, req query.HistoryRequest) ([]query.HistoryPoint, error) {
	q.historyReq = req
	return []query.HistoryPoint{{Type: "LAN", BytesSent: 10}}, nil
}

func newTestServer(querier query.Querier) (*Server, *fixedSource) {
	src := &fixedSource{report: model.CycleReport{
		Iterations:     7,
		WrittenRecords: 21,
		FailedCycles:   1,
		State:          model.StateWriting,
	}}
	h := NewHealth(3)
	h.ObserveCycle(model.CycleResult{})
	return NewServer(src, h, querier, prometheus.NewRegistry(), "192.168.88.1", "10.0.1.0/24"), src
}

func TestStatusHandler(t *testing.T) {
	s, _ := newTestServer(nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Iterations != 7 || resp.WrittenRecords != 21 || resp.FailedCycles != 1 {
		t.Errorf("Unexpected counters: %+v", resp)
	}
	if resp.State != "writing" || !resp.Healthy || resp.Router != "192.168.88.1" {
		t.Errorf("Unexpected status: %+v", resp)
	}
}

func TestTrafficRoutes_DisabledWithoutQuerier(t *testing.T) {
	s, _ := newTestServer(nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/traffic/top", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestTopTalkersHandler(t *testing.T) {
	q := &fakeQuerier{}
	s, _ := newTestServer(q)

	// 1. Valid request
	rec := httptest.NewRecorder()
	url := "/api/v1/traffic/top?from=2024-05-01T00:00:00Z&to=2024-05-02T00:00:00Z&type=WAN&limit=5"
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", url, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if q.topReq.Limit != 5 || q.topReq.Type != "WAN" || q.topReq.Router != "192.168.88.1" {
		t.Errorf("Unexpected request: %+v", q.topReq)
	}
	if !q.topReq.From.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected from: %s", q.topReq.From)
	}
	var resp []query.TalkerSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || len(resp) != 1 || resp[0].Address != "8.8.8.8" {
		t.Errorf("Unexpected response %s (%v)", rec.Body.String(), err)
	}

	// 2. Malformed parameters
	for _, bad := range []string{"?from=yesterday", "?limit=ten"} {
		rec = httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/traffic/top"+bad, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", bad, rec.Code)
		}
	}

	// 3. Validation errors from the querier map to 400, others to 500
	q.err = fmt.Errorf("%w: type must be LAN or WAN", query.ErrInvalidRequest)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/traffic/top?type=DMZ", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	q.err = fmt.Errorf("connection reset")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/traffic/top", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
}

func TestAddressHistoryHandler(t *testing.T) {
	q := &fakeQuerier{}
	s, _ := newTestServer(q)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/traffic/10.0.1.1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if q.historyReq.Address != "10.0.1.1" {
		t.Errorf("Expected address from path, got %q", q.historyReq.Address)
	}
	if !strings.Contains(rec.Body.String(), `"bytes_sent":10`) {
		t.Errorf("Unexpected body: %s", rec.Body.String())
	}
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := NewServer(&fixedSource{}, NewHealth(1), nil, reg, "r", "")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "test_counter_total 1") {
		t.Errorf("Unexpected metrics response %d: %s", rec.Code, rec.Body.String())
	}
}
