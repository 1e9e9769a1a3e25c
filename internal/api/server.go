package api

import (
	"Go2NetAccounting/internal/query"
	"Go2NetAccounting/internal/status"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Router         string    `json:"router"`
	Subnets        string    `json:"subnets"`
	State          string    `json:"state"`
	Healthy        bool      `json:"healthy"`
	Iterations     uint64    `json:"iterations"`
	WrittenRecords uint64    `json:"written_records"`
	FailedCycles   uint64    `json:"failed_cycles"`
	LastSuccess    time.Time `json:"last_success"`
	LastError      string    `json:"last_error,omitempty"`
}

// Server serves the status API, the Prometheus endpoint and, when a querier is
// configured, the traffic queries.
type Server struct {
	source   status.Source
	health   *Health
	querier  query.Querier
	gatherer prometheus.Gatherer
	router   string
	subnets  string

	httpServer *http.Server
	grpcServer *grpc.Server
}

// NewServer creates a Server. querier may be nil.
func NewServer(source status.Source, health *Health, querier query.Querier, gatherer prometheus.Gatherer, router, subnets string) *Server {
	return &Server{
		source:   source,
		health:   health,
		querier:  querier,
		gatherer: gatherer,
		router:   router,
		subnets:  subnets,
	}
}

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/status", s.statusHandler).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	if s.querier != nil {
		r.HandleFunc("/api/v1/traffic/top", s.topTalkersHandler).Methods("GET")
		r.HandleFunc("/api/v1/traffic/{address}", s.addressHistoryHandler).Methods("GET")
	}
	return r
}

// Start launches the HTTP server and, when grpcAddr is set, the gRPC health server.
func (s *Server) Start(httpAddr, grpcAddr string) error {
	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
		}
		s.grpcServer = grpc.NewServer()
		s.health.Register(s.grpcServer)
		go func() {
			log.Printf("gRPC health server starting on %s", grpcAddr)
			if err := s.grpcServer.Serve(lis); err != nil {
				log.Errorf("gRPC server stopped: %v", err)
			}
		}()
	}

	if httpAddr != "" {
		s.httpServer = &http.Server{
			Addr:              httpAddr,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Printf("API server starting on %s", httpAddr)
			if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("Could not listen on %s: %v", httpAddr, err)
			}
		}()
	}
	return nil
}

// Shutdown stops both servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	report := s.source.Report()
	writeJSON(w, http.StatusOK, StatusResponse{
		Router:         s.router,
		Subnets:        s.subnets,
		State:          report.State.String(),
		Healthy:        s.health.Healthy(),
		Iterations:     report.Iterations,
		WrittenRecords: report.WrittenRecords,
		FailedCycles:   report.FailedCycles,
		LastSuccess:    report.LastSuccess,
		LastError:      report.LastError,
	})
}

func (s *Server) topTalkersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			http.Error(w, fmt.Sprintf("invalid limit %q", v), http.StatusBadRequest)
			return
		}
	}

	resp, err := s.querier.TopTalkers(r.Context(), query.TopTalkersRequest{
		Router: s.router,
		From:   from,
		To:     to,
		Type:   q.Get("type"),
		Limit:  limit,
	})
	if err != nil {
		queryError(w, "failed to query top talkers", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) addressHistoryHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := s.querier.AddressHistory(r.Context(), query.HistoryRequest{
		Router:  s.router,
		Address: mux.Vars(r)["address"],
		From:    from,
		To:      to,
	})
	if err != nil {
		queryError(w, "failed to query address history", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	var f, t time.Time
	var err error
	if from != "" {
		if f, err = time.Parse(time.RFC3339, from); err != nil {
			return f, t, fmt.Errorf("invalid 'from' %q: expected RFC3339", from)
		}
	}
	if to != "" {
		if t, err = time.Parse(time.RFC3339, to); err != nil {
			return f, t, fmt.Errorf("invalid 'to' %q: expected RFC3339", to)
		}
	}
	return f, t, nil
}

func queryError(w http.ResponseWriter, msg string, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, query.ErrInvalidRequest) {
		code = http.StatusBadRequest
	}
	http.Error(w, fmt.Sprintf("%s: %v", msg, err), code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}
