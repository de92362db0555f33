package metrics

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Retry kinds reported by ObserveRetry.
const (
	RetryMaxFees = "max_fees"
	RetryTaker   = "taker"
)

var (
	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_desk_api_requests_total",
			Help: "Exchange API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_desk_orders_total",
			Help: "Order submissions by side and execution outcome",
		},
		[]string{"side", "outcome"},
	)

	retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_desk_retries_total",
			Help: "Order re-preparations by retry kind (" + RetryMaxFees + ", " + RetryTaker + ")",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(apiRequests, orders, retries)
}

func ObserveRequest(endpoint string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	apiRequests.WithLabelValues(endpoint, outcome).Inc()
}

func ObserveOrder(side, outcome string) {
	orders.WithLabelValues(side, outcome).Inc()
}

func ObserveRetry(kind string) {
	retries.WithLabelValues(kind).Inc()
}

func NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	return r
}

type Server struct {
	srv *http.Server
	ln  net.Listener
}

func Listen(addr string) (*Server, error) {
	if addr == "" {
		return nil, errors.New("metrics listen address required")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		srv: &http.Server{
			Handler:           NewRouter(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln: ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("level=ERROR event=metrics_server_stopped err=%q", err.Error())
		}
	}()
	log.Printf("level=INFO event=metrics_server_started addr=%q", ln.Addr().String())
	return s, nil
}

func (s *Server) Addr() string {
	if s == nil || s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
