package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Timer metrics
	TimersStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stackvault_timers_started_total",
			Help: "Total number of usage timers started",
		},
	)

	TimersStopped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stackvault_timers_stopped_total",
			Help: "Total number of usage timers stopped",
		},
	)

	TimerSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stackvault_timer_session_seconds",
			Help:    "Duration of stopped timer sessions in seconds",
			Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400},
		},
	)

	ActiveTimers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stackvault_active_timers",
			Help: "Number of currently running usage timers",
		},
	)

	TimerStateErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stackvault_timer_state_errors_total",
			Help: "Failures reading or writing persisted timer state",
		},
		[]string{"op"},
	)

	// Ledger metrics
	UsageEntriesAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stackvault_usage_entries_total",
			Help: "Usage entries appended to the ledger",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(
		TimersStarted,
		TimersStopped,
		TimerSeconds,
		ActiveTimers,
		TimerStateErrors,
		UsageEntriesAppended,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Start binds the listener and serves in the background. Bind errors are
// returned; serve errors after that are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting metrics server")
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
