// Package metrics exposes Prometheus counters for the settlement core and
// a small side server for /metrics and /healthz, kept off the public port.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BetsPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parimarket_bets_placed_total",
		Help: "Bets admitted and debited.",
	})

	BetsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parimarket_bets_rejected_total",
		Help: "Bets rejected by admission control.",
	}, []string{"reason"})

	QuestionsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parimarket_questions_settled_total",
		Help: "Questions settled (first successful run only).",
	})

	PointsCredited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parimarket_points_credited_total",
		Help: "Points credited to users by settlement.",
	})
)

type HealthFunc func(ctx context.Context) error

// StartServer runs the metrics/health server in a goroutine and returns it
// so the caller can register a graceful shutdown.
func StartServer(port uint16, healthFn HealthFunc) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		if err := healthFn(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "unhealthy: %v", err)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		_ = srv.ListenAndServe()
	}()

	return srv
}
