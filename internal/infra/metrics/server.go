package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timnirmal/realtimecam-sampling-service/internal/infra/labelfeed"
	"go.uber.org/zap"
)

// StartServer serves Prometheus metrics, a health check, and the label feed
// on one port. The caller shuts the returned server down.
func StartServer(ctx context.Context, port int, feed *labelfeed.Hub, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if feed != nil {
		mux.Handle("/v1/labels", feed.SnapshotHandler())
		mux.Handle("/v1/labels/stream", feed.StreamHandler())
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("metrics server starting", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	return srv
}
