package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/logger"
)

// Serve exposes /metrics on ln until ctx is cancelled, then gives in-flight
// scrapes up to grace to finish. It returns nil after a clean shutdown.
func Serve(ctx context.Context, ln net.Listener, grace time.Duration) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	l := logger.WithComponent("metrics")
	l.Info().Str("addr", ln.Addr().String()).Msg("metrics server listening")

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()
	select {
	case err := <-served:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("stopping metrics server: %w", err)
	}
	if err := <-served; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
