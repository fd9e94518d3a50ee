package worker

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Serve runs the diagnostics HTTP server until ctx is cancelled.
type Serve struct {
	addr    string
	handler http.Handler
}

// NewServe creates a Serve worker.
func NewServe(addr string, handler http.Handler) *Serve {
	return &Serve{addr: addr, handler: handler}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (w *Serve) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         w.addr,
		Handler:      w.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("diagnostics server ready", "addr", w.addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
