// Package chatservice assembles the HTTP API service that presentation
// layers talk to, wiring the history handlers behind the session token
// middleware.
package chatservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashgrovelabs/go-chat-service/internal/api"
	"github.com/ashgrovelabs/go-chat-service/internal/auth"
	"github.com/ashgrovelabs/go-chat-service/pkg/chat"
)

// Wrapper runs the HTTP API surface of the messaging core.
type Wrapper struct {
	server *http.Server
	logger zerolog.Logger
}

// New creates and wires up the API service.
func New(
	addr string,
	store chat.MessageStore,
	verifier chat.TokenVerifier,
	logger zerolog.Logger,
) (*Wrapper, error) {
	if store == nil || verifier == nil {
		return nil, fmt.Errorf("message store and token verifier cannot be nil")
	}

	apiHandler := api.NewAPI(store, logger)
	authed := auth.Middleware(verifier, logger)

	mux := http.NewServeMux()
	mux.Handle("GET /api/history", authed(http.HandlerFunc(apiHandler.HistoryHandler)))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &Wrapper{
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With().Str("component", "ApiService").Logger(),
	}, nil
}

// Handler exposes the API mux for handler-level tests.
func (w *Wrapper) Handler() http.Handler {
	return w.server.Handler
}

// Start runs the HTTP server. It blocks until the server stops.
func (w *Wrapper) Start(_ context.Context) error {
	w.logger.Info().Str("addr", w.server.Addr).Msg("API server starting...")
	if err := w.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info().Msg("Shutting down API service...")
	if err := w.server.Shutdown(ctx); err != nil {
		w.logger.Error().Err(err).Msg("API server shutdown failed.")
		return err
	}
	w.logger.Info().Msg("API service shut down.")
	return nil
}
