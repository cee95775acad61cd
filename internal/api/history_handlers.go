// Package api defines the HTTP handlers the presentation layers consume,
// currently conversation history retrieval.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ashgrovelabs/go-chat-service/internal/auth"
	"github.com/ashgrovelabs/go-chat-service/pkg/chat"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// API holds the dependencies for the stateless HTTP handlers.
type API struct {
	store  chat.MessageStore
	logger zerolog.Logger
}

// NewAPI creates a new, stateless API handler.
func NewAPI(store chat.MessageStore, logger zerolog.Logger) *API {
	return &API{
		store:  store,
		logger: logger.With().Str("component", "API").Logger(),
	}
}

// historyResponse is the JSON body returned by HistoryHandler.
type historyResponse struct {
	Messages []*chat.Message `json:"messages"`
}

// HistoryHandler returns the conversation between the authenticated user
// and the peer named in the query, oldest first.
func (a *API) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		a.logger.Warn().Msg("HistoryHandler: no user in context")
		writeJSONError(w, http.StatusUnauthorized, "missing authentication token")
		return
	}

	peer := chat.UserID(r.URL.Query().Get("peer"))
	if peer == "" {
		writeJSONError(w, http.StatusBadRequest, "missing 'peer' parameter")
		return
	}

	limit := defaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		val, err := strconv.Atoi(limitStr)
		if err != nil || val <= 0 {
			a.logger.Warn().Str("limit", limitStr).Msg("Invalid 'limit' parameter")
			writeJSONError(w, http.StatusBadRequest, "invalid 'limit' parameter, must be a positive integer")
			return
		}
		limit = min(val, maxHistoryLimit)
	}

	log := a.logger.With().Str("user", userID.String()).Str("peer", peer.String()).Logger()

	messages, err := a.store.FetchHistory(r.Context(), userID, peer, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch message history")
		writeJSONError(w, http.StatusInternalServerError, "failed to retrieve messages")
		return
	}

	log.Debug().Int("count", len(messages)).Msg("Retrieved message history")
	writeJSON(w, http.StatusOK, historyResponse{Messages: messages})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
