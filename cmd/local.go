package cmd

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashgrovelabs/go-chat-service/chatservice/config"
	"github.com/ashgrovelabs/go-chat-service/internal/auth"
	"github.com/ashgrovelabs/go-chat-service/internal/platform/persistence"
	"github.com/ashgrovelabs/go-chat-service/pkg/chat"
)

// localTokenSecret signs dev tokens when run_mode=local and no secret is
// provided. Never used outside local mode.
const localTokenSecret = "local-dev-secret-do-not-use-in-prod"

// localDevUsers get a pre-minted session token logged at startup so a
// developer can connect two clients immediately.
var localDevUsers = []chat.UserID{"alice", "bob"}

// NewLocalDependencies creates in-memory dependencies for local
// development: a memory message store and a shared dev token secret. It
// mints a session token per dev user and logs it, so local mode needs no
// account directory.
func NewLocalDependencies(cfg *config.AppConfig, logger zerolog.Logger) (chat.MessageStore, func(), error) {
	logger.Warn().Msg("Running in 'local' mode. All external dependencies will be faked.")

	if len(cfg.TokenSecret) == 0 {
		cfg.TokenSecret = []byte(localTokenSecret)
	}

	signer, err := auth.NewSigner(cfg.TokenSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create local token signer: %w", err)
	}
	for _, user := range localDevUsers {
		token, err := signer.Sign(user, 24*time.Hour)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to mint local session token: %w", err)
		}
		logger.Info().Str("user", user.String()).Str("token", token).Msg("Minted local session token")
	}

	return persistence.NewMemoryStore(), func() {}, nil
}
