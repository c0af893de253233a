package config

import (
	"context"
	"errors"

	"github.com/pokerplan/pokerd/pkg/poker"
)

// ErrInvalidConfig is returned when a persisted document cannot serve
// as a voting configuration.
var ErrInvalidConfig = errors.New("config: invalid voting config")

// Store loads and saves the voting configuration. Load on a fresh
// medium returns the stock default and persists it, so a first boot
// leaves a readable document behind.
type Store interface {
	Load(ctx context.Context) (poker.VotingConfig, error)
	Save(ctx context.Context, cfg poker.VotingConfig) error
}

func validate(cfg poker.VotingConfig) error {
	if len(cfg.Cards) == 0 {
		return ErrInvalidConfig
	}
	return nil
}
