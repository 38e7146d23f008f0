package phonetic

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"chewbridge/internal/engine"
	"chewbridge/internal/store"
)

// UserPhraseFile is the user phrase database name inside the user data
// directory.
const UserPhraseFile = "chewing.sqlite3"

// UserPhrasePath returns where learned phrases are kept: override when set,
// otherwise UserPhraseFile inside the user data directory. It is empty when
// learning is disabled.
func UserPhrasePath(override string, paths engine.Paths) string {
	if override != "" || paths.UserDataDir == "" {
		return override
	}
	return filepath.Join(paths.UserDataDir, UserPhraseFile)
}

// FactoryConfig configures NewFactory.
type FactoryConfig struct {
	Logger *slog.Logger

	// UserPhrasePath overrides the database location derived from the user
	// data directory.
	UserPhrasePath string

	// BusyTimeout is passed to the user phrase store.
	BusyTimeout time.Duration
}

// NewFactory returns an engine factory. The dictionary is read from the
// data directory; learned phrases are kept in the user data directory when
// one is given.
func NewFactory(cfg FactoryConfig) engine.Factory {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, paths engine.Paths) (engine.Engine, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dictPath := filepath.Join(paths.DataDir, DictionaryFile)
		dict, err := LoadDictionary(dictPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", engine.ErrCreate, err)
		}

		var st *store.Store
		userPath := UserPhrasePath(cfg.UserPhrasePath, paths)
		if userPath != "" {
			st, err = store.OpenWithOptions(userPath, store.Options{BusyTimeout: cfg.BusyTimeout})
			if err != nil {
				return nil, fmt.Errorf("%w: user phrases: %w", engine.ErrCreate, err)
			}
		}

		if err := ctx.Err(); err != nil {
			if st != nil {
				st.Close()
			}
			return nil, err
		}

		e, err := New(dict, st, logger)
		if err != nil {
			if st != nil {
				st.Close()
			}
			return nil, fmt.Errorf("%w: %w", engine.ErrCreate, err)
		}

		logger.Debug("engine created",
			"dictionary", dictPath,
			"phrases", dict.Len(),
			"longest_phrase", dict.MaxLen(),
			"user_phrases", userPath,
		)
		return e, nil
	}
}
