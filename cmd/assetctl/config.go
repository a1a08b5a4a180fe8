package main

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"

	"github.com/jmgilman/go/assets"
	asseterrors "github.com/jmgilman/go/assets/errors"
	"github.com/jmgilman/go/assets/internal/logging"
	"github.com/jmgilman/go/assets/policy"
)

// Journal kinds.
const (
	journalFile   = "file"
	journalSQLite = "sqlite"
)

// config is read from the environment and then overridden by flags.
type config struct {
	Environment string `env:"ASSETS_ENV" envDefault:"production"`
	CacheDir    string `env:"ASSETS_CACHE_DIR"`
	PolicyFile  string `env:"ASSETS_POLICY_FILE"`
	LogLevel    string `env:"ASSETS_LOG_LEVEL" envDefault:"warn"`
	LogJSON     bool   `env:"ASSETS_LOG_JSON"`
	Journal     string `env:"ASSETS_JOURNAL" envDefault:"file"`
	SQLitePath  string `env:"ASSETS_SQLITE_PATH"`
	PrimaryURL  string `env:"ASSETS_PRIMARY_URL"`
	FallbackURL string `env:"ASSETS_FALLBACK_URL"`
}

func loadConfig() (*config, error) {
	cfg := &config{}
	if err := env.Parse(cfg); err != nil {
		return nil, asseterrors.Wrap(err, asseterrors.CodeInvalidConfig, "failed to parse environment")
	}
	return cfg, nil
}

func (c *config) logger(level string) (*logging.Logger, error) {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, asseterrors.Wrap(err, asseterrors.CodeInvalidConfig, "invalid log level")
	}
	return logging.New(logging.Config{Level: lvl, JSON: c.LogJSON}), nil
}

// clientOptions turns the configuration into client options.
func (c *config) clientOptions() ([]assets.ClientOption, error) {
	logger, err := c.logger(c.LogLevel)
	if err != nil {
		return nil, err
	}

	environment, err := assets.ParseEnvironment(c.Environment)
	if err != nil {
		return nil, asseterrors.Wrap(err, asseterrors.CodeInvalidConfig, "invalid environment")
	}

	fsys := billy.NewLocal()
	cacheDir := c.CacheDir
	if cacheDir == "" {
		cacheDir = assets.DefaultCachePath()
	}
	cacheDir, err = filepath.Abs(cacheDir)
	if err != nil {
		return nil, asseterrors.Wrap(err, asseterrors.CodeInvalidConfig, "invalid cache directory")
	}

	opts := []assets.ClientOption{
		assets.WithEnvironment(environment),
		assets.WithLogger(logger.Slog()),
		assets.WithFS(fsys),
		assets.WithCachePath(cacheDir),
	}

	p, err := c.loadPolicy(fsys)
	if err != nil {
		return nil, err
	}
	opts = append(opts, assets.WithPolicy(p))

	switch strings.ToLower(strings.TrimSpace(c.Journal)) {
	case "", journalFile:
	case journalSQLite:
		path := c.SQLitePath
		if path == "" {
			path = filepath.Join(cacheDir, "index.db")
		}
		if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, asseterrors.Wrap(err, asseterrors.CodeStorage, "failed to create journal directory")
		}
		opts = append(opts, assets.WithSQLiteJournal(path))
	default:
		return nil, asseterrors.Newf(asseterrors.CodeInvalidConfig, "unknown journal %q, want %s or %s",
			c.Journal, journalFile, journalSQLite)
	}

	if c.PrimaryURL != "" || c.FallbackURL != "" {
		set, err := assets.DefaultEndpoints(environment)
		if err != nil {
			return nil, err
		}
		if c.PrimaryURL != "" {
			set.Primary.BaseURL = c.PrimaryURL
		}
		if c.FallbackURL != "" {
			set.Fallback.BaseURL = c.FallbackURL
		}
		opts = append(opts, assets.WithEndpoints(set))
	}

	return opts, nil
}

// loadPolicy reads the policy file, or returns the default policy when
// none is configured.
func (c *config) loadPolicy(fsys core.FS) (*policy.Policy, error) {
	if c.PolicyFile == "" {
		return policy.Default(), nil
	}
	path, err := filepath.Abs(c.PolicyFile)
	if err != nil {
		return nil, asseterrors.Wrap(err, asseterrors.CodeInvalidConfig, "invalid policy path")
	}
	return policy.Load(fsys, path)
}

func (c *config) open(ctx context.Context) (*assets.Client, error) {
	opts, err := c.clientOptions()
	if err != nil {
		return nil, err
	}
	return assets.New(ctx, opts...)
}
