package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"heatline/internal/blob"
	"heatline/internal/config"
	"heatline/internal/db"
	"heatline/internal/engine"
	"heatline/internal/migrate"
	"heatline/internal/repo"
)

// Options select the workspace and the overrides coming from flags or env.
type Options struct {
	Workspace  string
	ConfigPath string
	Driver     string
	DSN        string
}

// LoadConfig reads the config file given explicitly, else heatline.yml in
// the workspace, else the built-in defaults.
func LoadConfig(workspace, path string) (*config.Config, error) {
	if path != "" {
		return config.FromFile(path)
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

// Open loads config, opens and migrates the database and wires the engine
// with its blob store. The caller owns the returned connection.
func Open(ctx context.Context, opts Options) (engine.Engine, *sql.DB, error) {
	cfg, err := LoadConfig(opts.Workspace, opts.ConfigPath)
	if err != nil {
		return engine.Engine{}, nil, err
	}
	if opts.Driver != "" {
		cfg.Storage.Driver = opts.Driver
	}
	if opts.DSN != "" {
		cfg.Storage.DSN = opts.DSN
	}
	if err := cfg.Validate(); err != nil {
		return engine.Engine{}, nil, err
	}
	conn, dialect, err := db.Open(db.Config{Workspace: opts.Workspace, Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
	if err != nil {
		return engine.Engine{}, nil, err
	}
	if err := migrate.Migrate(conn, dialect); err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	eng, err := engine.New(conn, dialect, cfg)
	if err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	store, err := blob.New(ctx, cfg.Blobs, opts.Workspace)
	if err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	eng.Blobs = store
	return eng, conn, nil
}

// ResolveProject picks the active project: the override when given, else the
// only project in the store.
func ResolveProject(ctx context.Context, projectOverride string, r repo.Repo) (string, error) {
	if projectOverride != "" {
		if _, err := r.GetProject(ctx, projectOverride); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", fmt.Errorf("project %s: %w", projectOverride, err)
			}
			return "", err
		}
		return projectOverride, nil
	}
	p, err := r.SingleProject(ctx)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", fmt.Errorf("no project yet; create one with hl project create")
		}
		return "", err
	}
	return p.ID, nil
}
