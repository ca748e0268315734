package main

import (
	"context"
	"fmt"

	"github.com/bastiangx/pickserve/internal/logger"
	"github.com/bastiangx/pickserve/internal/redisource"
	"github.com/bastiangx/pickserve/internal/session"
	"github.com/bastiangx/pickserve/internal/store"
	"github.com/bastiangx/pickserve/internal/utils"
	"github.com/bastiangx/pickserve/internal/watch"
	"github.com/bastiangx/pickserve/pkg/catalog"
	"github.com/bastiangx/pickserve/pkg/config"
	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

// app is what every subcommand needs: config, catalogs and the backend
// answering lookups.
type app struct {
	cfg        *config.Config
	configPath string
	paths      []string
	resolver   *session.Resolver

	store *store.Store
	redis *redisource.Client
}

// setup reads the persistent flags, loads config and catalogs and connects
// the configured backend.
func setup(cmd *cobra.Command) (*app, error) {
	flags := cmd.Flags()
	debug, _ := flags.GetBool("debug")
	logFormat, _ := flags.GetString("log-format")
	logger.Setup(debug, logFormat)

	configFlag, _ := flags.GetString("config")
	cfg, configPath, err := config.LoadConfigWithPriority(configFlag)
	if err != nil {
		return nil, err
	}
	if flags.Changed("catalog") {
		cfg.Data.Catalogs, _ = flags.GetStringSlice("catalog")
	}
	if flags.Changed("backend") {
		cfg.Data.Backend, _ = flags.GetString("backend")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	log.Debugf("Using config file: (%s)", configPath)

	a := &app{cfg: cfg, configPath: configPath}
	if pr, err := utils.NewPathResolver(); err == nil {
		log.Debugf("Runtime: %v", pr.GetRuntimeInfo())
		a.paths = pr.ResolveDataPaths(cfg.Data.Catalogs)
	} else {
		log.Warnf("Path resolver unavailable, using catalog paths as given: %v", err)
		a.paths = cfg.Data.Catalogs
	}

	cat, err := a.loadCatalog()
	if err != nil {
		return nil, err
	}
	a.resolver = session.NewResolver(cat, cfg.Data.UseIndex)

	if err := a.connect(cmd.Context(), cat); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// loadCatalog reads the configured catalog files, or the builtin catalog
// when none are configured. Broken files are reported but do not stop the
// others from loading.
func (a *app) loadCatalog() (*catalog.Catalog, error) {
	if len(a.paths) == 0 {
		log.Debug("No catalog files configured, using the builtin catalog")
		return catalog.Builtin(), nil
	}
	cat, err := catalog.Load(a.paths...)
	if err != nil {
		if cat == nil || cat.Len() == 0 {
			return nil, fmt.Errorf("loading catalogs: %w", err)
		}
		log.Warnf("Some catalogs failed to load: %v", err)
	}
	return cat, nil
}

// connect opens the data backend and pushes the catalog into it.
func (a *app) connect(ctx context.Context, cat *catalog.Catalog) error {
	switch a.cfg.Data.Backend {
	case config.BackendSQLite:
		st, err := store.Open(utils.ExpandHome(a.cfg.Data.DBPath))
		if err != nil {
			return err
		}
		a.store = st
		if len(a.paths) > 0 {
			if err := st.Import(ctx, cat); err != nil {
				return err
			}
		}
		// Lists imported earlier stay available; fill rules come along.
		stored, err := st.Catalog(ctx)
		if err != nil {
			return err
		}
		if stored.Len() > 0 {
			a.resolver.Replace(stored)
		} else if err := st.Import(ctx, cat); err != nil {
			return err
		}
		a.resolver.SetRemote(st)

	case config.BackendRedis:
		rc := redisource.New(a.cfg.Redis.Addr, a.cfg.Redis.Prefix, a.cfg.Redis.MaxIdle)
		if err := rc.SyncCatalog(ctx, cat); err != nil {
			_ = rc.Close()
			return err
		}
		a.redis = rc
		a.resolver.SetRemote(rc)
	}
	return nil
}

// sync pushes a reloaded catalog into the backend.
func (a *app) sync(ctx context.Context, cat *catalog.Catalog) error {
	switch {
	case a.store != nil:
		return a.store.Import(ctx, cat)
	case a.redis != nil:
		return a.redis.SyncCatalog(ctx, cat)
	}
	return nil
}

// watcher returns a catalog watcher, or nil when watching is off or there is
// nothing on disk to watch.
func (a *app) watcher() *watch.Watcher {
	if !a.cfg.Data.Watch || len(a.paths) == 0 {
		return nil
	}
	w := watch.New(a.paths, a.loadCatalog, a.resolver)
	w.OnReload = a.sync
	return w
}

// close releases the backends; failures are logged and returned together.
func (a *app) close() error {
	var result *multierror.Error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		log.Warnf("Closing backends: %v", err)
		return err
	}
	return nil
}
