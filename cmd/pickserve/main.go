// Copyright 2025 The PickServe Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements the pickserve autocomplete server and CLI [DBG] application.

Note: This is a BETA release. APIs and functionality may rapidly change.

pickserve suggests entries from reference catalogs (suppliers, items, staff)
while a form field is being typed into. It keeps the dropdown state for every
bound field: matches, the highlighted row, keyboard navigation and commits.
Hosts only forward events and render frames.

# Usage

Serve one session over stdin/stdout using msgpack:

	pickserve serve

Serve browser forms over HTTP and websockets:

	pickserve http --listen 127.0.0.1:8740

Try a catalog by hand in the terminal:

	pickserve cli --list suppliers -d

Import catalog files into the sqlite store, or sync them to redis:

	pickserve import --catalog catalogs/ --backend sqlite
	pickserve import --catalog catalogs/ --backend redis

Show lists and their contents:

	pickserve catalog
	pickserve catalog items

Print the active config file, or reset it to defaults:

	pickserve config
	pickserve config --rebuild

Catalog files are TOML or YAML. Without any configured catalog the builtin
procurement catalog is used.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bastiangx/pickserve/internal/cli"
	"github.com/bastiangx/pickserve/internal/httpserver"
	"github.com/bastiangx/pickserve/internal/session"
	"github.com/bastiangx/pickserve/pkg/config"
	"github.com/bastiangx/pickserve/pkg/server"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	Version = "0.3.0-beta"
	AppName = "pickserve"
	gh      = "https://github.com/bastiangx/pickserve"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           AppName,
		Short:         "Autocomplete for procurement forms",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.String("config", "", "Path to the config file")
	flags.BoolP("debug", "d", false, "Toggle debug mode")
	flags.String("log-format", "text", "Log format: text, logfmt or json")
	flags.StringSlice("catalog", nil, "Catalog files or directories (overrides data.catalogs)")
	flags.String("backend", "", "Lookup backend: memory, sqlite or redis (overrides data.backend)")

	root.AddCommand(
		newServeCmd(),
		newHTTPCmd(),
		newCLICmd(),
		newImportCmd(),
		newCatalogCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve one session over stdin/stdout (msgpack)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			srv := server.NewServer(a.resolver, a.cfg, a.configPath, Version)
			showStartupInfo(a)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			g, gctx := errgroup.WithContext(ctx)
			if w := a.watcher(); w != nil {
				g.Go(func() error { return w.Run(gctx) })
			}
			g.Go(func() error {
				defer cancel()
				err := srv.Start()
				if cmd.Context().Err() != nil {
					return nil
				}
				return err
			})
			go func() {
				// unblocks the decoder on SIGINT/SIGTERM
				<-cmd.Context().Done()
				os.Stdin.Close()
			}()
			return g.Wait()
		},
	}
}

func newHTTPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "http",
		Short: "Serve the HTTP API and websocket sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			listen := a.cfg.Server.Listen
			if cmd.Flags().Changed("listen") {
				listen, _ = cmd.Flags().GetString("listen")
			}

			srv := httpserver.New(a.resolver, a.cfg, Version)
			g, gctx := errgroup.WithContext(cmd.Context())
			if w := a.watcher(); w != nil {
				g.Go(func() error { return w.Run(gctx) })
			}
			g.Go(func() error { return srv.Run(gctx, listen) })
			return g.Wait()
		},
	}
	cmd.Flags().String("listen", "", "Address to listen on (overrides server.listen)")
	return cmd
}

func newCLICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cli",
		Short: "Try a catalog list in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			log.SetReportTimestamp(false)

			if cmd.Flags().Changed("list") {
				a.cfg.CLI.DefaultList, _ = cmd.Flags().GetString("list")
			}
			h, err := cli.NewInputHandler(a.resolver, a.cfg, os.Stdin, os.Stdout)
			if err != nil {
				return err
			}
			return h.Start()
		},
	}
	cmd.Flags().String("list", "", "List to bind (overrides cli.default_list)")
	return cmd
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Load catalogs into the sqlite store or redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if a.store == nil && a.redis == nil {
				return fmt.Errorf("import needs the sqlite or redis backend, got %q", a.cfg.Data.Backend)
			}
			lists := a.resolver.Lists()
			if a.store != nil {
				stored, err := a.store.Lists(cmd.Context())
				if err != nil {
					return err
				}
				lists = lists[:0]
				for _, l := range stored {
					lists = append(lists, session.ListInfo{Name: l.Name, Count: l.Count})
				}
				log.Infof("Imported into %s", a.cfg.Data.DBPath)
			} else {
				log.Infof("Synced to redis at %s", a.cfg.Redis.Addr)
			}
			cli.PrintLists(cmd.OutOrStdout(), lists)
			return nil
		},
	}
}

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog [LIST]",
		Short: "Show catalog lists, or the entries of one list",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if len(args) == 0 {
				cli.PrintLists(cmd.OutOrStdout(), a.resolver.Lists())
				return nil
			}
			return cli.PrintList(cmd.OutOrStdout(), a.resolver.Catalog(), args[0], a.cfg.CLI.ShowMeta)
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the active config file, or rebuild it with defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rebuild, _ := cmd.Flags().GetBool("rebuild"); rebuild {
				if err := config.RebuildConfigFile(); err != nil {
					return fmt.Errorf("rebuilding config: %w", err)
				}
				log.Info("Config file rebuilt with defaults")
			}
			configFlag, _ := cmd.Flags().GetString("config")
			_, configPath, err := config.LoadConfigWithPriority(configFlag)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), config.GetActiveConfigPath(configPath))
			return nil
		},
	}
	cmd.Flags().Bool("rebuild", false, "Overwrite the default config file with defaults")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show current version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			logger := log.NewWithOptions(os.Stderr, log.Options{
				ReportCaller:    false,
				ReportTimestamp: false,
				Prefix:          "",
			})

			styles := log.DefaultStyles()
			styles.Values["version"] = lipgloss.NewStyle().Bold(true).
				Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"}).
				Background(lipgloss.AdaptiveColor{Light: "#f2e9e1", Dark: "#26233a"})
			styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
				Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
			logger.SetStyles(styles)

			logger.Print("")
			logger.Print("[ pickserve ] Suggests reference entries while forms are filled in")
			logger.Print("", "version", Version)
			logger.Print("")
			logger.Print("use -h or --help to see available commands")
			logger.Print("Github Repo", "gh", gh)
		},
	}
}

// showStartupInfo displays some basic info about the init process.
func showStartupInfo(a *app) {
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)
	defer log.SetLevel(currentLevel)

	cat := a.resolver.Catalog()
	log.Infof("%s %s", AppName, Version)
	log.Infof("Process ID: [ %d ]", os.Getpid())
	log.Infof("catalog: %d lists, %d candidates", cat.Len(), cat.Count())
	log.Infof("backend: %s", a.cfg.Data.Backend)
	log.Info("status: ready")
}
