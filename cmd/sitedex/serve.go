package main

import (
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sitedex/pkg/api"
	"sitedex/pkg/config"
	"sitedex/pkg/crawler"
	"sitedex/pkg/graph"
	"sitedex/pkg/index"
	"sitedex/pkg/jobs"
	"sitedex/pkg/logging"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the indexing service and HTTP API",
	Long: `Starts the sitedex service: the HTTP API comes up immediately and
indexing jobs are triggered on demand via POST /api/refresh.

Requires client credentials, either in the config file:

  azure:
    tenant_id: <tenant>
    client_id: <app id>
    client_secret: <secret>

or as SITEDEX_AZURE_TENANT_ID, SITEDEX_AZURE_CLIENT_ID and
SITEDEX_AZURE_CLIENT_SECRET.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8000)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logging.Get("main")

	tokenURL := fmt.Sprintf(config.DefaultAuthority, cfg.Azure.TenantID)
	newClient := func(name string) *graph.Client {
		return graph.New(graph.Options{
			Name:         name,
			Endpoint:     cfg.Graph.Endpoint,
			TokenURL:     tokenURL,
			ClientID:     cfg.Azure.ClientID,
			ClientSecret: cfg.Azure.ClientSecret,
			Scopes:       []string{config.DefaultScope},
			Retries:      cfg.Graph.Retries,
			Timeout:      cfg.Graph.RequestTimeout,
		})
	}
	driveClient := newClient("drive")
	mailClient := newClient("mailbox")

	store := index.NewStore(index.Options{
		CacheTTL:     cfg.Cache.TTL,
		CacheMaxSize: cfg.Cache.MaxSize,
	})

	crawlOpts := crawler.Options{
		FolderTimeout:      cfg.Crawl.FolderTimeout,
		MaxDepth:           cfg.Crawl.MaxDepth,
		MaxFoldersPerLevel: cfg.Crawl.MaxFoldersPerLevel,
		ThrottleDelay:      cfg.Crawl.ThrottleDelay,
	}
	collector := crawler.NewCollector(driveClient, crawlOpts)
	mail := crawler.NewMailCollector(mailClient, crawlOpts)

	manager := jobs.NewManager(driveClient, collector, mail, store, jobs.Options{
		SiteIDs:     cfg.SiteIDs,
		SiteTimeout: cfg.Crawl.SiteTimeout,
	})

	addr := cfg.Server.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}
	server := api.NewServer(store, manager, driveClient, api.Options{
		Addr:            addr,
		Token:           cfg.Server.APIToken,
		DefaultPageSize: cfg.Pagination.DefaultPageSize,
		MaxPageSize:     cfg.Pagination.MaxPageSize,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("sitedex starting", "addr", addr, "sites_configured", len(cfg.SiteIDs))
	if err := server.Serve(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	manager.Cancel("")
	log.Info("sitedex stopped")
	return nil
}
