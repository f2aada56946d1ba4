package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/msouli/folio/pkg/config"
	"github.com/msouli/folio/pkg/logutil"
	"github.com/msouli/folio/pkg/quota"
	"github.com/msouli/folio/pkg/relay"
	"github.com/msouli/folio/pkg/server"
	"github.com/msouli/folio/pkg/upstream"
)

var (
	serveConfigPath         string
	serveListenAddrOverride string
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the site server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(serveConfigPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("listen-addr") {
				cfg.ListenAddr = serveListenAddrOverride
			}
			if err := logutil.Configure(cfg.LogLevel); err != nil {
				return err
			}
			log := logutil.Component("serve")

			var backend quota.Backend
			var subs relay.SubscriberStore
			if strings.TrimSpace(cfg.Redis.URL) != "" {
				client, err := quota.Open(cfg.Redis.URL)
				if err != nil {
					return fmt.Errorf("connect redis: %w", err)
				}
				defer client.Close()
				backend = quota.NewRedisBackend(client)
				subs = relay.NewRedisSubscriberStore(client)
			} else {
				// In-process counters only survive one process and one
				// replica. Fine for development, not for production.
				log.Warn("no redis url configured, using in-memory quota counters")
				backend = quota.NewMemoryBackend()
				subs = relay.NewMemorySubscriberStore()
			}
			ledger := quota.NewLedger(backend, cfg.Limits.RequestsPerMinute, cfg.Limits.TokensPerDay)

			chat, err := upstream.New(cfg.Upstream)
			if err != nil {
				// The static site still works; only /api/chat degrades.
				log.Warn("chat upstream disabled", "err", err)
				chat = nil
			}

			srv, err := server.New(cfg, ledger, chat, relay.NewEmailSender(cfg.Email), subs)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.Run(ctx)
		},
	}
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "folio.toml", "Config TOML path (optional, env vars override)")
	serveCmd.Flags().StringVar(&serveListenAddrOverride, "listen-addr", "", "Override listen address from config (e.g. 127.0.0.1:8080)")
	rootCmd.AddCommand(serveCmd)
}
