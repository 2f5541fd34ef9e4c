// eppd serves EPP over TLS/TCP with an in-memory object registry, plus an
// operator HTTP surface for health, metrics and poll message injection.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/eppkit/internal/admin"
	"github.com/danmuck/eppkit/internal/auth"
	"github.com/danmuck/eppkit/internal/config"
	logs "github.com/danmuck/eppkit/internal/logging"
	"github.com/danmuck/eppkit/internal/observability"
	"github.com/danmuck/eppkit/internal/pollq"
	"github.com/danmuck/eppkit/internal/protocol/codec"
	"github.com/danmuck/eppkit/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "eppd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "eppd",
		Short:         "EPP registry server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logs.ConfigureRuntime()
			observability.InitLogger("eppd", os.Stdout)
			cfg, err := loadDaemonConfig(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "cmd/eppd/config.toml", "eppd config file")
	return cmd
}

func run(ctx context.Context, cfg daemonConfig) error {
	accountsCfg, err := config.LoadAccounts(cfg.AccountsFile)
	if err != nil {
		return err
	}
	accounts := config.Accounts(accountsCfg)

	store, closeStore, err := openPollStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	queue := pollq.New(store, pollq.WithAckPolicy(cfg.PollPolicy))
	defer queue.Close()

	reg := codec.NewRegistry()
	if err := server.RegisterStandard(reg); err != nil {
		return err
	}
	svc, err := server.NewRegistryService(cfg.Server, reg, accounts, queue)
	if err != nil {
		return err
	}
	logs.Infof("eppd.run accounts=%d poll_store=%s ack_policy=%s", len(accountsCfg.Accounts), cfg.PollStore, cfg.PollPolicy)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
	if cfg.AdminAddr != "" {
		var token auth.Validator
		if cfg.AdminToken != "" {
			token = auth.StaticToken{Token: cfg.AdminToken}
		} else {
			logs.Warnf("eppd.run admin_token empty; authenticated admin routes disabled")
		}
		adm := admin.New(cfg.Server.ServerID, svc, token, cfg.CORSOrigins)
		g.Go(func() error { return adm.Run(ctx, cfg.AdminAddr) })
	}
	return g.Wait()
}

// openPollStore returns the configured backing store and a func releasing
// anything the store does not own.
func openPollStore(cfg daemonConfig) (pollq.Store, func(), error) {
	switch cfg.PollStore {
	case pollStoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis poll store %s: %w", cfg.RedisAddr, err)
		}
		return pollq.NewRedisStore(client, pollq.WithRedisPrefix(cfg.RedisPrefix)), func() { _ = client.Close() }, nil
	default:
		return pollq.NewMemoryStore(), func() {}, nil
	}
}
