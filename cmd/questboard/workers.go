package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AccelByte/extend-questboard-common/pkg/cache"
	"github.com/AccelByte/extend-questboard-common/pkg/client"
	"github.com/AccelByte/extend-questboard-common/pkg/db"
	"github.com/AccelByte/extend-questboard-common/pkg/domain"
	feedredis "github.com/AccelByte/extend-questboard-common/pkg/feed/redis"
	"github.com/AccelByte/extend-questboard-common/pkg/progression"
	"github.com/AccelByte/extend-questboard-common/pkg/questlist"
	"github.com/AccelByte/extend-questboard-common/pkg/realtime"
	"github.com/AccelByte/extend-questboard-common/pkg/repository"
	"github.com/AccelByte/extend-questboard-common/pkg/store"
	"github.com/AccelByte/extend-questboard-common/pkg/store/postgres"
)

const (
	sourcePostgres = "postgres"
	sourceRedis    = "redis"
)

func migrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema and change notification triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.logger(cmd.ErrOrStderr())
			conn, _, err := connectDB(logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := postgres.Migrate(cmd.Context(), conn); err != nil {
				return err
			}
			logger.Info("Schema applied")
			return nil
		},
	}
}

func expireCmd(opts *rootOptions) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Mark open quests past their deadline as expired",
		Long:  "Runs once, or every --interval until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			calc, err := progression.NewCalculator(cfg.Progression)
			if err != nil {
				return err
			}
			payout, err := client.NewPayoutClient(cfg.Payout, logger)
			if err != nil {
				return err
			}
			conn, _, err := connectDB(logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			pg := postgres.New(conn)
			caches := repository.NewCaches(cfg.Cache.TTL(), nil, logger)
			caches.StartSweepers(ctx, cfg.Cache.SweepInterval)
			defer caches.Stop()
			repo := repository.NewQuestRepository(pg, pg, caches, calc, payout, nil, logger)

			runOnce := func() error {
				n, err := repo.ExpireOverdue(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "expired=%d\n", n)
				return nil
			}

			if interval <= 0 {
				return runOnce()
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				if err := runOnce(); err != nil {
					logger.Error("Expiry pass failed", "error", err)
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "repeat every interval (0 runs once)")
	return cmd
}

func relayCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Republish Postgres change notifications onto Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cfg.Redis.Addr == "" {
				return fmt.Errorf("redis.addr is required")
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			dbCfg := db.NewConfigFromEnv()
			source, err := postgres.NewFeed(ctx, dbCfg.DSN(), logger)
			if err != nil {
				return err
			}
			defer source.Close()

			rdb, err := feedredis.NewClient(cfg.Redis)
			if err != nil {
				return err
			}
			defer rdb.Close()

			return feedredis.NewRelay(source, rdb, cfg.Redis.ChannelPrefix, logger).Run(ctx)
		},
	}
}

func watchCmd(opts *rootOptions) *cobra.Command {
	var (
		source string
		table  string
		scope  string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep a cached collection in sync with the change feed and log each update",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := store.Table(table)
			if !t.IsValid() {
				return fmt.Errorf("unknown table %q", table)
			}
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			var (
				feed store.ChangeFeed
				pg   *postgres.Store
			)
			switch source {
			case sourcePostgres:
				conn, dbCfg, err := connectDB(logger)
				if err != nil {
					return err
				}
				defer conn.Close()
				pgFeed, err := postgres.NewFeed(ctx, dbCfg.DSN(), logger)
				if err != nil {
					return err
				}
				defer pgFeed.Close()
				feed, pg = pgFeed, postgres.New(conn)
			case sourceRedis:
				rdb, err := feedredis.NewClient(cfg.Redis)
				if err != nil {
					return err
				}
				defer rdb.Close()
				redisFeed, err := feedredis.NewFeed(ctx, rdb, cfg.Redis.ChannelPrefix, logger)
				if err != nil {
					return err
				}
				defer redisFeed.Close()
				feed = redisFeed
				// The relay carries changes only; the initial collection still comes from the database.
				if conn, _, err := connectDB(logger); err == nil {
					defer conn.Close()
					pg = postgres.New(conn)
				} else {
					logger.Warn("No database for the initial load, changes apply once the collection is cached", "error", err)
				}
			default:
				return fmt.Errorf("unknown source %q", source)
			}

			caches := repository.NewCaches(cfg.Cache.TTL(), nil, logger)
			caches.StartSweepers(ctx, cfg.Cache.SweepInterval)
			defer caches.Stop()

			switch t {
			case store.TableQuests:
				var loader realtime.Loader[domain.Quest]
				if pg != nil {
					loader = func(ctx context.Context) ([]domain.Quest, error) {
						return pg.QueryQuests(ctx, questlist.FilterSpec{})
					}
				}
				return watch(ctx, feed, t, scope, caches.QuestLists, loader, logger)
			case store.TableMessages:
				var loader realtime.Loader[domain.Message]
				if pg != nil && scope != "" {
					loader = func(ctx context.Context) ([]domain.Message, error) {
						return pg.ListMessages(ctx, scope)
					}
				}
				return watch(ctx, feed, t, scope, caches.Messages, loader, logger)
			case store.TableNotifications:
				var loader realtime.Loader[domain.Notification]
				if pg != nil && scope != "" {
					loader = func(ctx context.Context) ([]domain.Notification, error) {
						return pg.ListNotifications(ctx, scope)
					}
				}
				return watch(ctx, feed, t, scope, caches.Notifications, loader, logger)
			default:
				var loader realtime.Loader[domain.User]
				if pg != nil {
					loader = pg.ListUsers
				}
				users := cache.NewExpiringCache[[]domain.User](cfg.Cache.TTL(), nil, logger)
				return watch(ctx, feed, t, scope, users, loader, logger)
			}
		},
	}
	cmd.Flags().StringVar(&source, "source", sourcePostgres, "change feed source: postgres or redis")
	cmd.Flags().StringVar(&table, "table", string(store.TableQuests), "table to watch: quests, users, messages or notifications")
	cmd.Flags().StringVar(&scope, "scope", "", "narrow the feed, e.g. a quest id for messages or a user id for notifications")
	return cmd
}

func watch[T domain.Identifiable](
	ctx context.Context,
	feed store.ChangeFeed,
	table store.Table,
	scope string,
	c cache.Cache[[]T],
	loader realtime.Loader[T],
	logger *slog.Logger,
) error {
	sub := realtime.New(feed, table, scope, c, realtime.Options[T]{Loader: loader, Logger: logger})
	sub.OnChange(func(key string, collection []T) {
		logger.Info("Collection updated", "key", key, "size", len(collection))
	})

	if err := sub.Subscribe(ctx); err != nil {
		return err
	}
	defer sub.Close()

	select {
	case <-ctx.Done():
	case <-sub.Done():
		return fmt.Errorf("change feed for %s closed", sub.Key())
	}
	return nil
}

func connectDB(logger *slog.Logger) (*sql.DB, *db.Config, error) {
	cfg := db.NewConfigFromEnv()
	conn, err := db.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("Connected to database", "host", cfg.Host, "database", cfg.Database)
	return conn, cfg, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
