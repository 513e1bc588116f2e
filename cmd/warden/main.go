package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guildwarden/warden/config"
	"github.com/guildwarden/warden/modstore"
	"github.com/guildwarden/warden/platform"
	"github.com/guildwarden/warden/tempaction"

	"github.com/bwmarrin/discordgo"
	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/time/rate"
	"gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "warden",
		Usage:   "guild moderation bot daemon",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "database connection string (sqlite:// or postgres://)",
			Value:   "sqlite://data/warden/warden.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   20,
		},
		&cli.BoolFlag{
			Name:    "db-tracing",
			Usage:   "emit OpenTelemetry spans for database queries",
			EnvVars: []string{"WARDEN_DB_TRACING"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			Value:   "info",
			EnvVars: []string{"WARDEN_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format: json or text",
			Value:   "json",
			EnvVars: []string{"WARDEN_LOG_FORMAT"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		cleanupCmd,
		expireCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "connect to the gateway and moderate",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "token",
			Usage:    "bot token",
			Required: true,
			EnvVars:  []string{"WARDEN_TOKEN", "DISCORD_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "config",
			Usage:   "path to YAML bot configuration (thresholds, punishments, staff roles)",
			Value:   "config.yaml",
			EnvVars: []string{"WARDEN_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection string for shared counters, caches, and sets; in-process stores are used if not set",
			EnvVars: []string{"WARDEN_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "sets-json-path",
			Usage:   "file path of JSON file containing static sets (eg, invite-whitelist)",
			EnvVars: []string{"WARDEN_SETS_JSON_PATH"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for the admin HTTP API",
			Value:   ":3989",
			EnvVars: []string{"WARDEN_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3988",
			EnvVars: []string{"WARDEN_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "admin-token",
			Usage:   "bearer token required by the admin HTTP API; the API is disabled if not set",
			EnvVars: []string{"WARDEN_ADMIN_TOKEN"},
		},
		&cli.IntFlag{
			Name:    "platform-rate-limit",
			Usage:   "max moderation REST requests per second to the platform",
			Value:   20,
			EnvVars: []string{"WARDEN_PLATFORM_RATE_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    "scheduler-interval",
			Usage:   "how often expired temporary actions are reversed",
			Value:   tempaction.DefaultInterval,
			EnvVars: []string{"WARDEN_SCHEDULER_INTERVAL"},
		},
		&cli.BoolFlag{
			Name:    "register-commands",
			Usage:   "register slash commands with the platform on startup",
			Value:   true,
			EnvVars: []string{"WARDEN_REGISTER_COMMANDS"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		logger := configLogger(cctx, os.Stdout)
		slog.SetDefault(logger)

		shutdownOTEL := configOTEL("warden")
		defer shutdownOTEL()

		cfg, err := config.LoadHolder(cctx.String("config"))
		if err != nil {
			return err
		}
		for _, p := range cfg.Get().Problems {
			logger.Warn("configuration problem", "problem", p)
		}

		db, err := modstore.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"), logger)
		if err != nil {
			return err
		}
		if cctx.Bool("db-tracing") {
			if err := db.Use(tracing.NewPlugin()); err != nil {
				return err
			}
		}
		store, err := modstore.NewGormStore(db, logger)
		if err != nil {
			return err
		}

		srv, err := NewServer(
			store,
			cfg,
			Config{
				Token:             cctx.String("token"),
				RedisURL:          cctx.String("redis-url"),
				SetsFileJSON:      cctx.String("sets-json-path"),
				Bind:              cctx.String("bind"),
				AdminToken:        cctx.String("admin-token"),
				PlatformRateLimit: cctx.Int("platform-rate-limit"),
				SchedulerInterval: cctx.Duration("scheduler-interval"),
				RegisterCommands:  cctx.Bool("register-commands"),
				Logger:            logger,
			},
		)
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run moderation service: %w", err)
		}
		return nil
	},
}

var cleanupCmd = &cli.Command{
	Name:  "cleanup",
	Usage: "delete old message logs, completed temporary actions, and automod violations",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "days",
			Usage: "delete rows older than this many days",
			Value: 365,
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger := configLogger(cctx, os.Stdout)

		days := cctx.Int("days")
		if days < 1 {
			return fmt.Errorf("days must be positive")
		}
		db, err := modstore.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"), logger)
		if err != nil {
			return err
		}
		store, err := modstore.NewGormStore(db, logger)
		if err != nil {
			return err
		}
		res, err := store.CleanupOldData(ctx, time.Duration(days)*24*time.Hour)
		if err != nil {
			return err
		}
		logger.Info("cleanup complete", "days", days, "messageLogs", res.MessageLogs, "tempActions", res.TempActions, "violations", res.AutomodViolations)
		return nil
	},
}

var expireCmd = &cli.Command{
	Name:  "expire",
	Usage: "run a single pass reversing expired temporary actions, without connecting to the gateway",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "token",
			Usage:    "bot token",
			Required: true,
			EnvVars:  []string{"WARDEN_TOKEN", "DISCORD_TOKEN"},
		},
		&cli.IntFlag{
			Name:    "platform-rate-limit",
			Value:   20,
			EnvVars: []string{"WARDEN_PLATFORM_RATE_LIMIT"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger := configLogger(cctx, os.Stdout)

		db, err := modstore.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"), logger)
		if err != nil {
			return err
		}
		store, err := modstore.NewGormStore(db, logger)
		if err != nil {
			return err
		}
		session, err := discordgo.New("Bot " + cctx.String("token"))
		if err != nil {
			return fmt.Errorf("creating platform session: %w", err)
		}
		client := platform.NewDiscordClient(session, rate.Limit(cctx.Int("platform-rate-limit")), logger)
		sched := tempaction.NewScheduler(store, client, logger)
		n, err := sched.RunOnce(ctx)
		if err != nil {
			return err
		}
		logger.Info("expiry pass complete", "handled", n)
		return nil
	},
}
