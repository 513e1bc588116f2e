package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guildwarden/warden/automod/cachestore"
	"github.com/guildwarden/warden/automod/countstore"
	"github.com/guildwarden/warden/automod/engine"
	"github.com/guildwarden/warden/automod/rules"
	"github.com/guildwarden/warden/automod/setstore"
	"github.com/guildwarden/warden/config"
	"github.com/guildwarden/warden/moderation"
	"github.com/guildwarden/warden/modstore"
	"github.com/guildwarden/warden/permissions"
	"github.com/guildwarden/warden/platform"
	"github.com/guildwarden/warden/tempaction"

	"github.com/bwmarrin/discordgo"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type Server struct {
	logger    *slog.Logger
	config    *config.Holder
	policy    atomic.Pointer[permissions.Policy]
	store     modstore.Store
	session   *discordgo.Session
	client    platform.Client
	engine    *engine.Engine
	mod       *moderation.Service
	scheduler *tempaction.Scheduler
	rdb       *redis.Client
	api       *http.Server

	registerCommands bool
	// lifetime of the gateway connection; handlers derive their contexts from it
	runCtx    context.Context
	readyOnce sync.Once
}

type Config struct {
	Token             string
	RedisURL          string
	SetsFileJSON      string
	Bind              string
	AdminToken        string
	PlatformRateLimit int
	SchedulerInterval time.Duration
	RegisterCommands  bool
	Logger            *slog.Logger
}

func NewServer(store modstore.Store, cfg *config.Holder, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	session, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("creating platform session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildBans |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent
	session.StateEnabled = true
	// recent messages are kept so edit and delete logs can include the prior content
	session.State.MaxMessageCount = 200
	client := platform.NewDiscordClient(session, rate.Limit(config.PlatformRateLimit), logger)

	var sets setstore.SetStore
	var counters countstore.CountStore
	var cache cachestore.CacheStore
	var rdb *redis.Client
	if config.RedisURL != "" {
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %v", err)
		}
		rdb = redis.NewClient(opt)
		// check redis connection
		_, err = rdb.Ping(context.TODO()).Result()
		if err != nil {
			return nil, fmt.Errorf("redis ping failed: %v", err)
		}
		sets = setstore.NewRedisSetStore(rdb)
		counters = countstore.NewRedisCountStore(rdb)
		cache = cachestore.NewRedisCacheStore(rdb, 30*time.Minute)
	} else {
		sets = setstore.NewMemSetStore()
		counters = countstore.NewMemCountStore()
		cache = cachestore.NewMemCacheStore(50_000, 30*time.Minute)
	}
	if config.SetsFileJSON != "" {
		if err := setstore.LoadFromFileJSON(context.TODO(), sets, config.SetsFileJSON); err != nil {
			return nil, fmt.Errorf("initializing setstore: %v", err)
		}
		logger.Info("loaded set config from JSON", "path", config.SetsFileJSON)
	}

	orch := moderation.NewOrchestrator(store, client, cfg, logger)
	sched := tempaction.NewScheduler(store, client, logger)
	if config.SchedulerInterval > 0 {
		sched.Interval = config.SchedulerInterval
	}

	s := &Server{
		logger:           logger,
		config:           cfg,
		store:            store,
		session:          session,
		client:           client,
		mod:              moderation.NewService(orch),
		scheduler:        sched,
		rdb:              rdb,
		registerCommands: config.RegisterCommands,
	}
	s.setPolicy(cfg.Get())

	s.engine = &engine.Engine{
		Logger:   logger.With("component", "automod"),
		Config:   cfg,
		Rules:    rules.DefaultRules(),
		Tracker:  engine.NewTracker(),
		Counters: counters,
		Sets:     sets,
		Cache:    cache,
		Platform: client,
		Store:    store,
		Punisher: orch,
		Staff:    s,
	}

	if config.AdminToken != "" {
		e := s.newAPI(config.AdminToken)
		e.Use(echoprometheus.NewMiddleware("warden_api"))
		s.api = &http.Server{
			Handler:        otelhttp.NewHandler(e, "warden-api"),
			Addr:           config.Bind,
			WriteTimeout:   time.Minute,
			ReadTimeout:    time.Minute,
			MaxHeaderBytes: 1024 * 1024,
		}
	}

	return s, nil
}

func (s *Server) setPolicy(cfg *config.Config) {
	p := permissions.NewPolicy(cfg.Permissions)
	for _, prob := range p.Problems {
		s.logger.Warn("permission configuration problem", "problem", prob)
	}
	s.policy.Store(p)
}

// Staff are exempt from automod.
func (s *Server) IsStaff(ctx context.Context, guildID, userID string, roles []string) bool {
	g, err := s.client.GetGuild(ctx, guildID)
	if err != nil {
		s.logger.Warn("failed to resolve guild for staff check", "guild", guildID, "err", err)
		return false
	}
	m := &platform.Member{GuildID: guildID, UserID: userID, Roles: roles}
	return s.policy.Load().IsStaff(permissions.ActorFromMember(g, m))
}

// Connects to the gateway and runs until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.runCtx = ctx
	s.addHandlers()

	if err := s.session.Open(); err != nil {
		return fmt.Errorf("opening gateway connection: %w", err)
	}
	s.logger.Info("gateway connection open")

	g, gctx := errgroup.WithContext(ctx)
	if s.api != nil {
		g.Go(func() error {
			s.logger.Info("starting admin API", "bind", s.api.Addr)
			if err := s.api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin API: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown()
	})
	return g.Wait()
}

func (s *Server) Shutdown() error {
	s.logger.Info("shutting down")
	var errs []error
	if s.api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		errs = append(errs, s.api.Shutdown(ctx))
	}
	errs = append(errs, s.session.Close())
	if s.rdb != nil {
		errs = append(errs, s.rdb.Close())
	}
	return errors.Join(errs...)
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

// Re-reads the configuration file, and rebuilds the permission policy from it. The previous configuration stays active if the file can't be loaded.
func (s *Server) Reload() (*config.Config, error) {
	cfg, err := s.config.Reload()
	if err != nil {
		return nil, err
	}
	for _, p := range cfg.Problems {
		s.logger.Warn("configuration problem", "problem", p)
	}
	s.setPolicy(cfg)
	s.logger.Info("configuration reloaded", "path", s.config.Path())
	return cfg, nil
}
