package main

import (
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/duskline/pairserver/internal/abuse"
	"github.com/duskline/pairserver/internal/bus"
	"github.com/duskline/pairserver/internal/config"
	"github.com/duskline/pairserver/internal/core"
	"github.com/duskline/pairserver/internal/relay"
	"github.com/duskline/pairserver/internal/supervisor"
	"github.com/duskline/pairserver/internal/transport"
)

// contentFilterAdapter satisfies relay.ContentFilter by unpacking
// abuse.FilterResult into the (blocked, reason) pair the relay package
// expects. The relay package is deliberately kept ignorant of the abuse
// package's richer result type.
type contentFilterAdapter struct {
	filter *abuse.Filter
}

func (a contentFilterAdapter) Check(text string) (bool, string) {
	result := a.filter.Check(text)
	return result.Blocked, result.Reason
}

func main() {
	cfg := config.Load()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		log.Printf("pairserver: redis configured at %s", cfg.RedisAddr)
	} else {
		log.Printf("pairserver: no REDIS_ADDR set, rate limiting and bans use in-memory/disabled fallbacks")
	}

	var clusterBus core.ClusterBus = core.NoopBus{}
	if cfg.NATSURL != "" {
		natsBus, err := bus.NewNATSBus(bus.DefaultConfig(cfg.NATSURL))
		if err != nil {
			log.Fatalf("pairserver: nats connect: %v", err)
		}
		defer natsBus.Close()
		clusterBus = natsBus
		log.Printf("pairserver: cluster bus connected to %s", cfg.NATSURL)
	}

	var banStore *abuse.BanStore
	var reportStore *abuse.ReportStore
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("pairserver: open database: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("pairserver: ping database: %v", err)
		}
		if err := abuse.RunMigrations(db); err != nil {
			log.Fatalf("pairserver: run migrations: %v", err)
		}
		reportStore = abuse.NewReportStore(db)
		log.Printf("pairserver: abuse-report persistence enabled")
	}
	if redisClient != nil {
		banStore = abuse.NewBanStore(redisClient)
	}

	engineCfg := core.DefaultEngineConfig()
	engineCfg.SkipCooldown = cfg.SkipCooldown

	// adapter is constructed after engine/server both exist, but both of
	// their constructors need a callback that reaches it — so it's declared
	// up front and the callbacks close over the pointer instead.
	var adapter *transport.Adapter

	engine := core.NewEngine(engineCfg, clusterBus, func(ev core.Event) {
		if adapter != nil {
			adapter.OnEvent(ev)
		}
	})

	serverConfig := transport.DefaultServerConfig()
	if cfg.Port != "" {
		serverConfig.ListenAddr = ":" + cfg.Port
	}
	serverConfig.WorkerPoolSize = cfg.WorkerPoolSize
	serverConfig.MaxConnections = cfg.MaxConnections
	serverConfig.PerIPConnCap = cfg.PerIPConnCap
	serverConfig.ReadTimeout = cfg.ReadTimeout
	serverConfig.WriteTimeout = cfg.WriteTimeout

	dispatcher := transport.NewMessageDispatcher(nil)
	server := transport.NewServer(serverConfig, func(conn *transport.Connection) {
		if adapter != nil {
			adapter.OnConnect(conn)
		}
	}, dispatcher.Dispatch)
	dispatcher.SetServer(server)
	sender := transport.Sender{Server: server}

	signalLimiter := supervisor.NewRateLimiter(supervisor.RuleSignal, "signal", redisClient)
	chatLimiter := supervisor.NewRateLimiter(supervisor.RuleChat, "chat", redisClient)

	signaling := relay.NewSignalingRelay(engine, sender, signalLimiter)

	filter := contentFilterAdapter{filter: abuse.NewFilter()}
	session := relay.NewSessionRelay(engine, sender, chatLimiter, filter)

	adapter = transport.NewAdapter(engine, signaling, session, server, dispatcher, banStore, reportStore)

	sup := supervisor.New(supervisor.Config{
		SweepInterval: cfg.SweepInterval,
		StatsInterval: cfg.StatsInterval,
		ReapInterval:  cfg.ReapInterval,
		GameExpiry:    cfg.GameExpiry,
	}, engine, session, server)
	sup.Start()

	log.Printf("pairserver starting")
	log.Printf("  listen_addr:    %s", serverConfig.ListenAddr)
	log.Printf("  worker_pool:    %d", serverConfig.WorkerPoolSize)
	log.Printf("  max_connections: %d", serverConfig.MaxConnections)
	log.Printf("  per_ip_cap:     %d", serverConfig.PerIPConnCap)
	log.Printf("  redis_addr:     %s", cfg.RedisAddr)
	log.Printf("  database_url:   %s", maskEmpty(cfg.DatabaseURL))
	log.Printf("  nats_url:       %s", maskEmpty(cfg.NATSURL))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("pairserver: received signal %v, shutting down", sig)
		sup.Stop()
		if err := server.Shutdown(); err != nil {
			log.Printf("pairserver: shutdown error: %v", err)
		}
		if db != nil {
			_ = db.Close()
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("pairserver: server error: %v", err)
	}
}

func maskEmpty(s string) string {
	if s == "" {
		return "(disabled)"
	}
	return "(configured)"
}
