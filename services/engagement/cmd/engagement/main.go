package main

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/example/forum-platform/internal/platform/auth"
	platformconfig "github.com/example/forum-platform/internal/platform/config"
	"github.com/example/forum-platform/internal/platform/db"
	"github.com/example/forum-platform/internal/platform/events"
	"github.com/example/forum-platform/internal/platform/httpserver"
	"github.com/example/forum-platform/internal/platform/logging"
	"github.com/example/forum-platform/internal/platform/natsconn"
	"github.com/example/forum-platform/internal/platform/run"
	"github.com/example/forum-platform/services/engagement/internal/config"
	"github.com/example/forum-platform/services/engagement/internal/domain"
	"github.com/example/forum-platform/services/engagement/internal/handlers"
	"github.com/example/forum-platform/services/engagement/internal/idempotency"
	"github.com/example/forum-platform/services/engagement/internal/service"
	"github.com/example/forum-platform/services/engagement/internal/store"
	"github.com/example/forum-platform/services/engagement/internal/users"
	"github.com/example/forum-platform/services/engagement/internal/worker"
)

func main() {
	appCfg, err := platformconfig.Load()
	if err != nil {
		panic(err)
	}
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(appCfg.LogLevel, appCfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	isProd := appCfg.IsProduction()

	pool := initPostgres(log, cfg.DatabaseURL, isProd)
	if pool != nil {
		defer pool.Close()
	}
	rdb := initRedis(log, cfg.RedisURL, isProd)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	// non-fatal: without NATS events are dropped and commands are not consumed
	var js nats.JetStreamContext
	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: appCfg.ServiceName})
	if err != nil {
		log.Warn("nats unavailable, events disabled", zap.Error(err))
	} else {
		defer nc.Close()
		js, err = nc.JetStream()
		if err != nil {
			log.Warn("jetstream unavailable, events disabled", zap.Error(err))
			js = nil
		} else if err := natsconn.EnsureStream(js, events.StreamName, []string{events.SubjectAll}, 7*24*time.Hour); err != nil {
			log.Warn("ensure events stream", zap.Error(err))
		}
	}

	posts, comments := initContent(log, pool, cfg.SeedPosts)
	ledger := initLedger(log, cfg, pool, rdb, store.Targets{Posts: posts, Comments: comments}, isProd)
	directory, closeDirectory := initUsers(log, cfg, pool, rdb, nc)
	if closeDirectory != nil {
		defer closeDirectory()
	}

	svc := service.New(service.Deps{
		Ledger:   ledger,
		Comments: comments,
		Posts:    posts,
		Users:    directory,
		Events:   events.New(js, log),
		Logger:   log,
	}, service.WithMaxCommentLength(cfg.CommentMaxLength))

	verifier := auth.JWTVerifier{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		Logger: log,
		ReadyFunc: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if pool != nil {
				if err := pool.Ping(ctx); err != nil {
					return err
				}
			}
			if rdb != nil {
				return rdb.Ping(ctx).Err()
			}
			return nil
		},
	})

	// Reads are public; a valid token personalises user_state.
	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalUser(verifier))
		r.Get("/v1/votes/{target_type}/{target_id}", handlers.GetTally(svc, log))
		r.Get("/v1/posts/{post_id}/comments", handlers.GetThread(svc, log))
		r.Get("/v1/comments/{comment_id}/replies", handlers.GetReplies(svc, log))
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Post("/v1/votes/{target_type}/{target_id}", handlers.Vote(svc, log))
		r.Post("/v1/posts/{post_id}/comments", handlers.CreateComment(svc, log))
		r.Delete("/v1/comments/{comment_id}", handlers.DeleteComment(svc, log))
	})

	srv := httpserver.New(httpserver.Options{Addr: appCfg.HTTP.Addr, ServiceName: appCfg.ServiceName, Logger: log, Router: r})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen", zap.Error(err))
		run.Exit(1)
	}
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	go func() {
		log.Info("grpc server starting", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("grpc serve", zap.Error(err))
		}
	}()

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		if cfg.CommandsEnabled && js != nil {
			startCommands(ctx, log, cfg, js, svc, pool, rdb, isProd)
		}

		go func() {
			<-ctx.Done()
			healthSrv.Shutdown()
			runner.Graceful("grpc", func(c context.Context) error {
				stopped := make(chan struct{})
				go func() {
					grpcSrv.GracefulStop()
					close(stopped)
				}()
				select {
				case <-stopped:
					return nil
				case <-c.Done():
					grpcSrv.Stop()
					return c.Err()
				}
			})
			runner.Graceful("http", srv.Shutdown)
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// fatal logs and terminates; used while wiring before the runner starts.
func fatal(log *zap.Logger, msg string, fields ...zap.Field) {
	log.Error(msg, fields...)
	_ = log.Sync()
	os.Exit(1)
}

// initPostgres opens and migrates the pool. In production a missing or
// unreachable database terminates the process; otherwise nil means in-memory.
func initPostgres(log *zap.Logger, dsn string, isProd bool) *pgxpool.Pool {
	if dsn == "" {
		if isProd {
			fatal(log, "DATABASE_URL is required in production")
		}
		log.Warn("DATABASE_URL not set, using in-memory stores (development only)")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	pool, err := db.Open(ctx, dsn)
	if err != nil {
		if isProd {
			fatal(log, "postgres is required in production but unavailable", zap.Error(err))
		}
		log.Warn("postgres unavailable, falling back to in-memory stores", zap.Error(err))
		return nil
	}
	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		if isProd {
			fatal(log, "schema migration failed", zap.Error(err))
		}
		log.Warn("schema migration failed, falling back to in-memory stores", zap.Error(err))
		return nil
	}
	log.Info("postgres connected")
	return pool
}

func initRedis(log *zap.Logger, url string, isProd bool) *redis.Client {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		fatal(log, "invalid REDIS_URL", zap.Error(err))
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if isProd {
			fatal(log, "redis configured but unreachable", zap.Error(err))
		}
		log.Warn("redis unreachable, continuing without it", zap.Error(err))
		return nil
	}
	log.Info("redis connected")
	return client
}

func initContent(log *zap.Logger, pool *pgxpool.Pool, seeds []config.SeedPost) (store.PostDirectory, store.CommentStore) {
	if pool != nil {
		log.Info("content stores: postgres")
		return store.NewPostgresPostDirectory(pool), store.NewPostgresCommentStore(pool)
	}
	posts := store.NewInMemoryPostDirectory()
	for _, s := range seeds {
		posts.Put(domain.Post{ID: s.ID, AuthorID: s.AuthorID})
	}
	log.Info("content stores: memory", zap.Int("seeded_posts", len(seeds)))
	return posts, store.NewInMemoryCommentStore()
}

func initLedger(log *zap.Logger, cfg config.Config, pool *pgxpool.Pool, rdb *redis.Client, targets store.Targets, isProd bool) store.VoteLedger {
	switch cfg.VoteBackend {
	case config.BackendPostgres:
		if pool != nil {
			log.Info("vote ledger: postgres")
			return store.NewPostgresVoteLedger(pool)
		}
	case config.BackendRedis:
		if rdb != nil {
			log.Info("vote ledger: redis")
			return store.NewRedisVoteLedger(rdb, targets)
		}
	}
	if isProd {
		fatal(log, "in-memory vote ledger is not allowed in production", zap.String("backend", cfg.VoteBackend))
	}
	log.Warn("vote ledger: memory (development only)", zap.String("requested", cfg.VoteBackend))
	return store.NewInMemoryVoteLedger(targets)
}

func initUsers(log *zap.Logger, cfg config.Config, pool *pgxpool.Pool, rdb *redis.Client, nc *nats.Conn) (users.Directory, func()) {
	var next users.Directory
	switch {
	case cfg.UsersBaseURL != "":
		cb := users.NewBreaker("users", cfg.CBMaxRequests, cfg.CBInterval, cfg.CBTimeout, cfg.CBFailureThreshold, log)
		next = users.NewClient(cfg.UsersBaseURL, users.ClientConfig{
			MaxRetries:     cfg.UsersMaxRetries,
			RetryBaseDelay: cfg.UsersRetryBaseDelay,
			Timeout:        cfg.UsersTimeout,
		}, users.WithCircuitBreaker(cb), users.WithLogger(log))
		log.Info("users directory: http", zap.String("base_url", cfg.UsersBaseURL))
	case pool != nil:
		next = users.NewPostgresDirectory(pool)
		log.Info("users directory: postgres")
	default:
		log.Warn("users directory: none, author names stay empty")
		return users.StaticDirectory{}, nil
	}

	switch {
	case cfg.UsersCache == "redis" && rdb != nil:
		return users.NewCachedDirectory(next, users.NewRedisCache(rdb, cfg.UsersCacheTTL), log), nil
	case cfg.UsersCache == "none":
		return next, nil
	default:
		cache, err := users.NewTTLCache(cfg.UsersCacheTTL, nc, users.InvalidateSubject)
		if err != nil {
			log.Warn("users cache invalidation unavailable", zap.Error(err))
			cache, _ = users.NewTTLCache(cfg.UsersCacheTTL, nil, "")
		}
		return users.NewCachedDirectory(next, cache, log), func() { _ = cache.Close() }
	}
}

func startCommands(ctx context.Context, log *zap.Logger, cfg config.Config, js nats.JetStreamContext, svc *service.Service, pool *pgxpool.Pool, rdb *redis.Client, isProd bool) {
	if err := natsconn.EnsureStream(js, worker.CommandStream, []string{worker.SubjectCommands}, 24*time.Hour); err != nil {
		log.Error("ensure commands stream", zap.Error(err))
		return
	}
	seen, err := idempotency.NewStore(rdb, pool, cfg.IdempotencyTTL, isProd)
	if err != nil {
		log.Error("idempotency store", zap.Error(err))
		return
	}
	consumer := worker.NewCommandConsumer(svc, seen, log, worker.Options{
		BatchSize:     cfg.WorkerBatchSize,
		BatchInterval: cfg.WorkerBatchInterval,
	})
	if _, err := consumer.Start(ctx, js); err != nil {
		log.Error("commands consumer", zap.Error(err))
		return
	}
	log.Info("commands consumer started", zap.String("stream", worker.CommandStream))
}
