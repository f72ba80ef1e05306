package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	commonauth "file_broker/server/common/auth"
	"file_broker/server/common/infra/cache"
	"file_broker/server/common/infra/db"
	"file_broker/server/common/infra/mq"
	"file_broker/server/common/infra/object"
	commonlog "file_broker/server/common/log"
	"file_broker/server/common/middleware"
	fileapi "file_broker/server/fileman/api"
	"file_broker/server/fileman/repository"
	"file_broker/server/fileman/service"
)

// MinIO ignores the region for routing but presigning needs one to skip the
// bucket-location lookup.
const minioRegion = "us-east-1"

type objectBackend interface {
	service.ObjectStore
	Ping(ctx context.Context) error
}

// Core is the lifecycle service with the handles it owns. The sweep command
// uses it without the HTTP layer.
type Core struct {
	Files     *service.FileService
	Pool      *pgxpool.Pool
	Store     objectBackend
	Publisher *mq.Publisher
}

func NewCore(ctx context.Context, cfg Config, reg prometheus.Registerer) (*Core, error) {
	pool, err := db.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres: %w", err)
	}
	core := &Core{Pool: pool}

	if cfg.DBAutoMigrate {
		if err := db.Migrate(cfg.PostgresDSN); err != nil {
			core.Close()
			return nil, fmt.Errorf("migrate schema: %w", err)
		}
	}

	core.Store, err = newObjectStore(ctx, cfg)
	if err != nil {
		core.Close()
		return nil, err
	}

	var events service.EventPublisher = service.NopPublisher{}
	if cfg.LavinMQURL != "" {
		conn, err := mq.NewConnection(cfg.LavinMQURL)
		if err != nil {
			core.Close()
			return nil, fmt.Errorf("initialize lavinmq: %w", err)
		}
		core.Publisher, err = mq.NewPublisher(conn, mq.FileEventsExchange)
		if err != nil {
			_ = conn.Close()
			core.Close()
			return nil, fmt.Errorf("initialize event publisher: %w", err)
		}
		events = core.Publisher
	}

	core.Files = service.NewFileService(repository.NewFileRepository(pool), core.Store, events, service.NewMetrics(reg), cfg.Policy())
	return core, nil
}

func (c *Core) Close() {
	if c.Publisher != nil {
		_ = c.Publisher.Close()
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}

func newObjectStore(ctx context.Context, cfg Config) (objectBackend, error) {
	switch cfg.ObjectStoreDriver {
	case DriverS3:
		store, err := object.NewS3Store(ctx, object.S3Options{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
			UploadTTL:    cfg.UploadURLTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize s3: %w", err)
		}
		return store, nil
	case DriverMinIO:
		client, err := object.NewClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, minioRegion, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("initialize minio: %w", err)
		}
		if err := object.EnsureBucket(ctx, client, cfg.MinioBucket); err != nil {
			return nil, fmt.Errorf("ensure minio bucket: %w", err)
		}
		return object.NewMinIOStore(client, cfg.MinioBucket, cfg.UploadURLTTL), nil
	default:
		return nil, fmt.Errorf("unknown object store driver %q", cfg.ObjectStoreDriver)
	}
}

type Server struct {
	HTTPServer *http.Server
	Core       *Core
	Redis      *redis.Client
	Cron       *cron.Cron
}

func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	core, err := NewCore(initCtx, cfg, reg)
	if err != nil {
		return nil, err
	}
	s := &Server{Core: core}

	authSvc, err := commonauth.NewService(initCtx, commonauth.Options{
		Secret:     cfg.JWTSecret,
		TTLMinutes: cfg.JWTTTLMinutes,
		JWKSURL:    cfg.JWTJWKSURL,
		Audience:   cfg.JWTAudience,
		Issuer:     cfg.JWTIssuer,
	})
	if err != nil {
		s.close()
		return nil, fmt.Errorf("initialize auth: %w", err)
	}

	opts := fileapi.Options{
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Readiness: []fileapi.ReadinessCheck{
			{Name: "postgres", Check: core.Pool.Ping},
			{Name: "object_store", Check: core.Store.Ping},
		},
	}
	if cfg.RedisAddr != "" {
		s.Redis = cache.NewClient(cfg.RedisAddr)
		if err := cache.Ping(initCtx, s.Redis); err != nil {
			s.close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		opts.UploadLimiter = middleware.RateLimit(cache.NewWindowCounter(s.Redis), "upload-url", cfg.UploadRateLimitPerMinute, time.Minute)
		opts.Readiness = append(opts.Readiness, fileapi.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return cache.Ping(ctx, s.Redis)
		}})
	}

	if cfg.SweepSchedule != "" {
		s.Cron = cron.New()
		if _, err := s.Cron.AddFunc(cfg.SweepSchedule, func() { runSweep(core.Files, cfg) }); err != nil {
			s.close()
			return nil, fmt.Errorf("schedule sweeper %q: %w", cfg.SweepSchedule, err)
		}
		s.Cron.Start()
		commonlog.Infof("stale upload sweeper scheduled: %s", cfg.SweepSchedule)
	}

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(middleware.CORS(cfg.Development(), cfg.AllowedOrigins))
	r.Use(middleware.NewHTTPMetrics(reg).Handler())
	fileapi.NewHandler(core.Files, authSvc, opts).RegisterRoutes(r)

	s.HTTPServer = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func runSweep(files *service.FileService, cfg Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := files.SweepStaleUploads(ctx, cfg.SweepStaleAfter, cfg.SweepBatchSize); err != nil {
		commonlog.Errorf("sweep stale uploads: %v", err)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.HTTPServer != nil {
		err = s.HTTPServer.Shutdown(ctx)
	}
	if s.Cron != nil {
		select {
		case <-s.Cron.Stop().Done():
		case <-ctx.Done():
			err = errors.Join(err, ctx.Err())
		}
	}
	s.close()
	return err
}

func (s *Server) close() {
	if s.Cron != nil {
		s.Cron.Stop()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.Core != nil {
		s.Core.Close()
	}
}
