package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/victornm/olympia/internal/api"
	"github.com/victornm/olympia/internal/event"
	"github.com/victornm/olympia/internal/leaderboard"
	"github.com/victornm/olympia/internal/logging"
	"github.com/victornm/olympia/internal/match"
	"github.com/victornm/olympia/internal/round"
	"github.com/victornm/olympia/internal/score"
	"github.com/victornm/olympia/internal/session"
	"github.com/victornm/olympia/internal/store"
	"github.com/victornm/olympia/internal/store/postgres"
	"github.com/victornm/olympia/internal/store/sqlstore"
	"github.com/victornm/olympia/internal/telemetry"
)

// Store drivers.
const (
	DriverPGX          = "pgx"
	DriverGormPostgres = "gorm-postgres"
	DriverSQLite       = "sqlite"
)

type Config struct {
	Logging logging.Config

	HTTP struct {
		Port        int32
		CORSOrigins []string

		// JoinRateLimit is the number of join code lookups per second accepted by the server.
		JoinRateLimit float64
	}

	Tracing struct {
		Enabled     bool
		ServiceName string
	}

	GRPC struct {
		Port int32
	}

	Auth struct {
		HostSecret string
	}

	Redis struct {
		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Store struct {
		Driver string

		Postgres struct {
			Addr     string
			User     string
			Pass     string
			Name     string
			MaxConns int32
		}

		// SQLite is a file path or ":memory:".
		SQLite string
	}

	EventBus struct {
		PoolSize int
		Timeout  time.Duration
	}

	// ConnectTimeout bounds the retries of each infra connection at startup.
	ConnectTimeout time.Duration
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		store store.Store
	}

	service struct {
		match       *match.Service
		session     *session.Service
		round       *round.Service
		score       *score.Service
		leaderboard *leaderboard.Service
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	if c.Auth.HostSecret == "" {
		return nil, fmt.Errorf("server: auth host secret is not set")
	}

	s := &Server{c: c}

	s.eb = event.NewBus(
		event.WithPoolSize(c.EventBus.PoolSize),
		event.WithTimeout(c.EventBus.Timeout),
	)

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initStore(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	return nil
}

// retry runs connect with exponential backoff until it succeeds or the connect timeout is over.
// Containers of a compose stack start in any order.
func (s *Server) retry(name string, connect func(ctx context.Context) error) error {
	timeout := s.c.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return connect(attemptCtx)
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		slog.Warn("server: connect failed, retrying", "target", name, "retry_in", wait, "error", err)
	})
}

func (s *Server) initRedis() error {
	connect := func(name string, addrs []string, pass string) (redis.UniversalClient, error) {
		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(name, r); err != nil {
			return nil, err
		}

		err := s.retry("redis "+name, func(ctx context.Context) error {
			return r.Ping(ctx).Err()
		})
		if err != nil {
			_ = r.Close()
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect("leaderboard", s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect("pubsub", s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initStore() error {
	pg := s.c.Store.Postgres

	return s.retry("store "+s.c.Store.Driver, func(ctx context.Context) error {
		switch s.c.Store.Driver {
		case DriverPGX, "":
			st, err := postgres.Open(ctx, postgres.Config{
				Addr:     pg.Addr,
				User:     pg.User,
				Pass:     pg.Pass,
				Name:     pg.Name,
				MaxConns: pg.MaxConns,
			})
			if err != nil {
				return err
			}
			if err := st.EnsureSchema(ctx); err != nil {
				_ = st.Close()
				return err
			}
			s.infra.store = st

		case DriverGormPostgres, DriverSQLite:
			c := sqlstore.Config{
				Dialect:      sqlstore.DialectSQLite,
				DSN:          s.c.Store.SQLite,
				MaxOpenConns: int(pg.MaxConns),
			}
			if s.c.Store.Driver == DriverGormPostgres {
				c.Dialect = sqlstore.DialectPostgres
				c.DSN = fmt.Sprintf("postgres://%s:%s@%s/%s", pg.User, pg.Pass, pg.Addr, pg.Name)
			}

			st, err := sqlstore.Open(ctx, c)
			if err != nil {
				return err
			}
			if err := st.Migrate(ctx); err != nil {
				_ = st.Close()
				return err
			}
			s.infra.store = st

		default:
			return backoff.Permanent(fmt.Errorf("unknown driver %q", s.c.Store.Driver))
		}

		return nil
	})
}

func (s *Server) initService() {
	st := s.infra.store

	s.service.match = match.NewService(match.Config{
		Store: st,
	})

	s.service.session = session.NewService(session.Config{
		Store:    st,
		EventBus: s.eb,
	})

	s.service.round = round.NewService(round.Config{
		Store:    st,
		EventBus: s.eb,
	})

	s.service.score = score.NewService(score.Config{
		Store:    st,
		EventBus: s.eb,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Score:    s.service.score,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
	})
}

func (s *Server) initAPI() {
	var grpcOpts []grpc.ServerOption
	grpcOpts = append(grpcOpts, telemetry.GRPCServerInterceptor(slog.Default()))

	e := gin.New()
	if s.c.Tracing.Enabled {
		name := s.c.Tracing.ServiceName
		if name == "" {
			name = "olympia"
		}
		e.Use(otelgin.Middleware(name))
		grpcOpts = append(grpcOpts, grpc.StatsHandler(otelgrpc.NewServerHandler()))
	}
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())
	e.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{"^/metrics", "^/debug/pprof"})))
	// Host consoles and scoreboards are served from other origins.
	if len(s.c.HTTP.CORSOrigins) > 0 {
		e.Use(cors.New(cors.Config{
			AllowOrigins:     s.c.HTTP.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	e.GET("/healthz", s.healthz)

	s.grpc = grpc.NewServer(grpcOpts...)
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Match:        s.service.match,
		Session:      s.service.session,
		Round:        s.service.round,
		Score:        s.service.score,
		Leaderboard:  s.service.leaderboard,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
		HostSecret:   []byte(s.c.Auth.HostSecret),
		JoinLimit:    rate.Limit(s.c.HTTP.JoinRateLimit),
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

// healthz reports the storage and redis dependencies, for load balancers.
func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]error{
		"store":             s.infra.store.Ping(ctx),
		"redis_leaderboard": s.infra.redis.leaderboard.Ping(ctx).Err(),
		"redis_pubsub":      s.infra.redis.pubsub.Ping(ctx).Err(),
	}

	code := http.StatusOK
	body := make(map[string]string, len(checks))
	for name, err := range checks {
		body[name] = "ok"
		if err != nil {
			body[name] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	c.JSON(code, body)
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	// Handlers still running publish to redis and read the store.
	s.eb.Stop()

	if err := s.infra.store.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close store failed", "error", err)
	}
	for _, r := range []redis.UniversalClient{s.infra.redis.leaderboard, s.infra.redis.pubsub} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
