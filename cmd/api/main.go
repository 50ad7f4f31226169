package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/EAZaidi/Todo-App-Phase-II/pkg/auth"
	"github.com/EAZaidi/Todo-App-Phase-II/pkg/hardening"
	"github.com/EAZaidi/Todo-App-Phase-II/pkg/httpx"
	"github.com/EAZaidi/Todo-App-Phase-II/pkg/metrics"
	"github.com/EAZaidi/Todo-App-Phase-II/pkg/ratelimit"
	"github.com/EAZaidi/Todo-App-Phase-II/pkg/store"
	"github.com/EAZaidi/Todo-App-Phase-II/pkg/tasks"
	"github.com/EAZaidi/Todo-App-Phase-II/pkg/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
)

const apiVersion = "1.0.0"

// Server carries the per-process collaborators; per-request state is always
// passed explicitly.
type Server struct {
	Tasks               taskStore
	Verifier            *auth.Verifier
	JWKS                *auth.JWKSCache
	Metrics             *metrics.Registry
	RateLimiter         ratelimit.Limiter
	RateLimitEnabled    bool
	RateLimitPerMinute  int
	MaxRequestBodyBytes int64
	Environment         string
}

type taskStore interface {
	Create(ctx context.Context, owner string, in tasks.CreateInput) (tasks.Task, error)
	List(ctx context.Context, owner string) ([]tasks.Task, error)
	Get(ctx context.Context, owner string, id int64) (tasks.Task, error)
	Replace(ctx context.Context, owner string, id int64, in tasks.ReplaceInput) (tasks.Task, error)
	Patch(ctx context.Context, owner string, id int64, in tasks.PatchInput) (tasks.Task, error)
	Delete(ctx context.Context, owner string, id int64) error
}

type apiDBCloser interface {
	tasks.DB
	Close()
}

type apiInitTelemetryFunc func(ctx context.Context, service string) (func(context.Context) error, error)
type apiOpenDBFunc func(ctx context.Context) (apiDBCloser, error)
type apiListenFunc func(server *http.Server) error

// Testable variables for main()
var (
	logFatalf       = log.Fatalf
	initTelemetryFn = telemetry.Init
	openDBFn        = func(ctx context.Context) (apiDBCloser, error) { return store.NewPostgresPool(ctx) }
	openRedisFn     = store.NewRedis
	listenFn        = func(server *http.Server) error { return server.ListenAndServe() }
)

func main() {
	if err := runAPI(initTelemetryFn, openDBFn, listenFn); err != nil {
		logFatalf("api: %v", err)
	}
}

func runAPI(initTelemetry apiInitTelemetryFunc, openDB apiOpenDBFunc, listen apiListenFunc) error {
	_ = godotenv.Load()
	ctx := context.Background()

	shutdown, err := initTelemetry(ctx, "todo-api")
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	pool, err := openDB(ctx)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	environment := env("ENVIRONMENT", env("APP_ENV", "development"))
	jwksURL := env("JWKS_URL", "http://localhost:3000/api/auth/jwks")
	corsOrigins := env("CORS_ALLOWED_ORIGINS", "")
	if corsOrigins == "" {
		if hardening.IsProductionLikeEnv(environment) {
			corsOrigins = env("FRONTEND_URL", "")
		} else {
			corsOrigins = "*"
		}
	}
	if err := hardening.ValidateProduction(hardening.Options{
		Service:            "api",
		Environment:        environment,
		StrictProdSecurity: env("STRICT_PROD_SECURITY", "true"),
		DatabaseRequireTLS: env("DATABASE_REQUIRE_TLS", ""),
		RedisAddr:          env("REDIS_ADDR", ""),
		RedisRequireTLS:    env("REDIS_REQUIRE_TLS", ""),
		JWKSURL:            jwksURL,
		CORSAllowedOrigins: corsOrigins,
	}); err != nil {
		return err
	}

	jwksClient := telemetry.InstrumentClient(&http.Client{
		Timeout: time.Second * time.Duration(envInt("JWKS_TIMEOUT_SEC", 10)),
	})
	jwksCache := auth.NewJWKSCache(jwksURL, jwksClient, time.Second*time.Duration(envInt("JWKS_CACHE_TTL_SEC", 3600)))
	verifier := auth.NewVerifier(jwksCache, time.Second*time.Duration(envInt("AUTH_LEEWAY_SEC", 30)))

	rateLimitEnabled := env("RATE_LIMIT_ENABLED", "true") == "true"
	rateLimitWindow := time.Second * time.Duration(envInt("RATE_LIMIT_WINDOW_SEC", 60))
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	var limiter ratelimit.Limiter
	if rateLimitEnabled {
		redisClient, err := openRedisFn(ctx)
		if err != nil {
			log.Printf("redis unavailable, falling back to in-memory rate limits: %v", err)
			limiter = ratelimit.NewInMemory(rateLimitWindow)
		} else {
			defer redisClient.Close()
			limiter = ratelimit.NewRedis(redisClient, rateLimitWindow)
		}
	}

	maxBody := int64(envInt("MAX_REQUEST_BODY_BYTES", 1<<20))
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	s := &Server{
		Tasks:               tasks.NewStore(pool),
		Verifier:            verifier,
		JWKS:                jwksCache,
		Metrics:             metrics.NewRegistry(),
		RateLimiter:         limiter,
		RateLimitEnabled:    rateLimitEnabled,
		RateLimitPerMinute:  envInt("RATE_LIMIT_PER_MINUTE", 240),
		MaxRequestBodyBytes: maxBody,
		Environment:         environment,
	}

	r := s.router(corsOrigins)

	addr := env("ADDR", ":8000")
	log.Printf("api listening on %s", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: envDurationSec("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		ReadTimeout:       envDurationSec("HTTP_READ_TIMEOUT_SEC", 15),
		WriteTimeout:      envDurationSec("HTTP_WRITE_TIMEOUT_SEC", 30),
		IdleTimeout:       envDurationSec("HTTP_IDLE_TIMEOUT_SEC", 120),
	}
	if listen == nil {
		return errors.New("listen function required")
	}
	return listen(server)
}

func (s *Server) router(corsOrigins string) chi.Router {
	r := chi.NewRouter()
	r.Use(httpx.RequestIDMiddleware)
	r.Use(httpx.CORSMiddleware(corsOrigins))
	r.Use(httpx.SecurityHeadersMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(telemetry.HTTPMiddleware("todo-api"))
	r.Use(s.limitRequestBodyMiddleware)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "ok",
			"message":     "Todo API is running",
			"version":     apiVersion,
			"environment": s.Environment,
		})
	})
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "api"})
	})

	apiRouter := chi.NewRouter()
	apiRouter.Use(auth.Middleware(s.Verifier))
	apiRouter.Use(s.rateLimitMiddleware)
	apiRouter.Route("/users/{userID}/tasks", func(r chi.Router) {
		r.Post("/", s.createTask)
		r.Get("/", s.listTasks)
		r.Get("/{taskID}", s.getTask)
		r.Put("/{taskID}", s.replaceTask)
		r.Patch("/{taskID}", s.patchTask)
		r.Delete("/{taskID}", s.deleteTask)
	})
	r.Mount("/api", apiRouter)

	metricsRouter := chi.NewRouter()
	metricsRouter.Use(auth.Middleware(s.Verifier))
	metricsRouter.Get("/", s.Metrics.Handler())
	metricsRouter.Get("/prometheus", s.Metrics.PrometheusHandler())
	r.Mount("/metrics", metricsRouter)

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.Metrics.Observe(r.Method+" "+routePattern(r), rec.status, time.Since(start))
		switch rec.status {
		case http.StatusUnauthorized:
			s.Metrics.IncAuthFailure()
		case http.StatusTooManyRequests:
			s.Metrics.IncRateLimited()
		}
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func (s *Server) limitRequestBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.RateLimitEnabled || s.RateLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		key, _ := auth.SubjectFromContext(r.Context())
		if key == "" {
			key = r.RemoteAddr
		}
		d := s.RateLimiter.Allow(key, s.RateLimitPerMinute)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			retryAfter := int(time.Until(d.ResetAt).Seconds()) + 1
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			httpx.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envDurationSec(key string, def int) time.Duration {
	return time.Second * time.Duration(envInt(key, def))
}
