package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"brainflix-api/internal/observability/logging"
	"brainflix-api/internal/server"
	"brainflix-api/internal/serverutil"
	"brainflix-api/internal/storage"
)

const (
	driverMemory   = "memory"
	driverPostgres = "postgres"
	driverRedis    = "redis"

	defaultPort      = "8080"
	defaultPublicDir = "public"
)

var errHelp = flag.ErrHelp

type postgresSettings struct {
	DSN             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdle     time.Duration
	HealthInterval  time.Duration
	AcquireTimeout  time.Duration
	AppName         string
}

type config struct {
	Addr            string
	DataDir         string
	PublicDir       string
	StorageDriver   string
	Postgres        postgresSettings
	Redis           storage.RedisConfig
	CORSOrigins     []string
	Security        server.SecurityConfig
	Log             logging.Config
	TLS             serverutil.TLSConfig
	ShutdownTimeout time.Duration
}

// parseConfig resolves flags first and falls back to the BRAINFLIX_*
// environment, then PORT for the listen address.
func parseConfig(args []string) (config, error) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	addr := fs.String("addr", "", "HTTP listen address (defaults to :$PORT or :8080)")
	dataDir := fs.String("data-dir", "", "directory holding videos.json and video-details.json (defaults to the bundled fixtures)")
	publicDir := fs.String("public-dir", "", "directory served under /public/")
	storageDriver := fs.String("storage-driver", "", "datastore driver (memory, postgres or redis)")
	postgresDSN := fs.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := fs.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := fs.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := fs.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := fs.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := fs.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresAcquireTimeout := fs.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	postgresAppName := fs.String("postgres-app-name", "", "application_name reported to Postgres")
	redisAddr := fs.String("redis-addr", "", "Redis address")
	redisAddrs := fs.String("redis-addrs", "", "comma separated Redis addresses for cluster or sentinel mode")
	redisUsername := fs.String("redis-username", "", "Redis username")
	redisPassword := fs.String("redis-password", "", "Redis password")
	redisMasterName := fs.String("redis-master-name", "", "Redis sentinel master name")
	redisPrefix := fs.String("redis-prefix", "", "key prefix for BrainFlix data in Redis")
	redisPoolSize := fs.Int("redis-pool-size", 0, "maximum Redis connections")
	redisTimeout := fs.Duration("redis-timeout", 0, "dial, read and write timeout for Redis")
	redisTLSCA := fs.String("redis-tls-ca", "", "path to Redis TLS CA certificate")
	redisTLSCert := fs.String("redis-tls-cert", "", "path to Redis TLS client certificate")
	redisTLSKey := fs.String("redis-tls-key", "", "path to Redis TLS client key")
	redisTLSServerName := fs.String("redis-tls-server-name", "", "override Redis TLS server name")
	redisTLSSkipVerify := fs.Bool("redis-tls-skip-verify", false, "skip Redis TLS verification")
	corsOrigins := fs.String("cors-origins", "", "comma separated origins allowed to call the API (* for any)")
	contentSecurityPolicy := fs.String("content-security-policy", "", "Content-Security-Policy header value")
	crossOriginResourcePolicy := fs.String("cross-origin-resource-policy", "", "Cross-Origin-Resource-Policy header value (cross-origin, same-site or same-origin)")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "", "log format (json or text)")
	tlsCert := fs.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := fs.String("tls-key", "", "path to TLS private key file")
	shutdownTimeout := fs.Duration("shutdown-timeout", 0, "grace period for in-flight requests on shutdown")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if fs.NArg() > 0 {
		return config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	redisDeadline := resolveDuration(*redisTimeout, "BRAINFLIX_REDIS_TIMEOUT", 0)
	cfg := config{
		Addr:          resolveListenAddr(*addr, os.Getenv("BRAINFLIX_ADDR"), os.Getenv("PORT")),
		DataDir:       firstNonEmpty(*dataDir, os.Getenv("BRAINFLIX_DATA_DIR")),
		PublicDir:     firstNonEmpty(*publicDir, os.Getenv("BRAINFLIX_PUBLIC_DIR"), defaultPublicDir),
		StorageDriver: strings.ToLower(firstNonEmpty(*storageDriver, os.Getenv("BRAINFLIX_STORAGE_DRIVER"), driverMemory)),
		Postgres: postgresSettings{
			DSN:             firstNonEmpty(*postgresDSN, os.Getenv("BRAINFLIX_POSTGRES_DSN"), os.Getenv("DATABASE_URL")),
			MaxConns:        resolveInt(*postgresMaxConns, "BRAINFLIX_POSTGRES_MAX_CONNS"),
			MinConns:        resolveInt(*postgresMinConns, "BRAINFLIX_POSTGRES_MIN_CONNS"),
			MaxConnLifetime: resolveDuration(*postgresMaxConnLifetime, "BRAINFLIX_POSTGRES_MAX_CONN_LIFETIME", 0),
			MaxConnIdle:     resolveDuration(*postgresMaxConnIdle, "BRAINFLIX_POSTGRES_MAX_CONN_IDLE", 0),
			HealthInterval:  resolveDuration(*postgresHealthInterval, "BRAINFLIX_POSTGRES_HEALTH_INTERVAL", 0),
			AcquireTimeout:  resolveDuration(*postgresAcquireTimeout, "BRAINFLIX_POSTGRES_ACQUIRE_TIMEOUT", 0),
			AppName:         firstNonEmpty(*postgresAppName, os.Getenv("BRAINFLIX_POSTGRES_APP_NAME")),
		},
		Redis: storage.RedisConfig{
			Addr:         firstNonEmpty(*redisAddr, os.Getenv("BRAINFLIX_REDIS_ADDR")),
			Addrs:        splitAndTrim(firstNonEmpty(*redisAddrs, os.Getenv("BRAINFLIX_REDIS_ADDRS"))),
			Username:     firstNonEmpty(*redisUsername, os.Getenv("BRAINFLIX_REDIS_USERNAME")),
			Password:     firstNonEmpty(*redisPassword, os.Getenv("BRAINFLIX_REDIS_PASSWORD")),
			MasterName:   firstNonEmpty(*redisMasterName, os.Getenv("BRAINFLIX_REDIS_MASTER_NAME")),
			KeyPrefix:    firstNonEmpty(*redisPrefix, os.Getenv("BRAINFLIX_REDIS_PREFIX")),
			PoolSize:     resolveInt(*redisPoolSize, "BRAINFLIX_REDIS_POOL_SIZE"),
			DialTimeout:  redisDeadline,
			ReadTimeout:  redisDeadline,
			WriteTimeout: redisDeadline,
			TLS: storage.RedisTLSConfig{
				CAFile:             firstNonEmpty(*redisTLSCA, os.Getenv("BRAINFLIX_REDIS_TLS_CA")),
				CertFile:           firstNonEmpty(*redisTLSCert, os.Getenv("BRAINFLIX_REDIS_TLS_CERT")),
				KeyFile:            firstNonEmpty(*redisTLSKey, os.Getenv("BRAINFLIX_REDIS_TLS_KEY")),
				ServerName:         firstNonEmpty(*redisTLSServerName, os.Getenv("BRAINFLIX_REDIS_TLS_SERVER_NAME")),
				InsecureSkipVerify: resolveBool(*redisTLSSkipVerify, "BRAINFLIX_REDIS_TLS_SKIP_VERIFY"),
			},
		},
		CORSOrigins: server.ParseOrigins(firstNonEmpty(*corsOrigins, os.Getenv("BRAINFLIX_CORS_ORIGINS"), "*")),
		Security: server.SecurityConfig{
			ContentSecurityPolicy:     firstNonEmpty(*contentSecurityPolicy, os.Getenv("BRAINFLIX_CONTENT_SECURITY_POLICY")),
			CrossOriginResourcePolicy: strings.ToLower(firstNonEmpty(*crossOriginResourcePolicy, os.Getenv("BRAINFLIX_CROSS_ORIGIN_RESOURCE_POLICY"))),
		},
		Log: logging.Config{
			Level:  firstNonEmpty(*logLevel, os.Getenv("BRAINFLIX_LOG_LEVEL"), "info"),
			Format: firstNonEmpty(*logFormat, os.Getenv("BRAINFLIX_LOG_FORMAT"), string(logging.FormatJSON)),
		},
		TLS: serverutil.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("BRAINFLIX_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("BRAINFLIX_TLS_KEY")),
		},
		ShutdownTimeout: resolveDuration(*shutdownTimeout, "BRAINFLIX_SHUTDOWN_TIMEOUT", serverutil.DefaultShutdownTimeout),
	}
	return cfg, nil
}

func (c config) validate() error {
	if err := logging.Validate(c.Log); err != nil {
		return err
	}
	if err := c.TLS.Validate(); err != nil {
		return err
	}
	switch c.Security.CrossOriginResourcePolicy {
	case "", "cross-origin", "same-site", "same-origin":
	default:
		return fmt.Errorf("unsupported cross-origin resource policy %q (want cross-origin, same-site or same-origin)", c.Security.CrossOriginResourcePolicy)
	}
	switch c.StorageDriver {
	case driverMemory:
	case driverPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres storage selected without DSN")
		}
	case driverRedis:
		if c.Redis.Addr == "" && len(c.Redis.Addrs) == 0 {
			return fmt.Errorf("redis storage selected without an address")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q (want memory, postgres or redis)", c.StorageDriver)
	}
	return nil
}

func openRepository(ctx context.Context, cfg config, logger *slog.Logger) (storage.Repository, error) {
	options := []storage.Option{storage.WithLogger(logger)}
	switch cfg.StorageDriver {
	case driverMemory:
		return storage.NewMemoryRepository(options...), nil
	case driverPostgres:
		return storage.NewPostgresRepository(ctx, cfg.Postgres.DSN, append(options, postgresOptions(cfg.Postgres)...)...)
	case driverRedis:
		return storage.NewRedisRepository(ctx, cfg.Redis, options...)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func postgresOptions(pg postgresSettings) []storage.Option {
	var options []storage.Option
	if pg.MaxConns > 0 || pg.MinConns > 0 {
		options = append(options, storage.WithPostgresPoolLimits(int32(pg.MaxConns), int32(pg.MinConns)))
	}
	if pg.MaxConnLifetime > 0 || pg.MaxConnIdle > 0 || pg.HealthInterval > 0 {
		options = append(options, storage.WithPostgresPoolDurations(pg.MaxConnLifetime, pg.MaxConnIdle, pg.HealthInterval))
	}
	if pg.AcquireTimeout > 0 {
		options = append(options, storage.WithPostgresAcquireTimeout(pg.AcquireTimeout))
	}
	if pg.AppName != "" {
		options = append(options, storage.WithPostgresApplicationName(pg.AppName))
	}
	return options
}

func resolveListenAddr(flagValue, envAddr, port string) string {
	if addr := firstNonEmpty(flagValue, envAddr); addr != "" {
		return addr
	}
	return ":" + firstNonEmpty(port, defaultPort)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
