package storage

import (
	"log/slog"
	"strings"
	"time"
)

// settings holds the behaviour shared by every Repository implementation.
type settings struct {
	clock  func() time.Time
	newID  func() string
	logger *slog.Logger
}

func newSettings() settings {
	return settings{
		clock:  time.Now,
		newID:  generateID,
		logger: slog.Default(),
	}
}

type Option interface {
	applyCommon(*settings)
	applyPostgres(*PostgresConfig)
	applyRedis(*RedisConfig)
}

type optionAdapter struct {
	common func(*settings)
	pg     func(*PostgresConfig)
	redis  func(*RedisConfig)
}

func (o optionAdapter) applyCommon(s *settings) {
	if o.common != nil && s != nil {
		o.common(s)
	}
}

func (o optionAdapter) applyPostgres(cfg *PostgresConfig) {
	if o.pg != nil && cfg != nil {
		o.pg(cfg)
	}
}

func (o optionAdapter) applyRedis(cfg *RedisConfig) {
	if o.redis != nil && cfg != nil {
		o.redis(cfg)
	}
}

func commonOption(fn func(*settings)) Option {
	return optionAdapter{common: fn}
}

func postgresOnlyOption(pg func(*PostgresConfig)) Option {
	return optionAdapter{pg: pg}
}

func redisOnlyOption(redis func(*RedisConfig)) Option {
	return optionAdapter{redis: redis}
}

func resolveSettings(opts []Option) settings {
	s := newSettings()
	for _, opt := range opts {
		if opt != nil {
			opt.applyCommon(&s)
		}
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.newID == nil {
		s.newID = generateID
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// WithClock overrides the time source used for video and comment timestamps.
func WithClock(clock func() time.Time) Option {
	return commonOption(func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	})
}

// WithIDGenerator overrides how video and comment ids are minted.
func WithIDGenerator(generator func() string) Option {
	return commonOption(func(s *settings) {
		if generator != nil {
			s.newID = generator
		}
	})
}

func WithLogger(logger *slog.Logger) Option {
	return commonOption(func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	})
}

func WithPostgresPoolLimits(maxConns, minConns int32) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if maxConns > 0 {
			cfg.MaxConnections = maxConns
		}
		if minConns >= 0 {
			cfg.MinConnections = minConns
		}
	})
}

// WithPostgresAcquireTimeout bounds connection establishment and every
// statement issued by the repository.
func WithPostgresAcquireTimeout(timeout time.Duration) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if timeout > 0 {
			cfg.AcquireTimeout = timeout
		}
	})
}

func WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval time.Duration) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if maxLifetime > 0 {
			cfg.MaxConnLifetime = maxLifetime
		}
		if maxIdle > 0 {
			cfg.MaxConnIdleTime = maxIdle
		}
		if healthInterval > 0 {
			cfg.HealthCheckInterval = healthInterval
		}
	})
}

func WithPostgresApplicationName(name string) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cfg.ApplicationName = trimmed
		}
	})
}

// WithRedisKeyPrefix namespaces every key written by the Redis repository.
func WithRedisKeyPrefix(prefix string) Option {
	return redisOnlyOption(func(cfg *RedisConfig) {
		if trimmed := strings.Trim(strings.TrimSpace(prefix), ":"); trimmed != "" {
			cfg.KeyPrefix = trimmed
		}
	})
}

func WithRedisTimeouts(dial, read, write time.Duration) Option {
	return redisOnlyOption(func(cfg *RedisConfig) {
		if dial > 0 {
			cfg.DialTimeout = dial
		}
		if read > 0 {
			cfg.ReadTimeout = read
		}
		if write > 0 {
			cfg.WriteTimeout = write
		}
	})
}
