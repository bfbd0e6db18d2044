package storage

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"brainflix-api/internal/models"
)

// RedisTLSConfig controls TLS behaviour for Redis connections.
type RedisTLSConfig struct {
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

// RedisConfig configures the Redis-backed repository. Addrs with more than one
// entry selects cluster mode unless MasterName is set, which selects sentinel.
type RedisConfig struct {
	Addr         string
	Addrs        []string
	Username     string
	Password     string
	MasterName   string
	KeyPrefix    string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TLS          RedisTLSConfig
}

const defaultRedisKeyPrefix = "brainflix"

type redisRepository struct {
	client   redis.UniversalClient
	prefix   string
	settings settings
}

// NewRedisRepository connects to Redis and verifies the connection with PING.
//
// Layout under the key prefix:
//
//	<prefix>:summaries            list of summary JSON, newest first
//	<prefix>:video-ids            list of detail ids, newest first
//	<prefix>:video:<id>           detail JSON without comments
//	<prefix>:video:<id>:comments  list of comment JSON, newest first
//	<prefix>:seeded               marker written by the first seeder
func NewRedisRepository(ctx context.Context, cfg RedisConfig, opts ...Option) (Repository, error) {
	for _, opt := range opts {
		if opt != nil {
			opt.applyRedis(&cfg)
		}
	}
	addrs := make([]string, 0, len(cfg.Addrs)+1)
	for _, addr := range cfg.Addrs {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			addrs = append(addrs, trimmed)
		}
	}
	if addr := strings.TrimSpace(cfg.Addr); addr != "" {
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("redis addr is required")
	}
	prefix := strings.Trim(strings.TrimSpace(cfg.KeyPrefix), ":")
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	tlsConfig, err := buildRedisTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		MasterName:   strings.TrimSpace(cfg.MasterName),
		Username:     strings.TrimSpace(cfg.Username),
		Password:     cfg.Password,
		TLSConfig:    tlsConfig,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   2,
	})
	repo := &redisRepository{
		client:   client,
		prefix:   prefix,
		settings: resolveSettings(opts),
	}
	if err := repo.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return repo, nil
}

func (r *redisRepository) summariesKey() string { return r.prefix + ":summaries" }
func (r *redisRepository) videoIDsKey() string  { return r.prefix + ":video-ids" }
func (r *redisRepository) seededKey() string    { return r.prefix + ":seeded" }

func (r *redisRepository) videoKey(id string) string {
	return r.prefix + ":video:" + id
}

func (r *redisRepository) commentsKey(id string) string {
	return r.prefix + ":video:" + id + ":comments"
}

func (r *redisRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (r *redisRepository) Seed(ctx context.Context, dataset Dataset, mode SeedMode) (SeedResult, error) {
	dataset = dataset.deduplicated(r.settings.logger)
	marker := strconv.FormatInt(unixMillis(r.settings.clock()), 10)

	switch mode {
	case SeedReplace:
		if err := r.clear(ctx); err != nil {
			return SeedResult{}, err
		}
		if err := r.client.Set(ctx, r.seededKey(), marker, 0).Err(); err != nil {
			return SeedResult{}, fmt.Errorf("mark redis seeded: %w", err)
		}
	default:
		claimed, err := r.client.SetNX(ctx, r.seededKey(), marker, 0).Result()
		if err != nil {
			return SeedResult{}, fmt.Errorf("claim redis seed: %w", err)
		}
		if !claimed {
			return SeedResult{Skipped: true}, nil
		}
	}

	summaries := make([]interface{}, 0, len(dataset.Summaries))
	for _, summary := range dataset.Summaries {
		encoded, err := json.Marshal(summary)
		if err != nil {
			return SeedResult{}, fmt.Errorf("encode summary %s: %w", summary.ID, err)
		}
		summaries = append(summaries, string(encoded))
	}

	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(summaries) > 0 {
			pipe.RPush(ctx, r.summariesKey(), summaries...)
		}
		for _, detail := range dataset.Details {
			if err := r.queueDetail(ctx, pipe, detail); err != nil {
				return err
			}
			pipe.RPush(ctx, r.videoIDsKey(), detail.ID)
			if len(detail.Comments) == 0 {
				continue
			}
			comments := make([]interface{}, 0, len(detail.Comments))
			for _, comment := range detail.Comments {
				encoded, err := json.Marshal(comment)
				if err != nil {
					return fmt.Errorf("encode comment %s: %w", comment.ID, err)
				}
				comments = append(comments, string(encoded))
			}
			pipe.RPush(ctx, r.commentsKey(detail.ID), comments...)
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, fmt.Errorf("write redis seed: %w", err)
	}
	counts := dataset.Counts()
	return SeedResult{Summaries: counts.Summaries, Details: counts.Details, Comments: counts.Comments}, nil
}

func (r *redisRepository) clear(ctx context.Context) error {
	ids, err := r.client.LRange(ctx, r.videoIDsKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("list redis videos: %w", err)
	}
	keys := []string{r.summariesKey(), r.videoIDsKey(), r.seededKey()}
	for _, id := range ids {
		keys = append(keys, r.videoKey(id), r.commentsKey(id))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear redis videos: %w", err)
	}
	return nil
}

func (r *redisRepository) queueDetail(ctx context.Context, pipe redis.Pipeliner, detail models.VideoDetail) error {
	stored := detail
	stored.Comments = nil
	encoded, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode video %s: %w", detail.ID, err)
	}
	pipe.Set(ctx, r.videoKey(detail.ID), string(encoded), 0)
	return nil
}

func (r *redisRepository) ListVideos(ctx context.Context) ([]models.VideoSummary, error) {
	raw, err := r.client.LRange(ctx, r.summariesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	videos := make([]models.VideoSummary, 0, len(raw))
	for _, item := range raw {
		var summary models.VideoSummary
		if err := json.Unmarshal([]byte(item), &summary); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
		videos = append(videos, summary)
	}
	return videos, nil
}

func (r *redisRepository) GetVideo(ctx context.Context, id string) (models.VideoDetail, error) {
	var (
		detailCmd   *redis.StringCmd
		commentsCmd *redis.StringSliceCmd
	)
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		detailCmd = pipe.Get(ctx, r.videoKey(id))
		commentsCmd = pipe.LRange(ctx, r.commentsKey(id), 0, -1)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.VideoDetail{}, fmt.Errorf("get video %s: %w", id, err)
	}

	raw, err := detailCmd.Result()
	if errors.Is(err, redis.Nil) {
		return models.VideoDetail{}, notFound(id)
	} else if err != nil {
		return models.VideoDetail{}, fmt.Errorf("get video %s: %w", id, err)
	}
	var detail models.VideoDetail
	if err := json.Unmarshal([]byte(raw), &detail); err != nil {
		return models.VideoDetail{}, fmt.Errorf("decode video %s: %w", id, err)
	}

	rawComments, err := commentsCmd.Result()
	if err != nil {
		return models.VideoDetail{}, fmt.Errorf("list comments for %s: %w", id, err)
	}
	detail.Comments = make([]models.Comment, 0, len(rawComments))
	for _, item := range rawComments {
		var comment models.Comment
		if err := json.Unmarshal([]byte(item), &comment); err != nil {
			return models.VideoDetail{}, fmt.Errorf("decode comment for %s: %w", id, err)
		}
		detail.Comments = append(detail.Comments, comment)
	}
	return detail, nil
}

// CreateVideo writes the detail before the listing entries so a listed
// summary always resolves.
func (r *redisRepository) CreateVideo(ctx context.Context, params CreateVideoParams) (models.VideoDetail, error) {
	if err := validateCreateVideo(params); err != nil {
		return models.VideoDetail{}, err
	}
	detail := r.settings.newVideo(params)
	summary, err := json.Marshal(detail.Summary())
	if err != nil {
		return models.VideoDetail{}, fmt.Errorf("encode summary: %w", err)
	}

	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := r.queueDetail(ctx, pipe, detail); err != nil {
			return err
		}
		pipe.LPush(ctx, r.videoIDsKey(), detail.ID)
		pipe.LPush(ctx, r.summariesKey(), string(summary))
		return nil
	})
	if err != nil {
		return models.VideoDetail{}, fmt.Errorf("create video: %w", err)
	}
	return detail, nil
}

func (r *redisRepository) AddComment(ctx context.Context, videoID string, params CreateCommentParams) (models.Comment, error) {
	if err := validateCreateComment(params); err != nil {
		return models.Comment{}, err
	}
	exists, err := r.client.Exists(ctx, r.videoKey(videoID)).Result()
	if err != nil {
		return models.Comment{}, fmt.Errorf("lookup video %s: %w", videoID, err)
	}
	if exists == 0 {
		return models.Comment{}, notFound(videoID)
	}

	comment := r.settings.newComment(params)
	encoded, err := json.Marshal(comment)
	if err != nil {
		return models.Comment{}, fmt.Errorf("encode comment: %w", err)
	}
	if err := r.client.LPush(ctx, r.commentsKey(videoID), string(encoded)).Err(); err != nil {
		return models.Comment{}, fmt.Errorf("add comment: %w", err)
	}
	return comment, nil
}

func (r *redisRepository) Close(ctx context.Context) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func buildRedisTLSConfig(cfg RedisTLSConfig) (*tls.Config, error) {
	if cfg.CAFile == "" && cfg.CertFile == "" && cfg.KeyFile == "" && !cfg.InsecureSkipVerify && cfg.ServerName == "" {
		return nil, nil
	}
	tlsCfg := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify, MinVersion: tls.VersionTLS12}
	if cfg.ServerName != "" {
		tlsCfg.ServerName = cfg.ServerName
	}
	if cfg.CAFile != "" {
		pemData, err := os.ReadFile(filepath.Clean(cfg.CAFile))
		if err != nil {
			return nil, fmt.Errorf("read redis tls ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("redis tls ca is invalid")
		}
		tlsCfg.RootCAs = pool
	}
	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(filepath.Clean(cfg.CertFile), filepath.Clean(cfg.KeyFile))
		if err != nil {
			return nil, fmt.Errorf("load redis tls certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}
