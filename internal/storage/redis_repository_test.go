package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brainflix-api/internal/testsupport/redisstub"
)

func startRedisStub(t *testing.T, opts redisstub.Options) *redisstub.Server {
	t.Helper()
	server, err := redisstub.Start(opts)
	require.NoError(t, err, "start redis stub")
	t.Cleanup(func() { _ = server.Close() })
	return server
}

func redisRepositoryFactory(t *testing.T, opts ...Option) (Repository, func(), error) {
	t.Helper()
	server := startRedisStub(t, redisstub.Options{Password: "secret"})
	repo, err := NewRedisRepository(context.Background(), RedisConfig{
		Addr:     server.Addr(),
		Password: "secret",
	}, opts...)
	if err != nil {
		return nil, nil, err
	}
	return repo, func() { _ = repo.Close(context.Background()) }, nil
}

func TestRedisRepositoryScenarios(t *testing.T) {
	RunRepositoryScenarios(t, redisRepositoryFactory)
}

func TestRedisRepositoryKeyLayout(t *testing.T) {
	server := startRedisStub(t, redisstub.Options{})
	ctx := context.Background()
	repo, err := NewRedisRepository(ctx, RedisConfig{Addr: server.Addr()},
		append(scenarioOptions(), WithRedisKeyPrefix(":demo:"))...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close(ctx) })

	_, err = repo.Seed(ctx, scenarioDataset(), SeedIfEmpty)
	require.NoError(t, err)

	assert.Len(t, server.List("demo:summaries"), 2)
	assert.Equal(t, []string{"v1", "v2"}, server.List("demo:video-ids"))
	assert.Len(t, server.List("demo:video:v1:comments"), 2)
	_, ok := server.Get("demo:video:v1")
	assert.True(t, ok, "detail key should exist")
	_, ok = server.Get("demo:seeded")
	assert.True(t, ok, "seed marker should exist")

	created, err := repo.CreateVideo(ctx, CreateVideoParams{Title: "Cats", Description: "Cute"})
	require.NoError(t, err)
	assert.Equal(t, []string{created.ID, "v1", "v2"}, server.List("demo:video-ids"))
}

func TestRedisRepositorySeedIfEmptyAcrossInstances(t *testing.T) {
	server := startRedisStub(t, redisstub.Options{})
	ctx := context.Background()
	cfg := RedisConfig{Addr: server.Addr()}

	first, err := NewRedisRepository(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close(ctx) })
	second, err := NewRedisRepository(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close(ctx) })

	result, err := first.Seed(ctx, scenarioDataset(), SeedIfEmpty)
	require.NoError(t, err)
	require.False(t, result.Skipped)

	result, err = second.Seed(ctx, scenarioDataset(), SeedIfEmpty)
	require.NoError(t, err)
	require.True(t, result.Skipped)

	videos, err := second.ListVideos(ctx)
	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, 4, server.CommandCount("RPUSH"), "only the first instance writes seed data")
}

func TestRedisRepositoryRejectsWrongPassword(t *testing.T) {
	server := startRedisStub(t, redisstub.Options{Password: "secret"})
	_, err := NewRedisRepository(context.Background(), RedisConfig{
		Addr:     server.Addr(),
		Password: "wrong",
	}, WithRedisTimeouts(time.Second, time.Second, time.Second))
	require.Error(t, err)
}

func TestRedisRepositoryRequiresAddr(t *testing.T) {
	_, err := NewRedisRepository(context.Background(), RedisConfig{Addrs: []string{" ", ""}})
	require.EqualError(t, err, "redis addr is required")
}

func TestRedisRepositoryTLS(t *testing.T) {
	server := startRedisStub(t, redisstub.Options{EnableTLS: true})
	caPath := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(caPath, server.CertPEM(), 0o600))

	ctx := context.Background()
	repo, err := NewRedisRepository(ctx, RedisConfig{
		Addr: server.Addr(),
		TLS:  RedisTLSConfig{CAFile: caPath},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close(ctx) })
	require.NoError(t, repo.Ping(ctx))
}

func TestBuildRedisTLSConfig(t *testing.T) {
	cfg, err := buildRedisTLSConfig(RedisTLSConfig{})
	require.NoError(t, err)
	assert.Nil(t, cfg)

	cfg, err = buildRedisTLSConfig(RedisTLSConfig{ServerName: "cache.internal"})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "cache.internal", cfg.ServerName)

	badCA := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(badCA, []byte("not a certificate"), 0o600))
	_, err = buildRedisTLSConfig(RedisTLSConfig{CAFile: badCA})
	require.EqualError(t, err, "redis tls ca is invalid")
}
