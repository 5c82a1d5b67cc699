package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/SongJunSub/Reservation-sub005/internal/config"
	"github.com/SongJunSub/Reservation-sub005/internal/pkg/apperror"
)

const defaultDialTimeout = 2 * time.Second

// NewClient は go-redis クライアントを作り、DialTimeout の間だけ疎通を再試行する
func NewClient(cfg *config.RedisConfig) (*redis.Client, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: timeout,
	})

	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = timeout
	err := backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return Ping(ctx, client)
	}, eb)
	if err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// Ping は readiness チェック用
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return apperror.Infrastructure(fmt.Sprintf("Redis %s に接続できません", client.Options().Addr), err)
	}
	return nil
}
