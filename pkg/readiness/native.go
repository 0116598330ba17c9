package readiness

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisPing speaks the redis protocol directly instead of exec'ing redis-cli.
type RedisPing struct {
	Addr    string
	Timeout time.Duration
}

func (c RedisPing) String() string { return "redis PING " + c.Addr }

func (c RedisPing) Probe(ctx context.Context) Result {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         c.Addr,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		MaxRetries:   0,
	})
	defer func() { _ = client.Close() }()

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		return Result{Err: errors.Wrap(err, "redis ping")}
	}
	return Result{Ready: pong == "PONG", Detail: pong}
}

// PostgresPing opens a single-connection pool and pings it.
type PostgresPing struct {
	DSN     string
	Timeout time.Duration
}

func (c PostgresPing) String() string { return "postgres ping" }

func (c PostgresPing) Probe(ctx context.Context) Result {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	cfg, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return Result{Err: errors.Wrap(err, "parse postgres dsn")}
	}
	cfg.MaxConns = 1
	cfg.MinConns = 0
	cfg.ConnConfig.ConnectTimeout = timeout

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return Result{Err: errors.Wrap(err, "connect postgres")}
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return Result{Err: errors.Wrap(err, "postgres ping")}
	}
	return Result{Ready: true, Detail: "accepting connections"}
}
