package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kazz187/issuelab/pkg/cerr"
)

// ErrKeyNotFound is returned by RedisClient.Get for a missing key.
var ErrKeyNotFound = errors.New("redis key not found")

// RedisClient is the subset of Redis the ledger needs.
type RedisClient interface {
	SetNX(ctx context.Context, key, value string, expiration time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// CompareAndDelete removes key only while it still holds value.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// RedisLedger shares RateState across hosts. Updates hold a SETNX lock on key+":lock".
type RedisLedger struct {
	client  RedisClient
	key     string
	lockTTL time.Duration
	owner   string
}

func NewRedisLedger(client RedisClient, key, owner string) *RedisLedger {
	return &RedisLedger{client: client, key: key, lockTTL: 10 * time.Second, owner: owner}
}

func (r *RedisLedger) Update(ctx context.Context, fn func(*RateState) error) error {
	lockKey := r.key + ":lock"
	for {
		ok, err := r.client.SetNX(ctx, lockKey, r.owner, r.lockTTL)
		if err != nil {
			return cerr.NewError(cerr.Unavailable, "rate ledger lock failed", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	defer func() {
		// the lock may have expired and been taken by another writer
		released, err := r.client.CompareAndDelete(context.WithoutCancel(ctx), lockKey, r.owner)
		if err != nil || !released {
			slog.WarnContext(ctx, "rate ledger lock was not released by its owner", "owner", r.owner, "error", err)
		}
	}()

	state := NewRateState()
	raw, err := r.client.Get(ctx, r.key)
	switch {
	case errors.Is(err, ErrKeyNotFound):
	case err != nil:
		return cerr.NewError(cerr.Unavailable, "rate ledger read failed", err)
	default:
		if err := json.Unmarshal([]byte(raw), state); err != nil {
			return cerr.NewError(cerr.DataLoss, "corrupt rate ledger", err)
		}
		state.normalize()
	}

	if err := fn(state); err != nil {
		return err
	}
	out, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode rate ledger: %w", err)
	}
	if err := r.client.Set(ctx, r.key, string(out), 0); err != nil {
		return cerr.NewError(cerr.Unavailable, "rate ledger write failed", err)
	}
	return nil
}

// GoRedisClient adapts a go-redis client to RedisClient.
type GoRedisClient struct {
	Client *goredis.Client
}

// DialRedis parses url and verifies the server answers.
func DialRedis(ctx context.Context, url string) (*GoRedisClient, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &GoRedisClient{Client: rdb}, nil
}

func (g *GoRedisClient) SetNX(ctx context.Context, key, value string, expiration time.Duration) (bool, error) {
	return g.Client.SetNX(ctx, key, value, expiration).Result()
}

func (g *GoRedisClient) Get(ctx context.Context, key string) (string, error) {
	v, err := g.Client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrKeyNotFound
	}
	return v, err
}

func (g *GoRedisClient) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	return g.Client.Set(ctx, key, value, expiration).Err()
}

func (g *GoRedisClient) Del(ctx context.Context, keys ...string) error {
	return g.Client.Del(ctx, keys...).Err()
}

var compareAndDelete = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (g *GoRedisClient) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	n, err := compareAndDelete.Run(ctx, g.Client, []string{key}, value).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (g *GoRedisClient) Close() error {
	return g.Client.Close()
}
