// Package lock provides a Redis-backed lock that keeps indexing runs from
// overlapping across processes. It satisfies indexer.Locker.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "texsearch:lock:"

	// DefaultName is the lock shared by every indexer of one collection
	DefaultName = "index"

	// DefaultTTL bounds how long a crashed holder blocks other runs
	DefaultTTL = 2 * time.Minute
)

var (
	// ErrHeld is returned by Lock when another owner holds the lock
	ErrHeld = errors.New("lock held by another owner")

	// ErrNotHeld is returned by Unlock and Extend when this owner does not hold the lock
	ErrNotHeld = errors.New("lock not held")
)

// Options configures a RedisLock
type Options struct {
	Name   string        // default DefaultName
	TTL    time.Duration // default DefaultTTL
	Logger *slog.Logger
}

// RedisLock is a named SETNX lock with an owner token. While held, the TTL
// is refreshed in the background so long runs keep it.
type RedisLock struct {
	client  *redis.Client
	key     string
	ttl     time.Duration
	ownerID string
	logger  *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// New creates a lock on client. The owner ID is unique per instance.
func New(client *redis.Client, opts Options) *RedisLock {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	hostname, _ := os.Hostname()
	return &RedisLock{
		client:  client,
		key:     keyPrefix + opts.Name,
		ttl:     opts.TTL,
		ownerID: fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), uuid.NewString()),
		logger:  opts.Logger,
	}
}

// Dial parses a redis:// URL, checks the server is reachable and returns a lock on it.
// Close the returned client when done.
func Dial(ctx context.Context, url string, opts Options) (*RedisLock, *redis.Client, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return New(client, opts), client, nil
}

// Lock acquires the lock or fails with ErrHeld. It does not wait.
func (l *RedisLock) Lock(ctx context.Context) error {
	acquired, err := l.client.SetNX(ctx, l.key, l.ownerID, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	if !acquired {
		return fmt.Errorf("%w: %s", ErrHeld, l.key)
	}

	l.mu.Lock()
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.keepAlive(l.stop, l.done)
	l.mu.Unlock()

	return nil
}

// releaseScript deletes the key only if it still carries our owner ID
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Unlock stops the refresher and releases the lock. It returns ErrNotHeld
// when the lock expired or was taken over.
func (l *RedisLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	if l.stop != nil {
		close(l.stop)
		<-l.done
		l.stop, l.done = nil, nil
	}
	l.mu.Unlock()

	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.ownerID).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotHeld, l.key)
	}
	return nil
}

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Extend resets the TTL of a held lock.
func (l *RedisLock) Extend(ctx context.Context) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.ownerID, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotHeld, l.key)
	}
	return nil
}

func (l *RedisLock) keepAlive(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			err := l.Extend(ctx)
			cancel()
			if err != nil {
				l.logger.Warn("refresh index lock", "key", l.key, "error", err)
				if errors.Is(err, ErrNotHeld) {
					return
				}
			}
		}
	}
}

// Ping checks that Redis is reachable
func (l *RedisLock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// OwnerID identifies this holder in Redis
func (l *RedisLock) OwnerID() string {
	return l.ownerID
}
