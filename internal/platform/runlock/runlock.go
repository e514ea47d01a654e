package runlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/animus-labs/cbas-go/internal/platform/env"
)

const (
	BackendLocal = "local"
	BackendRedis = "redis"
)

// Locker serializes work on one key. The returned release func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

type Config struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
	TTL           time.Duration
	RetryInterval time.Duration
}

func ConfigFromEnv() (Config, error) {
	redisDB, err := env.Int("CBAS_REDIS_DB", 0)
	if err != nil {
		return Config{}, err
	}
	ttl, err := env.Duration("CBAS_RUNLOCK_TTL", 2*time.Minute)
	if err != nil {
		return Config{}, err
	}
	retry, err := env.Duration("CBAS_RUNLOCK_RETRY_INTERVAL", 50*time.Millisecond)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Backend:       strings.ToLower(strings.TrimSpace(env.String("CBAS_RUNLOCK_BACKEND", BackendLocal))),
		RedisAddr:     env.String("CBAS_REDIS_ADDR", "localhost:6379"),
		RedisPassword: env.String("CBAS_REDIS_PASSWORD", ""),
		RedisDB:       redisDB,
		KeyPrefix:     env.String("CBAS_RUNLOCK_KEY_PREFIX", "cbas:runlock:"),
		TTL:           ttl,
		RetryInterval: retry,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendLocal:
		return nil
	case BackendRedis:
	default:
		return fmt.Errorf("CBAS_RUNLOCK_BACKEND %q is invalid", c.Backend)
	}
	if strings.TrimSpace(c.RedisAddr) == "" {
		return errors.New("CBAS_REDIS_ADDR is required")
	}
	if c.RedisDB < 0 {
		return errors.New("CBAS_REDIS_DB must be >= 0")
	}
	if c.TTL <= 0 {
		return errors.New("CBAS_RUNLOCK_TTL must be positive")
	}
	if c.RetryInterval <= 0 {
		return errors.New("CBAS_RUNLOCK_RETRY_INTERVAL must be positive")
	}
	return nil
}

// New builds the configured locker. close releases backend connections.
func New(ctx context.Context, cfg Config) (Locker, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if cfg.Backend == BackendRedis {
		locker, err := NewRedisLocker(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return locker, locker.Close, nil
	}
	return NewLocalLocker(), func() error { return nil }, nil
}

// LocalLocker is an in-process lock table keyed by string. Entries are
// removed once no holder or waiter remains.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localEntry)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("lock key is required")
	}
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &localEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			l.drop(key, entry)
		})
	}, nil
}

func (l *LocalLocker) drop(key string, entry *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
