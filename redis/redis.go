package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	sessionKey     string = "session:%s"
	sessionPattern string = "session:*"
	leaderboardKey string = "leaderboard"

	writeTimeout = 2 * time.Second
)

type Options struct {
	Addr     string
	Password string
	DB       int
}

// ResultStore records session progress and final scores.
type ResultStore struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewClient(opts Options) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	return rdb
}

func NewResultStore(client *redis.Client, log zerolog.Logger) *ResultStore {
	return &ResultStore{
		client: client,
		log:    log,
	}
}

func (s *ResultStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *ResultStore) Close() error {
	return s.client.Close()
}
