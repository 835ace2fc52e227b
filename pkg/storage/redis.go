package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	connectTries    = 5
	connectInterval = time.Second
)

// NewRedisClient connects and pings redis, retrying a few times while it comes up.
func NewRedisClient(ctx context.Context, log logrus.FieldLogger, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	_, err := backoff.Retry(
		ctx,
		func() (string, error) {
			return rdb.Ping(ctx).Result()
		},
		backoff.WithMaxTries(connectTries),
		backoff.WithBackOff(backoff.NewConstantBackOff(connectInterval)),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Warnf("redis ping %s failed, retrying in %s: %v", addr, d, err)
		}),
	)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", addr, err)
	}
	log.Infof("connected to redis %s", addr)
	return rdb, nil
}

// Keys names the redis keys used under a common prefix.
type Keys struct {
	Prefix string
}

func (k Keys) Tasks() string { return k.Prefix + ":tasks" }

func (k Keys) Result(sid string) string { return k.Prefix + ":result:" + sid }

func (k Keys) Done() string { return k.Prefix + ":done" }

func (k Keys) Failed() string { return k.Prefix + ":failed" }
